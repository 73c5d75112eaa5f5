package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicepro/internal/config"
)

func TestJobFromInfo(t *testing.T) {
	job := jobFromInfo(&asynq.TaskInfo{
		ID:     "a1",
		Queue:  QueueTranscription,
		State:  asynq.TaskStateCompleted,
		Result: []byte(`{"text":"hej"}`),
	})
	assert.Equal(t, "a1", job.ID)
	assert.Equal(t, "completed", job.State)
	assert.JSONEq(t, `{"text":"hej"}`, string(job.Result))

	failed := jobFromInfo(&asynq.TaskInfo{
		ID:      "a2",
		State:   asynq.TaskStateArchived,
		LastErr: "transcribe x.wav: boom",
		Result:  []byte("partial"),
	})
	assert.Equal(t, "archived", failed.State)
	assert.Equal(t, "transcribe x.wav: boom", failed.Error)
	assert.Nil(t, failed.Result, "non-JSON results are not exposed")
}

func TestRedisOpt(t *testing.T) {
	opt := RedisOpt(config.RedisConfig{Addr: "redis:6379", Password: "pw", DB: 2})
	assert.Equal(t, "redis:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
}

func TestQueues(t *testing.T) {
	assert.Equal(t, map[string]int{"transcription": 1}, Queues())
}

func TestHandlersRegistry_RoutesByType(t *testing.T) {
	r := NewHandlersRegistry()
	var got []string
	r.Register(TypeTranscribeFile, asynq.HandlerFunc(func(_ context.Context, task *asynq.Task) error {
		got = append(got, string(task.Payload()))
		return nil
	}))
	r.Register("transcribe:fail", asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return errors.New("boom")
	}))

	require.NoError(t, r.Mux().ProcessTask(context.Background(), asynq.NewTask(TypeTranscribeFile, []byte(`{"path":"a.wav"}`))))
	assert.Equal(t, []string{`{"path":"a.wav"}`}, got)

	err := r.Mux().ProcessTask(context.Background(), asynq.NewTask("transcribe:fail", nil))
	assert.EqualError(t, err, "boom")

	err = r.Mux().ProcessTask(context.Background(), asynq.NewTask("unknown", nil))
	assert.Error(t, err)
}
