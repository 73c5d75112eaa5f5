package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/voicepro/internal/config"
)

var ErrJobNotFound = errors.New("job not found")

// ResultRetention is how long finished jobs and their results stay queryable.
const ResultRetention = 24 * time.Hour

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	opt := RedisOpt(cfg)
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// Job is the externally visible state of an enqueued task.
type Job struct {
	ID     string          `json:"job_id"`
	Queue  string          `json:"queue"`
	State  string          `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// EnqueueTranscription schedules a file transcription. Jobs are never
// retried; a failed job is archived with its error.
func (c *Client) EnqueueTranscription(ctx context.Context, payload TranscribeFilePayload) (*Job, error) {
	return c.enqueue(ctx, TypeTranscribeFile, payload,
		asynq.Queue(QueueTranscription),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(ResultRetention),
	)
}

// JobStatus looks up a transcription job by id.
func (c *Client) JobStatus(id string) (*Job, error) {
	info, err := c.inspector.GetTaskInfo(QueueTranscription, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inspect job %s: %w", id, err)
	}
	return jobFromInfo(info), nil
}

func jobFromInfo(info *asynq.TaskInfo) *Job {
	job := &Job{
		ID:    info.ID,
		Queue: info.Queue,
		State: info.State.String(),
		Error: info.LastErr,
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		job.Result = info.Result
	}
	return job
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	opts = append(opts, asynq.TaskID(uuid.NewString()))
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return jobFromInfo(info), nil
}
