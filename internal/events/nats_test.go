package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/voicepro/internal/events"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSPublisher_Publish(t *testing.T) {
	srv := startServer(t)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	inbox, err := sub.SubscribeSync(events.SubjectSampleCollected)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := events.Connect(srv.ClientURL())
	require.NoError(t, err)

	payload := map[string]any{"id": "anna_20250101_120000", "duration": 2.5}
	require.NoError(t, pub.Publish(context.Background(), events.SubjectSampleCollected, payload))
	require.NoError(t, pub.Close())

	msg, err := inbox.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "anna_20250101_120000", got["id"])
	assert.Equal(t, 2.5, got["duration"])
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	srv := startServer(t)
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = events.NewNATSPublisher(nc).Publish(ctx, events.SubjectTranscriptionComplete, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := events.Connect("nats://127.0.0.1:1")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p events.Publisher = events.Nop{}
	assert.NoError(t, p.Publish(context.Background(), "any", nil))
}
