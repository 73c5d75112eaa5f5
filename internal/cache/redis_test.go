package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptKey(t *testing.T) {
	assert.Equal(t, "transcript:whisper-1:pl:abc123", TranscriptKey("abc123", "whisper-1", "pl"))
	assert.NotEqual(t, TranscriptKey("abc123", "whisper-1", "pl"), TranscriptKey("abc123", "whisper-1", "en"))
}

func TestCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewCache(client, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var dest map[string]string
	found, err := c.Get(ctx, "k", &dest)
	require.Error(t, err)
	assert.False(t, found)
	assert.Contains(t, err.Error(), "cache get k")

	err = c.Set(ctx, "k", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache set k")
}

func TestCache_SetRejectsUnencodableValue(t *testing.T) {
	c := NewCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), time.Minute)
	err := c.Set(context.Background(), "k", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal value")
}
