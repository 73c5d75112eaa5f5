package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nikhilbhutani/voicepro/internal/audio"
)

// runSession segments a started recorder into utterances and hands each to
// handle, in order, until ctx is done. It then stops the recorder, drains the
// trailing speech and writes the whole recording to sessionPath. It returns
// only once every utterance is handled and the session file is written.
func runSession(ctx context.Context, rec *audio.Recorder, cfg audio.SegmenterConfig, sessionPath string, handle func(n int, u audio.Utterance)) (int, error) {
	utterances := make(chan audio.Utterance, 8)
	seg := audio.NewSegmenter(cfg, func(u audio.Utterance) { utterances <- u })

	// The segmenter drains the recorder until Stop closes its queue, so
	// trailing speech is still delivered after ctx is done.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(utterances)
		seg.Run(context.Background(), rec.Chunks())
	}()

	var (
		recording []float32
		stopErr   error
		stopped   = make(chan struct{})
	)
	go func() {
		defer close(stopped)
		<-ctx.Done()
		recording, stopErr = rec.Stop()
	}()

	n := 0
	for u := range utterances {
		n++
		handle(n, u)
	}
	wg.Wait()
	<-stopped

	if stopErr != nil {
		slog.Error("stop recording", "error", stopErr)
	}
	if len(recording) == 0 {
		return n, nil
	}
	stream := rec.Config()
	if err := audio.SaveRecording(sessionPath, recording, stream.SampleRate, stream.Channels); err != nil {
		return n, err
	}
	slog.Info("session recording saved", "path", sessionPath)
	return n, nil
}
