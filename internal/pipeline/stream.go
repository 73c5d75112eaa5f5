package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/voicepro/internal/audio"
	"github.com/nikhilbhutani/voicepro/internal/events"
)

// StreamEvent carries either a Result or the error that ended the stream.
type StreamEvent struct {
	Result *Result
	Err    error
}

// TranscribeStream consumes little-endian PCM16 chunks and emits one Result
// per utterance, in order. A chunk the detector judges as speech is buffered;
// the first non-speech chunk after buffered speech flushes the buffer to the
// model. Transcription runs on its own goroutine so chunks keep being
// consumed while the model works.
//
// The stream ends when chunks is closed or ctx is done. Any failure is sent
// once as a final event with Err set. The returned channel is closed after
// the last event and must be drained.
func (p *Pipeline) TranscribeStream(ctx context.Context, chunks <-chan []byte, language string) <-chan StreamEvent {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan StreamEvent)
	utterances := make(chan []float32, p.opts.QueueSize)

	var consumeErr error
	go func() {
		defer close(utterances)
		consumeErr = p.consume(ctx, chunks, utterances)
	}()

	go func() {
		defer close(out)
		defer cancel()

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for u := range utterances {
			res, err := p.transcribeSamples(ctx, u, language, "stream")
			if err != nil {
				send(StreamEvent{Err: err})
				return
			}
			if err := p.opts.Events.Publish(ctx, events.SubjectTranscriptionComplete, res); err != nil {
				slog.Warn("publish transcription event failed", "error", err)
			}
			if !send(StreamEvent{Result: res}) {
				return
			}
		}
		// consumeErr is written before utterances is closed.
		if consumeErr != nil {
			send(StreamEvent{Err: consumeErr})
		}
	}()

	return out
}

func (p *Pipeline) consume(ctx context.Context, chunks <-chan []byte, utterances chan<- []float32) error {
	var buffered [][]float32

	flush := func() bool {
		p.opts.Metrics.ObserveFlush()
		u := audio.Concat(buffered)
		buffered = nil
		select {
		case utterances <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-chunks:
			if !ok {
				if len(buffered) > 0 {
					if p.opts.FlushOnClose {
						flush()
					} else {
						slog.Debug("dropping unflushed speech at stream end", "chunks", len(buffered))
					}
				}
				return nil
			}
			p.opts.Metrics.ObserveChunk()

			samples, err := audio.PCM16ToFloat32(raw)
			if err != nil {
				return fmt.Errorf("decode chunk: %w", err)
			}
			speech, err := p.detector.IsSpeech(ctx, samples)
			if err != nil {
				return fmt.Errorf("detect speech: %w", err)
			}

			if speech {
				buffered = append(buffered, samples)
			} else if len(buffered) > 0 {
				if !flush() {
					return nil
				}
			}
		}
	}
}
