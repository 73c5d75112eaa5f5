package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/voicepro/internal/pipeline"
	"github.com/nikhilbhutani/voicepro/internal/queue"
)

type Transcriber interface {
	TranscribeFile(ctx context.Context, path, language string) (*pipeline.FileResult, error)
}

type TranscribeWorker struct {
	transcriber Transcriber
}

func NewTranscribeWorker(t Transcriber) *TranscribeWorker {
	return &TranscribeWorker{transcriber: t}
}

func (w *TranscribeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.TranscribeFilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	defer func() {
		if err := os.Remove(payload.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove spooled upload", "path", payload.Path, "error", err)
		}
	}()

	slog.Info("transcribing spooled file", "file", payload.Filename, "language", payload.Language)

	res, err := w.transcriber.TranscribeFile(ctx, payload.Path, payload.Language)
	if err != nil {
		return fmt.Errorf("transcribe %s: %w", payload.Filename, err)
	}
	if payload.Filename != "" {
		res.File = payload.Filename
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write(data); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	slog.Info("transcription job complete", "file", payload.Filename, "language", res.Language)
	return nil
}
