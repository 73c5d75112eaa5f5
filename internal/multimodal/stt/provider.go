package stt

import (
	"context"
	"io"
)

// TranscriptionRequest holds the parameters for audio transcription.
// When Audio is set it is read instead of opening FilePath, and FilePath only
// names the upload (its extension tells the model the container format).
type TranscriptionRequest struct {
	FilePath       string    `json:"file_path"`
	Audio          io.Reader `json:"-"`
	Language       string    `json:"language,omitempty"`
	Prompt         string    `json:"prompt,omitempty"`
	WordTimestamps bool      `json:"word_timestamps,omitempty"`
}

// Word is a single timed word, in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a timed phrase of a transcription, in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// TranscriptionResponse holds the transcription result.
type TranscriptionResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// STTProvider is the interface for speech-to-text backends.
type STTProvider interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	Name() string
}

// Loader is implemented by providers that must be loaded or probed once
// before the first transcription.
type Loader interface {
	Load(ctx context.Context) error
}

// attachWords places each word in the first segment whose span contains its start.
func attachWords(segments []Segment, words []Word) {
	for _, w := range words {
		for i := range segments {
			if w.Start >= segments[i].Start && w.Start <= segments[i].End {
				segments[i].Words = append(segments[i].Words, w)
				break
			}
		}
	}
}
