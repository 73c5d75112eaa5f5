package queue

const (
	TypeTranscribeFile = "transcribe:file"

	QueueTranscription = "transcription"
)

// TranscribeFilePayload points a worker at an uploaded file in the spool
// directory shared with the API. The worker removes the file when done.
type TranscribeFilePayload struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Language string `json:"language"`
}
