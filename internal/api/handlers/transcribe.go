package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/voicepro/internal/pipeline"
	"github.com/nikhilbhutani/voicepro/internal/queue"
)

type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path, language string) (*pipeline.FileResult, error)
	DefaultLanguage() string
}

type JobQueue interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscribeFilePayload) (*queue.Job, error)
	JobStatus(id string) (*queue.Job, error)
}

type TranscribeHandler struct {
	pipeline  FileTranscriber
	jobs      JobQueue
	spoolDir  string
	maxUpload int64
}

// NewTranscribeHandler serves synchronous transcription and, when jobs is
// not nil, asynchronous jobs spooled under spoolDir.
func NewTranscribeHandler(p FileTranscriber, jobs JobQueue, spoolDir string, maxUpload int64) *TranscribeHandler {
	return &TranscribeHandler{pipeline: p, jobs: jobs, spoolDir: spoolDir, maxUpload: maxUpload}
}

// Transcribe handles a multipart upload with a file and optional language.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r, h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh, err := formFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	language := formValue(r, "language", h.pipeline.DefaultLanguage())

	path, cleanup, err := saveTemp(fh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	res, err := h.pipeline.TranscribeFile(r.Context(), path, language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res.File = uploadName(fh.Filename)

	writeJSON(w, http.StatusOK, res)
}

// EnqueueJob spools the upload and schedules a background transcription.
func (h *TranscribeHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	if err := parseUpload(w, r, h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh, err := formFile(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := spool(fh, h.spoolDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := h.jobs.EnqueueTranscription(r.Context(), queue.TranscribeFilePayload{
		Path:     path,
		Filename: uploadName(fh.Filename),
		Language: formValue(r, "language", h.pipeline.DefaultLanguage()),
	})
	if err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("transcription job enqueued", "job_id", job.ID, "file", uploadName(fh.Filename))
	writeJSON(w, http.StatusAccepted, job)
}

func (h *TranscribeHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	job, err := h.jobs.JobStatus(chi.URLParam(r, "id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}
