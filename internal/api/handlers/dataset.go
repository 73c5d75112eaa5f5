package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/voicepro/internal/dataset"
)

type Collector interface {
	CollectSample(ctx context.Context, audioPath, speakerID, language string) (*dataset.Sample, error)
	CollectBatch(ctx context.Context, paths []string, speakerID, language string) []dataset.BatchResult
	SaveMetadata(format string) (string, error)
	Summary() dataset.Summary
	Export(format string) (any, error)
	ListSamples(ctx context.Context, speakerID string) ([]dataset.Sample, error)
}

type DatasetHandler struct {
	collector       Collector
	defaultLanguage string
	maxUpload       int64
}

func NewDatasetHandler(c Collector, defaultLanguage string, maxUpload int64) *DatasetHandler {
	return &DatasetHandler{collector: c, defaultLanguage: defaultLanguage, maxUpload: maxUpload}
}

// Collect adds one uploaded recording to the dataset.
func (h *DatasetHandler) Collect(w http.ResponseWriter, r *http.Request) {
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

	path, cleanup, err := saveTemp(fh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	sample, err := h.collector.CollectSample(r.Context(), path,
		formValue(r, "speaker_id", "default"),
		formValue(r, "language", h.defaultLanguage))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// CollectBatch adds every uploaded "file" part. It answers 200 with one
// result per file even when some of them fail.
func (h *DatasetHandler) CollectBatch(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r, h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errNoFile.Error())
		return
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		path, cleanup, err := saveTemp(fh)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer cleanup()
		paths = append(paths, path)
	}

	results := h.collector.CollectBatch(r.Context(), paths,
		formValue(r, "speaker_id", "default"),
		formValue(r, "language", h.defaultLanguage))
	for i := range results {
		results[i].Path = uploadName(files[i].Filename)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}

func (h *DatasetHandler) Save(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = dataset.FormatJSONL
	}

	path, err := h.collector.SaveMetadata(format)
	if errors.Is(err, dataset.ErrUnknownFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    path,
		"format":  format,
		"samples": h.collector.Summary().TotalSamples,
	})
}

// Export renders the dataset in a training layout: ?format=mimi (default) or moshi.
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = dataset.ExportMimi
	}

	out, err := h.collector.Export(format)
	if errors.Is(err, dataset.ErrUnknownFormat) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DatasetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collector.Summary())
}

func (h *DatasetHandler) Samples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.collector.ListSamples(r.Context(), r.URL.Query().Get("speaker_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples, "count": len(samples)})
}
