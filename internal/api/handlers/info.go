package handlers

import "net/http"

const (
	ServiceName    = "lbrxVoicePro"
	ServiceVersion = "1.0.0"
)

// Info describes the service and its main endpoints.
func Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    ServiceName,
		"version": ServiceVersion,
		"endpoints": map[string]string{
			"transcription": "/api/v1/transcribe",
			"stream":        "/api/v1/transcribe/stream",
			"jobs":          "/api/v1/transcribe/jobs",
			"synthesis":     "/api/v1/synthesize",
			"dataset":       "/api/v1/dataset/collect",
			"export":        "/api/v1/dataset/export",
			"rag":           "/api/v1/rag/query",
		},
	})
}
