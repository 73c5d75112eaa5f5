package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhilbhutani/voicepro/internal/rag"
)

type RAGHandler struct {
	client *rag.Client
}

func NewRAGHandler(c *rag.Client) *RAGHandler {
	return &RAGHandler{client: c}
}

type ragQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type ragIndexRequest struct {
	Documents []string `json:"documents"`
}

func (h *RAGHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	resp, err := h.client.Query(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeRAGError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RAGHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req ragIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents required")
		return
	}

	n, err := h.client.Index(r.Context(), req.Documents)
	if err != nil {
		writeRAGError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "indexed": n})
}

func writeRAGError(w http.ResponseWriter, err error) {
	if errors.Is(err, rag.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
