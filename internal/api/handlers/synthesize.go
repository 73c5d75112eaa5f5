package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/voicepro/internal/multimodal/tts"
)

const defaultTemperature = 0.7

type SynthesizeHandler struct {
	tts tts.TTSProvider
}

func NewSynthesizeHandler(p tts.TTSProvider) *SynthesizeHandler {
	return &SynthesizeHandler{tts: p}
}

type synthesizeRequest struct {
	Text        string   `json:"text"`
	SpeakerID   string   `json:"speaker_id,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	// Rate and Volume are relative percentages such as "+10%".
	Rate   string `json:"rate,omitempty"`
	Volume string `json:"volume,omitempty"`
}

// Synthesize renders text to a WAV attachment.
func (h *SynthesizeHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	speed, err := tts.ParsePercent(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	volume, err := tts.ParsePercent(req.Volume)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	result, err := h.tts.Synthesize(r.Context(), tts.SynthesisRequest{
		Input:       req.Text,
		Voice:       req.SpeakerID,
		Speed:       speed,
		Temperature: temperature,
		Volume:      volume,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=speech.wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Audio)
}
