package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/pipeline"
)

const (
	streamWriteWait = 10 * time.Second
	// streamReadLimit caps one binary frame; 1 MiB is ~30 s of 16 kHz PCM16.
	streamReadLimit = 1 << 20
	streamQueueSize = 32
)

type StreamTranscriber interface {
	TranscribeStream(ctx context.Context, chunks <-chan []byte, language string) <-chan pipeline.StreamEvent
	DefaultLanguage() string
}

type StreamHandler struct {
	pipeline StreamTranscriber
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewStreamHandler(p StreamTranscriber, m *metrics.Metrics, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		pipeline: p,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Stream runs one live transcription session. The client sends binary
// PCM16 frames and an empty frame to finish; every utterance is answered with
// a JSON result. A failure is reported as {"error": msg} and closes the
// session.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	language := r.URL.Query().Get("language")
	if language == "" {
		language = h.pipeline.DefaultLanguage()
	}

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()
	slog.Info("stream session started", "session", session, "language", language)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks := make(chan []byte, streamQueueSize)
	go h.readFrames(ctx, conn, session, chunks)

	sent := 0
	events := h.pipeline.TranscribeStream(ctx, chunks, language)
	for ev := range events {
		var payload any = ev.Result
		if ev.Err != nil {
			slog.Error("stream session failed", "session", session, "error", ev.Err)
			payload = map[string]string{"error": ev.Err.Error()}
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(payload); err != nil {
			slog.Warn("stream write failed", "session", session, "error", err)
			cancel()
			break
		}
		if ev.Err != nil {
			cancel()
			break
		}
		sent++
	}
	for range events {
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	slog.Info("stream session ended", "session", session, "results", sent)
}

// readFrames forwards binary frames to chunks until the client sends an empty
// frame or goes away, then closes chunks.
func (h *StreamHandler) readFrames(ctx context.Context, conn *websocket.Conn, session string, chunks chan<- []byte) {
	defer close(chunks)
	conn.SetReadLimit(streamReadLimit)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("stream reader stopped", "session", session, "error", err)
			}
			return
		}
		if len(data) == 0 {
			return
		}
		if msgType != websocket.BinaryMessage {
			slog.Debug("ignoring non-binary frame", "session", session)
			continue
		}

		select {
		case chunks <- data:
		case <-ctx.Done():
			return
		}
	}
}
