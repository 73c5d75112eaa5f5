package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/voicepro/internal/api/handlers"
	"github.com/nikhilbhutani/voicepro/internal/api/middleware"
	"github.com/nikhilbhutani/voicepro/internal/auth"
	"github.com/nikhilbhutani/voicepro/internal/config"
	"github.com/nikhilbhutani/voicepro/internal/metrics"
	"github.com/nikhilbhutani/voicepro/internal/multimodal/tts"
	"github.com/nikhilbhutani/voicepro/internal/rag"
)

// Transcriber is the voice pipeline as seen by the HTTP layer.
type Transcriber interface {
	handlers.FileTranscriber
	handlers.StreamTranscriber
	Initialize(ctx context.Context) error
}

// Deps are the services the router serves. DB, Redis and Jobs are optional.
type Deps struct {
	Config    *config.Config
	Pipeline  Transcriber
	TTS       tts.TTSProvider
	Collector handlers.Collector
	Jobs      handlers.JobQueue
	RAG       *rag.Client
	Metrics   *metrics.Metrics
	DB        *pgxpool.Pool
	Redis     *redis.Client
}

type Router struct {
	mux  *chi.Mux
	deps Deps
	jwt  *auth.JWTMiddleware
	rl   *middleware.RateLimiter
}

func NewRouter(deps Deps) *Router {
	if deps.RAG == nil {
		deps.RAG = rag.NewClient("")
	}
	return &Router{
		mux:  chi.NewRouter(),
		deps: deps,
		jwt:  auth.NewJWTMiddleware(deps.Config.Auth.JWTSecret),
		rl:   middleware.NewRateLimiter(float64(deps.Config.Server.RateLimit), deps.Config.Server.RateBurst),
	}
}

// Close stops background work owned by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config
	maxUpload := int64(cfg.Server.MaxUpload) << 20

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics(rt.deps.Metrics))
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(rt.rl.Limit)

	// Info, health and metrics (no auth)
	checks := map[string]handlers.Pinger{}
	if rt.deps.DB != nil {
		checks["database"] = rt.deps.DB
	}
	if rdb := rt.deps.Redis; rdb != nil {
		checks["redis"] = handlers.RedisPinger(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	health := handlers.NewHealthHandler(checks, rt.deps.Pipeline.Initialize)
	r.Get("/", handlers.Info)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Handle("/metrics", rt.deps.Metrics.Handler())
	}

	transcribeH := handlers.NewTranscribeHandler(rt.deps.Pipeline, rt.deps.Jobs, cfg.Queue.SpoolDir, maxUpload)
	streamH := handlers.NewStreamHandler(rt.deps.Pipeline, rt.deps.Metrics, cfg.Server.AllowedOrigins)
	synthH := handlers.NewSynthesizeHandler(rt.deps.TTS)
	datasetH := handlers.NewDatasetHandler(rt.deps.Collector, cfg.Pipeline.DefaultLanguage, maxUpload)
	ragH := handlers.NewRAGHandler(rt.deps.RAG)
	allow := rt.jwt.RequirePermission

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/transcribe", func(r chi.Router) {
			r.Use(allow(auth.PermTranscribe))
			r.Post("/", transcribeH.Transcribe)
			r.Get("/stream", streamH.Stream)
			r.Post("/jobs", transcribeH.EnqueueJob)
			r.Get("/jobs/{id}", transcribeH.JobStatus)
		})

		r.With(allow(auth.PermSynthesize)).Post("/synthesize", synthH.Synthesize)

		r.Route("/dataset", func(r chi.Router) {
			r.With(allow(auth.PermDatasetWrite)).Post("/collect", datasetH.Collect)
			r.With(allow(auth.PermDatasetWrite)).Post("/collect/batch", datasetH.CollectBatch)
			r.With(allow(auth.PermDatasetWrite)).Post("/save", datasetH.Save)
			r.With(allow(auth.PermDatasetRead)).Get("/summary", datasetH.Summary)
			r.With(allow(auth.PermDatasetRead)).Get("/samples", datasetH.Samples)
			r.With(allow(auth.PermDatasetRead)).Get("/export", datasetH.Export)
		})

		r.Route("/rag", func(r chi.Router) {
			r.Use(allow(auth.PermRAG))
			r.Post("/query", ragH.Query)
			r.Post("/index", ragH.Index)
		})
	})

	return r
}
