package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/sayflow/internal/api/handlers"
	"github.com/nikhilbhutani/sayflow/internal/api/middleware"
	"github.com/nikhilbhutani/sayflow/internal/auth"
	"github.com/nikhilbhutani/sayflow/internal/cache"
	"github.com/nikhilbhutani/sayflow/internal/config"
	"github.com/nikhilbhutani/sayflow/internal/queue"
	"github.com/nikhilbhutani/sayflow/internal/realtime"
	"github.com/nikhilbhutani/sayflow/internal/stt"
	"github.com/nikhilbhutani/sayflow/internal/usage"
)

type Router struct {
	mux         *chi.Mux
	db          *pgxpool.Pool
	redis       *redis.Client
	cfg         *config.Config
	auth        *auth.Middleware
	providers   *stt.Registry
	dialer      realtime.Dialer
	queueClient *queue.Client
	stop        chan struct{}
}

// NewRouter wires handlers to their backing services. db and rdb may be nil;
// routes that need them then answer 503.
func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	rt := &Router{
		mux:       chi.NewRouter(),
		db:        db,
		redis:     rdb,
		cfg:       cfg,
		auth:      auth.NewMiddleware(auth.NewVerifier(cfg.Auth)),
		providers: stt.NewRegistryFromConfig(cfg.STT),
		dialer: &realtime.WSDialer{
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
			PingInterval:     cfg.Realtime.PingInterval,
			PingTimeout:      cfg.Realtime.PingTimeout,
		},
		stop: make(chan struct{}),
	}
	if rdb != nil {
		rt.queueClient = queue.NewClient(cfg.Redis)
	}
	return rt
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	rl := middleware.NewRateLimiter(100, 200)
	go rl.Cleanup(time.Minute, rt.stop)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler()
	var respCache handlers.ResponseCache
	if rt.db != nil {
		health.AddCheck("database", rt.db)
	}
	if rt.redis != nil {
		c := cache.NewCache(rt.redis, "sayflow:")
		health.AddCheck("redis", c)
		respCache = c
	}
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	var (
		transcriptionStore handlers.TranscriptionStore
		statsStore         handlers.StatsStore
	)
	if rt.db != nil {
		usageSvc := usage.NewService(rt.db)
		transcriptionStore = usageSvc
		statsStore = usageSvc
	}
	var usageQueue handlers.UsageEnqueuer
	if rt.queueClient != nil {
		usageQueue = rt.queueClient
	}

	realtimeCfg := realtime.Config{
		URL:                   rt.cfg.Realtime.URL,
		APIKey:                rt.cfg.Realtime.OpenAIKey,
		MaxClientMessageBytes: rt.cfg.Realtime.MaxMessageBytes,
		Session: realtime.SessionConfig{
			TranscriptionModel: rt.cfg.Realtime.TranscriptionModel,
			VADThreshold:       rt.cfg.Realtime.VADThreshold,
			PrefixPaddingMs:    rt.cfg.Realtime.PrefixPaddingMs,
			SilenceDurationMs:  rt.cfg.Realtime.SilenceDurationMs,
		},
	}

	// API v1
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", health.Health)

		providersH := handlers.NewProvidersHandler(rt.providers)
		r.Get("/providers", providersH.List)

		// Realtime route
		realtimeH := handlers.NewRealtimeHandler(rt.dialer, realtimeCfg, usageQueue, rt.cfg.Server.CORSOrigins)
		r.Group(func(r chi.Router) {
			if rt.cfg.Auth.RequireRealtime {
				r.Use(rt.auth.Require)
			} else {
				r.Use(rt.auth.Optional)
			}
			r.Get("/realtime/transcribe", realtimeH.Transcribe)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(rt.auth.Require)

			transcriptionH := handlers.NewTranscriptionHandler(transcriptionStore, respCache, rt.providers, handlers.TranscriptionLimits{
				MaxAudioBytes:   rt.cfg.MaxAudioBytes(),
				MaxAudioSeconds: rt.cfg.Limits.MaxAudioSeconds,
			})
			r.Post("/transcriptions", transcriptionH.Create)

			statsH := handlers.NewStatsHandler(statsStore)
			r.Get("/stats", statsH.Get)
		})
	})

	return r
}

// Close releases the queue client and stops background housekeeping.
func (rt *Router) Close() error {
	close(rt.stop)
	if rt.queueClient != nil {
		return rt.queueClient.Close()
	}
	return nil
}
