package httpapi

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/hub"
	"github.com/DoyleJ11/chart-collab-backend/internal/ws"
)

type Config struct {
	// AllowedOrigins drives both CORS and the socket origin check.
	AllowedOrigins []string
	Socket         ws.Options
}

func SetupRoutes(h *hub.Hub, cfg Config, log *zap.Logger) http.Handler {
	log = log.Named("http")
	if cfg.Socket.OriginPatterns == nil {
		cfg.Socket.OriginPatterns = cfg.AllowedOrigins
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Route("/rooms", func(r chi.Router) {
		r.Post("/create", CreateRoom(h, log))
		r.Get("/join", ws.Handler(h, cfg.Socket, log))
		r.Get("/{roomId}", RoomInfo(h))
	})
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			log.Info("handled",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", m.Code),
				zap.Duration("duration", m.Duration),
				zap.Int64("bytes", m.Written))
		})
	}
}
