package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/hub"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/metadata"
	"github.com/Atomars1/stroam-mvp/internal/platform/logger"
	"github.com/Atomars1/stroam-mvp/internal/platform/metrics"
	"github.com/Atomars1/stroam-mvp/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Identity       identity.Provider
	Titles         *metadata.Titles
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	OriginPatterns []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(d.Log))
	r.Use(metrics.RequestMiddleware(d.Metrics))

	// Public routes
	r.Post("/rooms", CreateRoom(d.Hub, d.Log))
	r.Get("/rooms/{room}", GetRoom(d.Hub, d.Titles))
	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if n, err := d.Hub.Count(ctx); err == nil {
			d.Metrics.SetActiveRooms(n)
		}
	}))
	r.Get("/ws", ws.Handler(ws.Deps{
		Hub:            d.Hub,
		Identity:       d.Identity,
		Titles:         d.Titles,
		Metrics:        d.Metrics,
		Log:            d.Log,
		OriginPatterns: d.OriginPatterns,
	}))
	return r
}
