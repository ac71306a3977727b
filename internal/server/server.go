package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ndmitry/grabit/internal/bot"
	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/middleware"
	"github.com/ndmitry/grabit/internal/util"
	"github.com/ndmitry/grabit/internal/workspace"
)

// New builds the operational HTTP server: health probe and a
// read-only view of in-flight downloads.
func New(reg *bot.Registry, ws *workspace.Manager) *http.Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(middleware.LoadCORS())
	r.Use(middleware.NewLimiter(config.RateLimitMax, config.RateLimitWindow).Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":  "ok",
			"version": config.Version,
		})
	})

	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]interface{}{
			"active": reg.ActiveCount(),
			"tasks":  reg.Snapshot(),
			"limits": map[string]interface{}{
				"global":  config.MaxConcurrentDownloads,
				"perUser": config.MaxDownloadsPerUser,
			},
		}
		if space, err := util.GetDiskSpace(ws.Base()); err == nil {
			resp["disk"] = map[string]float64{
				"availGb": space.AvailGB,
				"totalGb": space.TotalGB,
			}
		}
		writeJSON(w, resp)
	})

	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
