/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestLogger: Structured request logging (zerolog)
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for frontend
  5. RateLimit:     Per-IP token bucket (API routes)
  6. Cache:         Short-TTL response cache for GETs (API routes)

ROUTE GROUPS:
  /api/devices         Device pool
  /api/reservations    Reserve + list
  /api/returns         Whole-day returns
  /api/availability    Taken/free breakdown
  /api/stats           Monthly rollups
  /api/history         Audit events
  /api/export/*        CSV downloads
  /api/settings/*      Operator settings
  /api/scenarios/*     Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Options tunes the HTTP-side middleware. Zero values disable rate
// limiting and caching, which the tests rely on.
type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
	CacheTTL           time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerSec > 0 {
			r.Use(RateLimit(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst))
		}
		if h.Cache != nil && opts.CacheTTL > 0 {
			r.Use(Cache(h.Cache, opts.CacheTTL))
		}

		r.Get("/devices", h.GetPool)

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
		})

		r.Post("/returns", h.CreateReturn)
		r.Get("/availability", h.GetAvailability)
		r.Get("/stats", h.GetStats)
		r.Get("/history", h.GetHistory)

		r.Route("/export", func(r chi.Router) {
			r.Get("/history.csv", h.ExportHistoryCSV)
			r.Get("/stats.csv", h.ExportStatsCSV)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/{key}", h.GetSetting)
			r.Put("/{key}", h.PutSetting)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Landing page: a plain index so hitting the root in a browser
	// shows something useful instead of a 404.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tablet Pool</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Tablet Pool API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/devices">/api/devices</a> - Device pool</li>
<li>/api/reservations?date=YYYY-MM-DD - Active reservations</li>
<li>/api/availability?date=YYYY-MM-DD&amp;block=... - Taken/free devices</li>
<li>/api/stats?year=YYYY&amp;month=M - Monthly rollups</li>
<li><a href="/api/history">/api/history</a> - Audit events</li>
<li>/api/export/history.csv - History spreadsheet</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
