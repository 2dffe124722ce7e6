/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, logged by logging.Wrapper
  2. RealIP:     Client address behind the reverse proxy
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Request counts and durations per route
  5. Secure:     Security headers (HTTPS redirect in production)
  6. CORS:       Cross-origin requests for the reporting frontend
  7. RateLimit:  Requests per minute per client IP
  8. Timeout:    Cancels report builds that run too long

ROUTE GROUPS:
  /api/books/*      Books and appends
  /api/reports/*    Configured report definitions
  /api/parties/*    Party ledgers and balance slips
  /healthz          Liveness
  /metrics          Prometheus

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
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/warp/ledger-engine/logging"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins    []string
	RateLimit      int // requests per minute per IP; 0 disables
	RequestTimeout time.Duration
	Production     bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(secureHeaders(opts.Production))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag", "Content-Disposition"},
		AllowCredentials: true,
	}))
	if opts.RateLimit > 0 {
		r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	wrap := func(name string, fn logging.HandlerFunc) http.HandlerFunc {
		return logging.Wrapper(name, h.Log, fn)
	}

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", wrap("ListBooks", h.ListBooks))
			r.Get("/{book}/ledger", wrap("BookLedger", h.BookLedger))
			r.Get("/{book}/export", wrap("ExportBook", h.ExportBook))
			r.Post("/{book}/records", wrap("AppendRecords", h.AppendRecords))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", wrap("ListReports", h.ListReports))
			r.Get("/{id}", wrap("RunReport", h.RunReport))
			r.Get("/{id}/export", wrap("ExportReport", h.ExportReport))
		})

		r.Route("/parties", func(r chi.Router) {
			r.Get("/{code}/ledger", wrap("PartyLedger", h.PartyLedger))
			r.Get("/{code}/balance-slip", wrap("BalanceSlip", h.BalanceSlip))
		})

		r.Get("/cashbook", wrap("CashBook", h.CashBook))
		r.Get("/outstanding", wrap("Outstanding", h.Outstanding))
		r.Get("/accounts", wrap("ListAccounts", h.ListAccounts))
	})

	return r
}

func secureHeaders(production bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	}).Handler
}
