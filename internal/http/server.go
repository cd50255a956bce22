package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"soci/internal/log"
	"soci/internal/middleware/ratelimit"
	"soci/internal/middleware/security"
	"soci/internal/middleware/trace"
	"soci/internal/report"
	"soci/internal/services"
)

// Options tune the server. The zero value serves everything but reports.
type Options struct {
	Generator     report.Generator
	ReportTimeout time.Duration
	RateLimit     ratelimit.Config
	Headers       *security.HeadersConfig
	Logger        *log.Logger
	Now           func() time.Time
}

type Server struct {
	http.Server
	ledger        *services.LedgerService
	generator     report.Generator
	reportTimeout time.Duration
	validate      *validator.Validate
	logger        *log.Logger
	now           func() time.Time

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = report.DefaultTimeout
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:        ledger,
		generator:     opts.Generator,
		reportTimeout: opts.ReportTimeout,
		validate:      newValidator(),
		logger:        logger,
		now:           opts.Now,
		detector:      security.NewDetector(logger),
	}
	s.limiter = ratelimit.NewLimiter(opts.RateLimit, s.detector.ExtractClientIP, logger)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	r := chi.NewRouter()
	r.Use(
		s.tracer.Middleware,
		chimw.Recoverer,
		s.detector.Middleware,
		security.NewHeadersMiddleware(headers, logger).Middleware,
	)
	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/partners", s.handlePartners)
		r.Get("/financials", s.handleFinancials)
		r.Get("/ledger", s.handleExportLedger)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Put("/ledger", s.handleImportLedger)
			r.Delete("/ledger", s.handleResetLedger)
			r.Post("/projects", s.handleCreateProject)
			r.Post("/payments", s.handleRecordPayment)
			r.Post("/expenses", s.handleRecordExpense)
			r.Post("/dividends", s.handleRecordDividend)
			r.Post("/report", s.handleReport)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.ReportTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics returns request, rate limit and security counters.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}
