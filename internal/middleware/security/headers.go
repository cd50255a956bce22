package security

import (
	"net/http"

	"github.com/unrolled/secure"

	"soci/internal/log"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP            string
	HSTSMaxAge     int64
	ReferrerPolicy string
	SSLRedirect    bool
	IsDevelopment  bool
}

// DefaultHeadersConfig returns the headers for a JSON API that is never framed.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:            "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:     31536000, // 1 year
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}
}

// HeadersMiddleware applies security headers to responses
type HeadersMiddleware struct {
	secure *secure.Secure
	logger *log.Logger
}

// NewHeadersMiddleware creates a new security headers middleware
func NewHeadersMiddleware(config HeadersConfig, logger *log.Logger) *HeadersMiddleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &HeadersMiddleware{
		secure: secure.New(secure.Options{
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			ContentSecurityPolicy: config.CSP,
			ReferrerPolicy:        config.ReferrerPolicy,
			PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
			STSSeconds:            config.HSTSMaxAge,
			STSIncludeSubdomains:  true,
			SSLRedirect:           config.SSLRedirect,
			SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
			IsDevelopment:         config.IsDevelopment,
		}),
		logger: logger.WithComponent(log.ComponentSecurity),
	}
}

// Middleware returns the HTTP middleware function
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.secure.Process(w, r); err != nil {
			h.logger.WarnContext(r.Context(), "Secure headers blocked request", log.FieldError, err, log.FieldPath, r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
