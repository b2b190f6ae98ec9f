// Package controlserver implements the loopback HTTP control surface the
// CLI talks to: start/stop/status/rotate-keys against a running engine
// process, following the teacher's internal/server package for request
// logging, rate limiting, and middleware chaining.
package controlserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScopeCreep-zip/spiritstream/internal/fanout"
	"github.com/ScopeCreep-zip/spiritstream/internal/observability/logging"
	"github.com/ScopeCreep-zip/spiritstream/internal/observability/metrics"
	"github.com/ScopeCreep-zip/spiritstream/internal/profilestore"
)

// Config wires the dependencies a Server needs to answer control-surface
// requests.
type Config struct {
	Addr       string
	APIToken   string
	RateLimit  RateLimitConfig
	Repository *profilestore.Repository
	Fanout     *fanout.Coordinator
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	// InputURL resolves the ingest URL used when starting a profile's output
	// groups. It is called with the profile name on every start request;
	// §3's "exactly one is consulted" invariant means a single value per
	// profile suffices here.
	InputURL func(profileName string) (string, error)
}

// Server is the HTTP control surface.
type Server struct {
	cfg     Config
	auth    *tokenAuthenticator
	limiter *rateLimiter
	http    *http.Server
}

// New builds a Server and its underlying http.Server, ready to be run via
// internal/serverutil.Run.
func New(cfg Config) (*Server, error) {
	auth, err := newTokenAuthenticator(cfg.APIToken)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		auth:    auth,
		limiter: newRateLimiter(cfg.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/profiles/{name}/start", s.handleStart)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/rotate-keys", s.handleRotateKeys)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.requestLogger()(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = s.auth.requireAuth(handler)
	if cfg.Metrics != nil {
		handler = cfg.Metrics.Middleware(handler)
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// HTTPServer exposes the underlying *http.Server for internal/serverutil.Run.
func (s *Server) HTTPServer() *http.Server {
	return s.http
}

func (s *Server) requestLogger() func(http.Handler) http.Handler {
	return logging.RequestLogger(logging.RequestLoggerConfig{Logger: s.cfg.Logger})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter, err := s.limiter.Allow(r.Context(), r.RemoteAddr)
		if err != nil {
			s.cfg.Logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", retryAfter.Truncate(time.Second).String())
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
