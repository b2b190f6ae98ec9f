// Package serverutil runs the control surface's HTTP server with graceful,
// context-bounded shutdown, the same lifecycle the daemon's own long-running
// encoder supervisors follow: start, signal on readiness, and on
// cancellation stop accepting new work before tearing down.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
)

// TLSConfig defines certificate and key paths for enabling TLS listeners.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config controls the HTTP server runtime behaviour.
type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	Ready           chan<- struct{}
	Logger          *zerolog.Logger // optional; lifecycle events are skipped when nil
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run starts the provided HTTP server and blocks until it stops. If TLS
// certificate and key files are provided, the server will listen with TLS.
// When the context is cancelled, Run attempts a graceful shutdown bounded by
// ShutdownTimeout.
func Run(ctx context.Context, cfg Config) error {
	const op = "serverutil.Run"
	if cfg.Server == nil {
		return corebus.Newf(op, corebus.KindInvalidArgument, "server is required")
	}

	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return corebus.Newf(op, corebus.KindInvalidArgument, "both TLS cert file and key file must be provided")
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return corebus.New(op, corebus.KindIO, err)
	}

	serve := cfg.Server.Serve
	if cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			ln.Close()
			return corebus.New(op, corebus.KindIO, err)
		}

		tlsCfg := cfg.Server.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		} else {
			tlsCfg = tlsCfg.Clone()
		}
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		cfg.Server.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info().Str("addr", ln.Addr().String()).Bool("tls", cfg.TLS.CertFile != "").Msg("control server listening")
	}

	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return corebus.New(op, corebus.KindIO, err)
	case <-ctx.Done():
	}

	if cfg.Logger != nil {
		cfg.Logger.Info().Dur("timeout", timeout).Msg("control server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return corebus.New(op, corebus.KindIO, err)
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return corebus.New(op, corebus.KindTimeout, shutdownErr)
		}
		return corebus.New(op, corebus.KindTimeout, shutdownCtx.Err())
	}

	if shutdownErr != nil {
		return corebus.New(op, corebus.KindIO, shutdownErr)
	}
	return nil
}
