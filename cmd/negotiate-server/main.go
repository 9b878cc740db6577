// Command negotiate-server serves a small API behind Negotiate
// authentication. It is both a reference deployment of the negotiate
// middleware and a target for negotiate-client.
//
// Usage:
//
//	negotiate-server -config server.yaml
//	negotiate-server -listen :8080 -keytab /etc/http.keytab -loglevel debug
//
// Routes:
//
//	GET /whoami   the authenticated session as JSON (requires Negotiate)
//	GET /metrics  Prometheus metrics
//	GET /healthz  liveness
//
// On Windows the SSPI provider is used; elsewhere a keytab is required
// (-keytab or KRB5_KTNAME).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smnsjas/go-negotiate/directory"
	ilog "github.com/smnsjas/go-negotiate/internal/log"
	"github.com/smnsjas/go-negotiate/negotiate"
	"github.com/smnsjas/go-negotiate/secctx"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	keytab := flag.String("keytab", "", "Service keytab (overrides config)")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (overrides config)")
	logFile := flag.String("logfile", "", "Write logs to this file with rotation (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *keytab != "" {
		cfg.Kerberos.Keytab = *keytab
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	logger, closeLogs, err := newLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.MaxSize, cfg.Log.MaxBackups)
	if err != nil {
		return err
	}
	defer closeLogs()

	nc, err := cfg.negotiateConfig()
	if err != nil {
		return err
	}
	nc.Logger = logger

	if cfg.Log.AuditFile != "" {
		audit, err := ilog.NewRotatingFile(cfg.Log.AuditFile, cfg.Log.MaxSize, cfg.Log.MaxBackups)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
		nc.AuditLogger = slog.New(ilog.NewRedactingHandler(slog.NewJSONHandler(audit, nil)))
	}

	useSSPI := secctx.SupportsSSPI() && (cfg.SSPI || cfg.Kerberos.Keytab == "")
	if useSSPI {
		p, err := secctx.NewSSPIProvider(secctx.SSPIConfig{Logger: logger})
		if err != nil {
			return err
		}
		nc.Provider = p
		nc.GroupNames = directory.OS{}
	} else {
		p, err := secctx.NewKerberosProvider(secctx.KerberosConfig{
			KeytabPath:     cfg.Kerberos.Keytab,
			ReloadInterval: time.Duration(cfg.Kerberos.ReloadInterval),
			MaxClockSkew:   time.Duration(cfg.Kerberos.MaxClockSkew),
			DecodePAC:      cfg.Kerberos.DecodePAC,
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		nc.Provider = p
		if cfg.Kerberos.DecodePAC {
			nc.GroupNames = directory.OS{}
		} else {
			nc.Groups = directory.OS{}
		}
	}
	if nc.UseDirectory {
		nc.Directory = directory.OS{}
	}
	if nc.UseOwner {
		nc.Owner = directory.OS{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	nc.Registerer = reg

	auth, err := negotiate.New(nc)
	if err != nil {
		return err
	}
	defer auth.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(auth, reg),
		ReadHeaderTimeout: readHeaderTimeout,
		ConnContext:       negotiate.ConnContext,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Listen, "scheme", auth.Scheme(), "tls", cfg.tlsEnabled(), "sspi", useSSPI)
		if cfg.tlsEnabled() {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// newRouter mounts the protected and public routes.
func newRouter(auth *negotiate.Authenticator, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/whoami", whoami)
	})
	return r
}

// whoami answers with the session, or 401 when the request passed through
// unauthenticated.
func whoami(w http.ResponseWriter, r *http.Request) {
	s, ok := negotiate.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

// newLogger builds the server logger. Output goes to stderr or, when file is
// set, to a rotating file; records pass through the redacting handler.
func newLogger(level, file string, maxSize int64, maxBackups int) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", level)
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if file != "" {
		rf, err := ilog.NewRotatingFile(file, maxSize, maxBackups)
		if err != nil {
			return nil, nil, err
		}
		out = rf
		closeFn = func() { _ = rf.Close() }
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	return slog.New(ilog.NewRedactingHandler(h)), closeFn, nil
}
