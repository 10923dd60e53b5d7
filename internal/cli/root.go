// Package cli implements the accessprobe command line.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	access "github.com/JohnPlummer/jp-go-access"
	"github.com/JohnPlummer/jp-go-access/config"
)

var (
	cfgPath     string
	isDebug     bool
	metricsAddr string
)

// session is the state shared by all subcommands after startup.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	observer *access.PrometheusObserver
}

// options returns the executor options for collaborator name.
func (p *session) options(name string) []access.Option {
	return append(p.cfg.Access.Options(),
		access.WithName(name),
		access.WithLogger(p.logger),
		access.WithObserver(p.observer),
	)
}

var state session

var rootCmd = &cobra.Command{
	Use:               "accessprobe",
	Short:             "Probe remote collaborators through the resilient access layer",
	Long:              `accessprobe sends requests, runs queries and streams result sets with bounded retry, per-attempt deadlines and batched reads.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/accessprobe/config.toml, ./accessprobe.toml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(newHTTPCmd(), newSQLCmd(), newRedisCmd(), newMongoCmd(), newKafkaCmd(), newSplitURLCmd())
}

func setup(cmd *cobra.Command, _ []string) error {
	var paths []string
	if cfgPath != "" {
		paths = append(paths, cfgPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return err
	}

	level := cfg.Logging.SlogLevel()
	if isDebug {
		level = slog.LevelDebug
	}
	logger := newLogger(cfg.Logging.Format, level)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	state = session{
		cfg:      cfg,
		logger:   logger,
		observer: access.NewPrometheusObserver(reg, "accessprobe"),
	}

	if metricsAddr != "" {
		serveMetrics(cmd.Context(), reg, logger)
	}
	return nil
}

func newLogger(format string, level slog.Level) *slog.Logger {
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		}))
	}
}

func serveMetrics(ctx context.Context, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
