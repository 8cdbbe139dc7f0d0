// Command ripd runs one distance-vector routing daemon instance.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/framie/ripd/internal/clock"
	"github.com/framie/ripd/internal/config"
	"github.com/framie/ripd/internal/engine"
	"github.com/framie/ripd/internal/transport"
)

var opt struct {
	Help        bool
	ConfigPath  string
	LogLevel    string
	Jitter      bool
	MetricsAddr string
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.StringVarP(&opt.ConfigPath, "config", "c", "", "Path to the router config file (required)")
	pflag.StringVarP(&opt.LogLevel, "log-level", "v", "info", "Minimum log level (trace, debug, info, warn, error)")
	pflag.BoolVar(&opt.Jitter, "jitter", false, "Apply a small random delay before the first advertisement")
	pflag.StringVar(&opt.MetricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address")
}

func main() {
	pflag.Parse()

	if opt.Help || opt.ConfigPath == "" {
		fmt.Printf("usage: %s -c <config file> [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level, err := zerolog.ParseLevel(opt.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q: %v\n", opt.LogLevel, err)
		os.Exit(1)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Str("component", "ripd").Logger()

	cfg, err := config.Load(opt.ConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	inputPorts := cfg.InputPorts
	tr, err := transport.NewUDP(inputPorts, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind transport")
	}
	defer tr.Close()

	eng := engine.New(cfg, clock.NewReal(), tr, logger, opt.Jitter)

	if opt.MetricsAddr != "" {
		go serveMetrics(opt.MetricsAddr, eng, logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Uint16("router_id", uint16(cfg.RouterID)).Int("timer", cfg.TimerValue).Msg("routing daemon starting")
	eng.Run(ctx)
}

func serveMetrics(addr string, eng *engine.Engine, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		eng.Set().WritePrometheus(w)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics server stopped")
	}
}
