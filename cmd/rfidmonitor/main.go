// cmd/rfidmonitor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/rfid-monitor/internal/api"
	"github.com/tamzrod/rfid-monitor/internal/config"
	"github.com/tamzrod/rfid-monitor/internal/console"
	"github.com/tamzrod/rfid-monitor/internal/events"
	"github.com/tamzrod/rfid-monitor/internal/monitor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rfidmonitor <config.yaml>")
		os.Exit(2)
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		fatal("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	log := newLogger(cfg.Monitor.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Event sinks
	// --------------------

	hub := events.NewHub()
	sinks := events.Multi{hub, events.NewLogSink(log.With().Str("component", "events").Logger())}

	if n := cfg.Monitor.NATS; n != nil {
		natsSink, closeNATS, err := events.ConnectNATS(n.URL, n.Subject, log.With().Str("component", "nats").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer closeNATS()
		sinks = append(sinks, natsSink)
	}

	// --------------------
	// Build per-line pipelines
	// --------------------

	svc, err := monitor.New(cfg, sinks, log)
	if err != nil {
		log.Fatal().Err(err).Msg("monitor build failed")
	}

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error().Err(err).Str("component", name).Msg("stopped with error")
				stop()
			}
		}()
	}

	// ---- HTTP API ----
	if h := cfg.Monitor.HTTP; h != nil {
		lines := make([]api.Line, 0, len(svc.Lines()))
		for _, l := range svc.Lines() {
			lines = append(lines, l)
		}
		srv := api.New(lines, hub, log.With().Str("component", "http").Logger())
		run("http", func() error { return srv.Run(ctx, h.Listen) })
	}

	// ---- console terminal ----
	if c := cfg.Monitor.Console; c != nil {
		term := console.NewServer(c.Listen, svc.Shells(), log.With().Str("component", "console").Logger())
		term.OnError(svc.CommandFailed)
		run("console", func() error { return term.Run(ctx) })
	}

	// ---- pollers ----
	run("monitor", func() error {
		svc.Run(ctx)
		return nil
	})

	// --------------------
	// Block until SIGINT/SIGTERM
	// --------------------
	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if c.Format == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
