package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/config"
	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/sink"
	syncengine "github.com/SKR-karthick/ReachInbox-Assignment/pkg/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, closeSink, err := buildSink(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up event sink")
	}
	defer closeSink()

	engine := syncengine.New(cfg, log, out)
	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync engine")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	if err := engine.Stop(); err != nil {
		log.Error().Err(err).Msg("Shutdown did not complete cleanly")
		os.Exit(1)
	}
}

// buildSink wires the collaborator side of the event stream: every record is
// logged, and additionally published to a Redis stream when configured.
func buildSink(ctx context.Context, cfg *config.Config, log zerolog.Logger) (sink.Sink, func(), error) {
	logSink := &sink.LogSink{Log: log}
	if !cfg.Redis.Enabled {
		return logSink, func() {}, nil
	}
	redisSink, err := sink.NewRedisSink(ctx, cfg.Redis.Addr, cfg.Redis.Stream)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Redis.Addr).Str("stream", cfg.Redis.Stream).Msg("Publishing messages to Redis stream")
	return sink.Tee{logSink, redisSink}, func() { _ = redisSink.Close() }, nil
}
