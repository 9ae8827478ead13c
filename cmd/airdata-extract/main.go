// Package main provides the airdata-extract command.
//
// Usage:
//
//	airdata-extract extract <batch|streaming>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/airdata-extract/internal/airquality/airkorea"
	"github.com/breatheroute/airdata-extract/internal/broker"
	"github.com/breatheroute/airdata-extract/internal/config"
	"github.com/breatheroute/airdata-extract/internal/pipeline"
	"github.com/breatheroute/airdata-extract/internal/storage/gcs"
	"github.com/breatheroute/airdata-extract/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "airdata-extract"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage: airdata-extract extract <batch|streaming>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log := zerolog.New(stderr).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	mode, err := parseArgs(args)
	if err != nil {
		log.Error().Err(err).Msg("invalid command line")
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}

	cfg, err := config.Load(log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return exitError
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("mode", mode.String()).
		Msg("starting extract")

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := telemetry.NewRunMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		return exitError
	}

	pcfg := pipeline.Config{
		Fetcher: airkorea.NewClient(airkorea.ClientConfig{
			BaseURL:    cfg.AirKorea.BaseURL,
			ServiceKey: cfg.AirKorea.ServiceKey,
			Timeout:    cfg.AirKorea.Timeout,
		}),
		Query:    cfg.Query,
		Bucket:   cfg.Bucket,
		Path:     cfg.Path,
		FileName: cfg.FileName,
		Topic:    cfg.Stream.Topic,
		Wait:     cfg.Stream.Wait,
		Logger:   log,
		Tracer:   tp.Tracer,
		Metrics:  metrics,
	}

	// Only the sink for the selected mode is connected.
	switch mode {
	case pipeline.ModeBatch:
		storageClient, err := gcs.NewClient(ctx, gcs.Config{Logger: log})
		if err != nil {
			log.Error().Err(err).Msg("failed to create storage client")
			return exitError
		}
		defer storageClient.Close()
		pcfg.Uploader = storageClient
	case pipeline.ModeStreaming:
		publisher, err := broker.NewPublisher(ctx, broker.Config{
			ProjectID: cfg.GCPProjectID,
			Source:    cfg.Path.Source,
			Logger:    log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create publisher")
			return exitError
		}
		defer publisher.Close()
		pcfg.Publisher = publisher
	}

	result, err := pipeline.New(pcfg).Run(ctx, mode)
	if err != nil {
		log.Error().Err(err).Msg("extract failed")
		return exitError
	}

	if result.Outcome == pipeline.OutcomeSkipped {
		fmt.Fprintln(stdout, result.Response)
	}
	log.Info().
		Str("run_id", result.RunID).
		Str("outcome", string(result.Outcome)).
		Int("records", result.Records).
		Interface("destination", result.Destination).
		Msg("extract finished")
	return exitOK
}

// parseArgs accepts exactly "extract <mode>".
func parseArgs(args []string) (pipeline.Mode, error) {
	if len(args) != 2 || args[0] != "extract" {
		return "", errUsage
	}
	return pipeline.ParseMode(args[1])
}
