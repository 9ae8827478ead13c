// Package config resolves the extractor configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/breatheroute/airdata-extract/internal/airquality"
	"github.com/breatheroute/airdata-extract/internal/datalake"
)

// PartitionTimeLayout is the format of DATALAKE_PARTITION_TIME.
const PartitionTimeLayout = "2006-01-02T15"

// Config is the resolved configuration for one extractor run.
type Config struct {
	// Env is the deployment environment (development, staging, production).
	Env      string
	LogLevel zerolog.Level

	AirKorea AirKoreaConfig
	Query    airquality.Query

	Bucket   datalake.BucketCoordinates
	Path     datalake.PathCoordinates
	FileName string

	GCPProjectID string
	Stream       StreamConfig

	Telemetry TelemetryConfig
}

// AirKoreaConfig holds upstream API settings.
type AirKoreaConfig struct {
	BaseURL string

	// ServiceKey is the decoded data.go.kr key; it is URL-encoded on use.
	ServiceKey string

	// Timeout of zero leaves the transport default in place.
	Timeout time.Duration
}

// StreamConfig holds broker settings for streaming mode.
type StreamConfig struct {
	Topic string
	Wait  time.Duration
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// Load reads a .env file if one exists and then resolves the configuration
// from the environment.
func Load(logger zerolog.Logger, filenames ...string) (*Config, error) {
	if err := godotenv.Load(filenames...); err != nil {
		logger.Info().Err(err).Msg("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv resolves the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
	}

	logLevel, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		fail("LOG_LEVEL", err)
	}

	timeout, err := time.ParseDuration(getEnvOrDefault("AIRKOREA_TIMEOUT", "0s"))
	if err != nil {
		fail("AIRKOREA_TIMEOUT", err)
	}

	defaults := airquality.DefaultQuery()
	pageNo, err := getEnvInt("AIRKOREA_PAGE_NO", defaults.PageNo)
	if err != nil {
		fail("AIRKOREA_PAGE_NO", err)
	}
	numOfRows, err := getEnvInt("AIRKOREA_NUM_OF_ROWS", defaults.NumOfRows)
	if err != nil {
		fail("AIRKOREA_NUM_OF_ROWS", err)
	}

	partition, err := parsePartitionTime(getEnvOrDefault("DATALAKE_PARTITION_TIME", "2023-09-09T10"), time.Now())
	if err != nil {
		fail("DATALAKE_PARTITION_TIME", err)
	}

	wait, err := time.ParseDuration(getEnvOrDefault("STREAM_WAIT", "10s"))
	if err == nil && wait <= 0 {
		err = fmt.Errorf("must be positive, got %s", wait)
	}
	if err != nil {
		fail("STREAM_WAIT", err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	return &Config{
		Env:      getEnvOrDefault("APP_ENV", "development"),
		LogLevel: logLevel,
		AirKorea: AirKoreaConfig{
			BaseURL:    os.Getenv("AIRKOREA_BASE_URL"),
			ServiceKey: os.Getenv("AIRKOREA_SERVICE_KEY"),
			Timeout:    timeout,
		},
		Query: airquality.Query{
			StationName: getEnvOrDefault("AIRKOREA_STATION_NAME", defaults.StationName),
			PageNo:      pageNo,
			DataTerm:    getEnvOrDefault("AIRKOREA_DATA_TERM", defaults.DataTerm),
			NumOfRows:   numOfRows,
			Version:     getEnvOrDefault("AIRKOREA_VERSION", defaults.Version),
		},
		Bucket: datalake.BucketCoordinates{
			Layer:   getEnvOrDefault("DATALAKE_LAYER", datalake.LayerRaw),
			Company: getEnvOrDefault("DATALAKE_COMPANY", "de415"),
			Region:  getEnvOrDefault("DATALAKE_REGION", "apnortheast2"),
			Account: getEnvOrDefault("DATALAKE_ACCOUNT", "073658113926"),
			Env:     getEnvOrDefault("DATALAKE_ENV", "dev"),
		},
		Path: datalake.PathCoordinates{
			Source:       getEnvOrDefault("DATALAKE_SOURCE", "airkorea"),
			SourceRegion: getEnvOrDefault("DATALAKE_SOURCE_REGION", "kr"),
			Table:        getEnvOrDefault("DATALAKE_TABLE", "airdata"),
			Time:         partition,
		},
		FileName:     getEnvOrDefault("DATALAKE_FILE_NAME", "airdata.parquet"),
		GCPProjectID: os.Getenv("GCP_PROJECT_ID"),
		Stream: StreamConfig{
			Topic: getEnvOrDefault("STREAM_TOPIC", "stream-test"),
			Wait:  wait,
		},
		Telemetry: TelemetryConfig{
			Enabled:      os.Getenv("OTEL_ENABLED") == "true",
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}, nil
}

// parsePartitionTime accepts PartitionTimeLayout or "now", which resolves to
// the current UTC hour.
func parsePartitionTime(s string, now time.Time) (time.Time, error) {
	if strings.EqualFold(s, "now") {
		return now.UTC().Truncate(time.Hour), nil
	}
	return time.Parse(PartitionTimeLayout, s)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
