// Package pipeline runs one extract: fetch from AirKorea, parse, and hand the
// records to the batch or streaming sink.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/airdata-extract/internal/airquality"
	"github.com/breatheroute/airdata-extract/internal/columnar"
	"github.com/breatheroute/airdata-extract/internal/datalake"
	"github.com/breatheroute/airdata-extract/internal/telemetry"
)

const tracerName = "github.com/breatheroute/airdata-extract/internal/pipeline"

// Pipeline errors.
var (
	ErrInvalidMode       = errors.New("invalid mode")
	ErrSinkNotConfigured = errors.New("sink not configured for mode")
)

// Fetcher retrieves raw measurements from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context, q airquality.Query) (*airquality.RawResponse, error)
}

// TableUploader writes a columnar table to object storage.
type TableUploader interface {
	UploadTable(ctx context.Context, table arrow.Table, bucket, key string) error
}

// RecordPublisher sends records to a broker topic and waits for delivery.
type RecordPublisher interface {
	Publish(ctx context.Context, topic string, records []airquality.Record, wait time.Duration) error
}

// Outcome is how a run finished.
type Outcome string

const (
	// OutcomeDelivered means the records reached the sink.
	OutcomeDelivered Outcome = "delivered"

	// OutcomeSkipped means the API answered with a non-200 status and
	// nothing was parsed or delivered.
	OutcomeSkipped Outcome = "skipped"
)

// Destination is where a run writes. Only the fields for the run's mode are set.
type Destination struct {
	Bucket string        `json:"bucket,omitempty"`
	Key    string        `json:"key,omitempty"`
	Topic  string        `json:"topic,omitempty"`
	Wait   time.Duration `json:"wait,omitempty"`
}

// MarshalJSON renders Wait as a duration string ("10s") instead of nanoseconds.
func (d Destination) MarshalJSON() ([]byte, error) {
	type destination Destination
	out := struct {
		destination
		Wait string `json:"wait,omitempty"`
	}{destination: destination(d)}
	if d.Wait > 0 {
		out.Wait = d.Wait.String()
	}
	return json.Marshal(out)
}

// Result summarizes a completed run.
type Result struct {
	RunID       string      `json:"run_id"`
	Mode        Mode        `json:"mode"`
	Outcome     Outcome     `json:"outcome"`
	StatusCode  int         `json:"status_code"`
	Records     int         `json:"records"`
	Destination Destination `json:"destination"`

	// Response is the serialized API response when Outcome is OutcomeSkipped.
	Response string `json:"response,omitempty"`
}

// Config holds the collaborators and static coordinates of a pipeline.
type Config struct {
	Fetcher Fetcher

	// Uploader is required for ModeBatch, Publisher for ModeStreaming.
	Uploader  TableUploader
	Publisher RecordPublisher

	Query airquality.Query

	Bucket   datalake.BucketCoordinates
	Path     datalake.PathCoordinates
	FileName string

	Topic string
	Wait  time.Duration

	Logger  zerolog.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.RunMetrics
}

// Pipeline runs extracts. It holds no state between runs.
type Pipeline struct {
	cfg    Config
	logger zerolog.Logger
	tracer trace.Tracer
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		tracer: tracer,
	}
}

// BatchDestination returns the bucket and key a batch run writes to.
func (p *Pipeline) BatchDestination() Destination {
	return Destination{
		Bucket: datalake.BucketName(p.cfg.Bucket),
		Key:    datalake.ObjectKey(p.cfg.Path, p.cfg.FileName),
	}
}

// StreamDestination returns the topic and wait bound a streaming run uses.
func (p *Pipeline) StreamDestination() Destination {
	return Destination{
		Topic: p.cfg.Topic,
		Wait:  p.cfg.Wait,
	}
}

// Run performs one extract in the given mode.
//
// A non-200 API response ends the run early with OutcomeSkipped and a nil
// error. Every other failure is returned unmodified apart from wrapping.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (result *Result, err error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, string(mode))
	}
	if err := p.checkSink(mode); err != nil {
		return nil, err
	}

	result = &Result{
		RunID: uuid.NewString(),
		Mode:  mode,
	}
	logger := p.logger.With().
		Str("run_id", result.RunID).
		Str("mode", string(mode)).
		Logger()

	ctx, span := p.tracer.Start(ctx, "airdata.run", trace.WithAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("mode", string(mode)),
	))
	start := time.Now()
	defer func() {
		outcome := "failed"
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			outcome = string(result.Outcome)
		}
		span.End()
		p.cfg.Metrics.RecordDuration(ctx, time.Since(start), metric.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.String("outcome", outcome),
		))
	}()

	resp, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	result.StatusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		serialized, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("serialize response: %w", err)
		}
		result.Outcome = OutcomeSkipped
		result.Response = string(serialized)
		logger.Warn().
			Int("status_code", resp.StatusCode).
			Msg("upstream returned non-200 status, skipping run")
		return result, nil
	}

	records, err := p.parse(ctx, resp.Body)
	if err != nil {
		return nil, err
	}
	result.Records = len(records)
	p.cfg.Metrics.RecordRecords(ctx, len(records), metric.WithAttributes(attribute.String("mode", string(mode))))
	logger.Info().Int("records", len(records)).Msg("records parsed")

	switch mode {
	case ModeBatch:
		result.Destination = p.BatchDestination()
		err = p.dispatchBatch(ctx, records, result.Destination)
	case ModeStreaming:
		result.Destination = p.StreamDestination()
		err = p.dispatchStream(ctx, records, result.Destination)
	}
	if err != nil {
		return nil, err
	}

	result.Outcome = OutcomeDelivered
	logger.Info().
		Int("records", result.Records).
		Dur("duration", time.Since(start)).
		Msg("run completed")
	return result, nil
}

func (p *Pipeline) checkSink(mode Mode) error {
	switch {
	case mode == ModeBatch && p.cfg.Uploader == nil,
		mode == ModeStreaming && p.cfg.Publisher == nil:
		return fmt.Errorf("%w: %s", ErrSinkNotConfigured, mode)
	}
	return nil
}

func (p *Pipeline) fetch(ctx context.Context) (*airquality.RawResponse, error) {
	ctx, span := p.tracer.Start(ctx, "airdata.fetch", trace.WithAttributes(
		attribute.String("station_name", p.cfg.Query.StationName),
		attribute.Int("page_no", p.cfg.Query.PageNo),
		attribute.String("data_term", p.cfg.Query.DataTerm),
	))
	defer span.End()

	resp, err := p.cfg.Fetcher.Fetch(ctx, p.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (p *Pipeline) parse(ctx context.Context, body []byte) ([]airquality.Record, error) {
	_, span := p.tracer.Start(ctx, "airdata.parse")
	defer span.End()

	records, err := airquality.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

func (p *Pipeline) dispatchBatch(ctx context.Context, records []airquality.Record, dest Destination) error {
	ctx, span := p.tracer.Start(ctx, "airdata.dispatch.batch", trace.WithAttributes(
		attribute.String("bucket", dest.Bucket),
		attribute.String("key", dest.Key),
	))
	defer span.End()

	table, err := columnar.FromRecords(records)
	if err != nil {
		return fmt.Errorf("build table: %w", err)
	}
	defer table.Release()

	if err := p.cfg.Uploader.UploadTable(ctx, table, dest.Bucket, dest.Key); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

func (p *Pipeline) dispatchStream(ctx context.Context, records []airquality.Record, dest Destination) error {
	ctx, span := p.tracer.Start(ctx, "airdata.dispatch.stream", trace.WithAttributes(
		attribute.String("topic", dest.Topic),
	))
	defer span.End()

	if err := p.cfg.Publisher.Publish(ctx, dest.Topic, records, dest.Wait); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
