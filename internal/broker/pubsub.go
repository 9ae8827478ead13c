// Package broker publishes measurement batches to Google Cloud Pub/Sub.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/breatheroute/airdata-extract/internal/airquality"
)

// Publish errors.
var (
	ErrPublish        = errors.New("failed to publish message")
	ErrPublishTimeout = errors.New("timed out waiting for publish acknowledgement")
)

// Message attribute keys.
const (
	AttrSource      = "source"
	AttrBatchID     = "batch_id"
	AttrRecordCount = "record_count"
)

// Config holds configuration for the Pub/Sub publisher.
type Config struct {
	ProjectID string

	// Source is attached to every message as the "source" attribute.
	Source string

	Logger  zerolog.Logger
	Options []option.ClientOption
}

// topicPublisher is the subset of *pubsub.Publisher used here.
type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(ctx context.Context) (serverID string, err error)
}

type pubsubTopic struct {
	publisher *pubsub.Publisher
}

func (t pubsubTopic) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.publisher.Publish(ctx, msg)
}

func (t pubsubTopic) Stop() {
	t.publisher.Stop()
}

// Publisher sends record batches to Pub/Sub topics.
type Publisher struct {
	client   *pubsub.Client
	newTopic func(topic string) topicPublisher
	source   string
	logger   zerolog.Logger
}

// NewPublisher creates a Pub/Sub client for the configured project.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	p := newPublisher(func(topic string) topicPublisher {
		return pubsubTopic{publisher: client.Publisher(topic)}
	}, cfg)
	p.client = client
	return p, nil
}

func newPublisher(newTopic func(string) topicPublisher, cfg Config) *Publisher {
	return &Publisher{
		newTopic: newTopic,
		source:   cfg.Source,
		logger:   cfg.Logger,
	}
}

// Publish sends all records as a single JSON array message and waits up to
// wait for the server to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, topic string, records []airquality.Record, wait time.Duration) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode records: %w", ErrPublish, err)
	}

	batchID := uuid.NewString()
	logger := p.logger.With().
		Str("topic", topic).
		Str("batch_id", batchID).
		Logger()

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrSource:      p.source,
			AttrBatchID:     batchID,
			AttrRecordCount: strconv.Itoa(len(records)),
		},
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	t := p.newTopic(topic)
	start := time.Now()
	serverID, err := t.Publish(waitCtx, msg).Get(waitCtx)
	if err != nil {
		// Stop flushes outstanding messages and would block past the wait bound.
		go t.Stop()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: topic %s after %s: %w", ErrPublishTimeout, topic, wait, err)
		}
		return fmt.Errorf("%w: topic %s: %w", ErrPublish, topic, err)
	}
	t.Stop()

	logger.Info().
		Str("message_id", serverID).
		Int("records", len(records)).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("batch published")
	return nil
}

// Close closes the Pub/Sub client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
