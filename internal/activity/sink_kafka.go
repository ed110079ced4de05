package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cardkeep/pkg/platform/circuit"
	"cardkeep/pkg/requestcontext"
)

// ErrStreamSkipped is returned without calling the broker while the stream
// circuit is open.
var ErrStreamSkipped = errors.New("activity stream circuit open")

// Publisher is the transport the Kafka sink writes through.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaSink streams persisted records as JSON keyed by card so every record
// of one card lands on the same partition.
type KafkaSink struct {
	publisher Publisher
	breaker   *circuit.Breaker
	logger    *slog.Logger
	timeout   time.Duration
}

// NewKafkaSink wraps publisher. Breaker transitions are logged once per
// change instead of once per failed record.
func NewKafkaSink(publisher Publisher, logger *slog.Logger, breakerOpts ...circuit.Option) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{
		publisher: publisher,
		breaker:   circuit.New("activity-stream", breakerOpts...),
		logger:    logger,
		timeout:   2 * time.Second,
	}
}

// streamEvent is the JSON document published for each record.
type streamEvent struct {
	EventID   string `json:"event_id"`
	RequestID string `json:"request_id,omitempty"`
	Record
}

// Publish streams rec. While the broker is failing it returns
// ErrStreamSkipped instead of waiting on the publish timeout.
func (s *KafkaSink) Publish(ctx context.Context, rec Record) error {
	if !s.breaker.Allow() {
		return ErrStreamSkipped
	}
	payload, err := json.Marshal(streamEvent{
		EventID:   uuid.NewString(),
		RequestID: requestcontext.RequestID(ctx),
		Record:    rec,
	})
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	key := fmt.Appendf(nil, "%s:%d", rec.CardType, rec.CardID)
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "activity stream circuit opened", "error", err)
		}
		return err
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "activity stream circuit closed")
	}
	return nil
}

// Healthy reports whether recent publishes succeeded.
func (s *KafkaSink) Healthy() bool {
	return !s.breaker.IsOpen()
}
