package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/platform/strings"
	"cardkeep/pkg/requestcontext"
)

// ErrLoggingFailed reports that no primary record was written. Callers of a
// mutation never see it; it is logged and counted.
var ErrLoggingFailed = errors.New("activity logging failed")

const (
	rolePrimary = "primary"
	roleFanout  = "fanout"

	defaultFanoutLimit = 8
)

// NameLookup resolves a display name for an email identifier.
type NameLookup interface {
	DisplayName(ctx context.Context, email string) (string, error)
}

// Sink receives every persisted record, best effort.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// Request describes one activity to record.
type Request struct {
	CardID     int64
	Action     Action
	ActorEmail string
	After      map[string]any
	// Before is nil when there is no prior state.
	Before   map[string]any
	CardType string
	// Recipients lists everyone the card is visible to. The actor is skipped
	// when present; every other member gets a copy of the record. Identifiers
	// are compared and stored in their normalized form.
	Recipients []string
}

// Recorder writes the primary record and its fan-out copies.
type Recorder struct {
	store       Store
	names       NameLookup
	sink        Sink
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	fanoutLimit int
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithSink streams every persisted record to sink.
func WithSink(sink Sink) Option {
	return func(r *Recorder) {
		r.sink = sink
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithFanoutLimit caps concurrent fan-out writes.
func WithFanoutLimit(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.fanoutLimit = n
		}
	}
}

// NewRecorder constructs a Recorder. names may be nil, in which case every
// record carries the identifier as its display name.
func NewRecorder(store Store, names NameLookup, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	r := &Recorder{
		store:       store,
		names:       names,
		logger:      slog.Default(),
		tracer:      otel.Tracer("cardkeep/activity"),
		clock:       time.Now,
		fanoutLimit: defaultFanoutLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record persists the primary record for the actor, then one copy for every
// other recipient in parallel. Fan-out failures are logged and counted; only
// a failure before the primary record is stored is returned.
func (r *Recorder) Record(ctx context.Context, req Request) (Record, error) {
	ctx, span := r.tracer.Start(ctx, "activity.Record", trace.WithAttributes(
		attribute.Int64("card.id", req.CardID),
		attribute.String("card.type", req.CardType),
		attribute.String("activity.action", string(req.Action)),
	))
	defer span.End()

	req.ActorEmail = strings.NormalizeEmail(req.ActorEmail)
	req.Recipients = strings.DedupeEmails(req.Recipients)

	primary, err := r.recordPrimary(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "activity logging failed")
		r.metrics.loggingFailed()
		r.logger.ErrorContext(ctx, "activity logging failed",
			"card_id", req.CardID,
			"action", req.Action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return Record{}, dErrors.Wrap(fmt.Errorf("%w: %w", ErrLoggingFailed, err), dErrors.CodeInternal, "activity logging failed")
	}

	recipients := strings.Without(req.Recipients, req.ActorEmail)
	span.SetAttributes(attribute.Int("activity.fanout", len(recipients)))
	if len(recipients) > 0 {
		r.fanOut(ctx, primary, recipients)
	}
	return primary, nil
}

func (r *Recorder) recordPrimary(ctx context.Context, req Request) (Record, error) {
	if _, ok := ParseAction(string(req.Action)); !ok {
		return Record{}, fmt.Errorf("unsupported action %q", req.Action)
	}
	if req.ActorEmail == "" {
		return Record{}, fmt.Errorf("actor email is required")
	}
	details, err := Diff(req.Action, req.Before, req.After, req.Recipients)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		CardID:      req.CardID,
		CardType:    req.CardType,
		Action:      req.Action,
		UserEmail:   req.ActorEmail,
		UserName:    r.displayName(ctx, req.ActorEmail),
		PerformedBy: req.ActorEmail,
		Details:     details,
		CardData:    req.After,
		BeforeData:  req.Before,
		Timestamp:   r.clock().UTC(),
	}
	saved, err := r.store.Append(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	r.metrics.recordWritten(rec.Action, rolePrimary)
	r.publish(ctx, saved)
	return saved, nil
}

// fanOut writes one copy per recipient. Every goroutine returns nil so one
// failure never cancels the others.
func (r *Recorder) fanOut(ctx context.Context, primary Record, recipients []string) {
	var g errgroup.Group
	g.SetLimit(r.fanoutLimit)
	for _, recipient := range recipients {
		g.Go(func() error {
			rec := primary
			rec.ID = 0
			rec.UserEmail = recipient
			rec.UserName = r.displayName(ctx, recipient)
			saved, err := r.store.Append(ctx, rec)
			if err != nil {
				r.metrics.fanoutFailed()
				r.logger.WarnContext(ctx, "activity fan-out write failed",
					"card_id", rec.CardID,
					"action", rec.Action,
					"recipient", recipient,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				return nil
			}
			r.metrics.recordWritten(rec.Action, roleFanout)
			r.publish(ctx, saved)
			return nil
		})
	}
	_ = g.Wait()
}

// displayName never fails: lookup errors and blank names fall back to the
// identifier.
func (r *Recorder) displayName(ctx context.Context, email string) string {
	if r.names == nil {
		return email
	}
	name, err := r.names.DisplayName(ctx, email)
	if err != nil {
		r.logger.DebugContext(ctx, "display name lookup failed", "email", email, "error", err)
		return email
	}
	if name == "" {
		return email
	}
	return name
}

func (r *Recorder) publish(ctx context.Context, rec Record) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Publish(ctx, rec); err != nil {
		r.metrics.streamFailed()
		if errors.Is(err, ErrStreamSkipped) {
			r.logger.DebugContext(ctx, "activity stream skipped", "record_id", rec.ID)
			return
		}
		r.logger.WarnContext(ctx, "activity stream publish failed",
			"record_id", rec.ID,
			"error", err,
		)
	}
}
