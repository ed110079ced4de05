// Package entities is the generic entity gateway: a closed registry of entity
// kinds, payload and response shaping, and the CRUD dispatcher that triggers
// activity records for card mutations.
package entities

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

	"cardkeep/internal/activity"
	"cardkeep/internal/entities/filter"
	"cardkeep/internal/entities/store"
	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/platform/sentinel"
	platformstrings "cardkeep/pkg/platform/strings"
	"cardkeep/pkg/requestcontext"
)

const defaultAuditTimeout = 5 * time.Second

// ActivityRecorder writes card activity records.
type ActivityRecorder interface {
	Record(ctx context.Context, req activity.Request) (activity.Record, error)
}

// FilterQuery is the body of a filter request.
type FilterQuery struct {
	Where  map[string]any
	SortBy string
	Limit  *int
}

// LogActivityRequest is an explicit activity write not tied to a generic
// mutation (payments, shares, archives and the like).
type LogActivityRequest struct {
	CardID     int64
	Action     string
	CardData   map[string]any
	BeforeData map[string]any
	CardType   string
	SharedWith []string
}

// UserChangeHook is told the e-mail addresses a User update or delete
// touched, so anything keyed by them (the display-name cache) can be dropped.
type UserChangeHook func(ctx context.Context, email string) error

// Service dispatches entity operations.
type Service struct {
	registry     *Registry
	recorder     ActivityRecorder
	userChanged  UserChangeHook
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	auditTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithActivityRecorder enables activity records for card mutations.
func WithActivityRecorder(r ActivityRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithUserChangeHook registers h for User updates and deletes.
func WithUserChangeHook(h UserChangeHook) Option {
	return func(s *Service) {
		s.userChanged = h
	}
}

// WithAuditTimeout bounds the activity step that follows a mutation.
func WithAuditTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.auditTimeout = d
		}
	}
}

// New constructs a Service.
func New(registry *Registry, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	s := &Service{
		registry:     registry,
		logger:       slog.Default(),
		tracer:       otel.Tracer("cardkeep/entities"),
		auditTimeout: defaultAuditTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Filter returns the rows of name matching q, shaped for output. Without
// SortBy the order is whatever storage returns.
func (s *Service) Filter(ctx context.Context, name string, q FilterQuery) (rows []store.Row, err error) {
	ent, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "filter", ent.Kind)
	defer func() { done(err) }()

	found, err := ent.Model.FindMany(detach(ctx), store.Query{
		Where: filter.Translate(q.Where),
		Order: filter.ParseSort(q.SortBy),
		Limit: q.Limit,
	})
	if err != nil {
		return nil, operationFailed("Filter", ent.Kind, nil, err)
	}
	out := make([]store.Row, len(found))
	for i, row := range found {
		out[i] = shapeOutput(ent.Kind, row)
	}
	return out, nil
}

// Create stores payload as a new row. Gift cards are stamped with the actor
// as creator and owner and get a "created" activity record.
func (s *Service) Create(ctx context.Context, actor requestcontext.Actor, name string, payload map[string]any) (row store.Row, err error) {
	ent, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "create", ent.Kind)
	defer func() { done(err) }()

	shaped, err := shapeInput(ent.Kind, payload)
	if err != nil {
		return nil, err
	}
	if ent.Kind.Owned() {
		shaped["created_by"] = actor.Email
		shaped["owner_email"] = actor.Email
	}

	created, err := ent.Model.Create(detach(ctx), shaped)
	if err != nil {
		return nil, operationFailed("Create", ent.Kind, nil, err)
	}
	out := shapeOutput(ent.Kind, created)
	id, _ := created.ID()
	s.logAudit(ctx, "entity_created", "entity", ent.Kind.String(), "id", id, "actor", actor.Email)

	if ent.Kind.Owned() {
		s.recordActivity(ctx, ent.Kind, activity.Request{
			CardID:     id,
			Action:     activity.ActionCreated,
			ActorEmail: actor.Email,
			After:      out,
			CardType:   ent.Kind.CardTypeTag(),
		})
	}
	return out, nil
}

// Update applies the fields present in payload to row id. Card kinds are
// read before and after the write and get an "edit" activity record.
func (s *Service) Update(ctx context.Context, actor requestcontext.Actor, name string, id int64, payload map[string]any) (row store.Row, err error) {
	ent, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "update", ent.Kind)
	defer func() { done(err) }()
	storageCtx := detach(ctx)

	var previousEmail any
	if s.watchesUsers(ent.Kind) {
		previousEmail = s.userEmail(storageCtx, ent, id)
	}

	var before store.Row
	if ent.Kind.Audited() {
		existing, err := ent.Model.FindUnique(storageCtx, id)
		switch {
		case err == nil:
			before = shapeOutput(ent.Kind, existing)
		case errors.Is(err, sentinel.ErrNotFound):
			s.logger.DebugContext(ctx, "no existing row before update", "entity", ent.Kind.String(), "id", id)
		default:
			return nil, operationFailed("Update", ent.Kind, &id, err)
		}
	}

	shaped, err := shapeInput(ent.Kind, payload)
	if err != nil {
		return nil, err
	}
	written, err := ent.Model.Update(storageCtx, id, shaped)
	if err != nil {
		return nil, operationFailed("Update", ent.Kind, &id, err)
	}
	out := shapeOutput(ent.Kind, written)
	s.logAudit(ctx, "entity_updated", "entity", ent.Kind.String(), "id", id, "actor", actor.Email)
	if s.watchesUsers(ent.Kind) {
		s.notifyUserChanged(ctx, previousEmail, written["email"])
	}

	if ent.Kind.Audited() {
		after := out
		if reread, err := ent.Model.FindUnique(storageCtx, id); err == nil {
			after = shapeOutput(ent.Kind, reread)
		} else {
			s.logger.WarnContext(ctx, "re-read after update failed, using written row",
				"entity", ent.Kind.String(), "id", id, "error", err)
		}
		s.recordActivity(ctx, ent.Kind, activity.Request{
			CardID:     id,
			Action:     activity.ActionEdit,
			ActorEmail: actor.Email,
			Before:     before,
			After:      after,
			CardType:   ent.Kind.CardTypeTag(),
			Recipients: recipientsOf(ent.Kind, after),
		})
	}
	return out, nil
}

// Delete removes row id. Deletes never produce activity records.
func (s *Service) Delete(ctx context.Context, name string, id int64) (err error) {
	ent, err := s.registry.Resolve(name)
	if err != nil {
		return err
	}
	ctx, done := s.begin(ctx, "delete", ent.Kind)
	defer func() { done(err) }()

	var previousEmail any
	if s.watchesUsers(ent.Kind) {
		previousEmail = s.userEmail(detach(ctx), ent, id)
	}
	if err := ent.Model.Delete(detach(ctx), id); err != nil {
		return operationFailed("Delete", ent.Kind, &id, err)
	}
	s.logAudit(ctx, "entity_deleted", "entity", ent.Kind.String(), "id", id)
	if s.watchesUsers(ent.Kind) {
		s.notifyUserChanged(ctx, previousEmail)
	}
	return nil
}

func (s *Service) watchesUsers(kind Kind) bool {
	return kind == KindUser && s.userChanged != nil
}

// userEmail reads the address a User row has before it changes. A failed
// read only means there is nothing to notify about.
func (s *Service) userEmail(ctx context.Context, ent Entity, id int64) any {
	existing, err := ent.Model.FindUnique(ctx, id)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "user read before write failed", "id", id, "error", err)
		}
		return nil
	}
	return existing["email"]
}

// notifyUserChanged calls the hook once per distinct address. Hook failures
// are logged and never fail the write.
func (s *Service) notifyUserChanged(ctx context.Context, emails ...any) {
	addresses := make([]string, 0, len(emails))
	for _, e := range emails {
		if email, ok := e.(string); ok {
			addresses = append(addresses, email)
		}
	}
	hookCtx, cancel := context.WithTimeout(detach(ctx), s.auditTimeout)
	defer cancel()
	for _, email := range platformstrings.DedupeEmails(addresses) {
		if err := s.userChanged(hookCtx, email); err != nil {
			s.logger.WarnContext(ctx, "user change hook failed",
				"email", email,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
}

// LogActivity records an activity the caller describes explicitly. Unlike
// the records triggered by Create and Update, a failure here is the
// operation's failure and is returned.
func (s *Service) LogActivity(ctx context.Context, actor requestcontext.Actor, req LogActivityRequest) (rec activity.Record, err error) {
	ctx, done := s.begin(ctx, "log_activity", KindCardActivityLog)
	defer func() { done(err) }()

	if s.recorder == nil {
		return activity.Record{}, dErrors.New(dErrors.CodeInternal, "activity logging is not configured")
	}
	action, ok := activity.ParseAction(req.Action)
	if !ok {
		return activity.Record{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported action %q", req.Action))
	}
	if req.CardID <= 0 {
		return activity.Record{}, dErrors.New(dErrors.CodeValidation, "cardId is required")
	}
	cardType := req.CardType
	if cardType == "" {
		cardType = activity.CardTypeGiftCard
	}
	if cardType != activity.CardTypeGiftCard && cardType != activity.CardTypeSharedCard {
		return activity.Record{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported card type %q", req.CardType))
	}

	auditCtx, cancel := context.WithTimeout(detach(ctx), s.auditTimeout)
	defer cancel()
	return s.recorder.Record(auditCtx, activity.Request{
		CardID:     req.CardID,
		Action:     action,
		ActorEmail: actor.Email,
		After:      req.CardData,
		Before:     req.BeforeData,
		CardType:   cardType,
		Recipients: req.SharedWith,
	})
}

// recordActivity runs after the mutation has been stored. It cannot cancel
// or fail the mutation: errors are logged and counted.
func (s *Service) recordActivity(ctx context.Context, kind Kind, req activity.Request) {
	if s.recorder == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(detach(ctx), s.auditTimeout)
	defer cancel()
	if _, err := s.recorder.Record(auditCtx, req); err != nil {
		s.metrics.auditFailed(kind.String())
		s.logger.WarnContext(ctx, "activity not recorded",
			"entity", kind.String(),
			"card_id", req.CardID,
			"action", req.Action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// recipientsOf lists everyone a shared card is visible to: the owner, then
// the members it is shared with.
func recipientsOf(kind Kind, row store.Row) []string {
	if kind != KindSharedCard {
		return nil
	}
	var out []string
	if owner, ok := row["owner_email"].(string); ok {
		out = append(out, owner)
	}
	switch members := row["shared_with"].(type) {
	case []string:
		out = append(out, members...)
	case []any:
		for _, m := range members {
			if email, ok := m.(string); ok {
				out = append(out, email)
			}
		}
	}
	return out
}

func (s *Service) begin(ctx context.Context, op string, kind Kind) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "entities."+op, trace.WithAttributes(
		attribute.String("entity.name", kind.String()),
		attribute.String("entity.operation", op),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.Message(err))
		}
		span.End()
		s.metrics.observe(kind.String(), op, start, err)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// detach keeps storage calls running when the caller goes away.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
