package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cardkeep/internal/entities/store"
)

// Record is one persisted activity entry. UserEmail is the subject the
// record is filed under; PerformedBy is who acted.
type Record struct {
	ID          int64          `json:"id"`
	CardID      int64          `json:"card_id"`
	CardType    string         `json:"card_type_field"`
	Action      Action         `json:"action"`
	UserEmail   string         `json:"user_email"`
	UserName    string         `json:"user_name"`
	PerformedBy string         `json:"performed_by"`
	Details     Details        `json:"details"`
	CardData    map[string]any `json:"card_data"`
	BeforeData  map[string]any `json:"before_data"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Store appends records. Records are never updated or deleted.
type Store interface {
	Append(ctx context.Context, rec Record) (Record, error)
}

// ModelStore files records in the CardActivityLog entity table.
type ModelStore struct {
	model store.Model
}

// NewModelStore wraps the activity log model.
func NewModelStore(model store.Model) *ModelStore {
	return &ModelStore{model: model}
}

func (s *ModelStore) Append(ctx context.Context, rec Record) (Record, error) {
	details, err := toDocument(rec.Details)
	if err != nil {
		return Record{}, fmt.Errorf("encode details: %w", err)
	}
	row := store.Row{
		"card_id":         rec.CardID,
		"card_type_field": rec.CardType,
		"action":          string(rec.Action),
		"user_email":      rec.UserEmail,
		"user_name":       rec.UserName,
		"performed_by":    rec.PerformedBy,
		"details":         details,
		"card_data":       rec.CardData,
		"before_data":     rec.BeforeData,
		"timestamp":       rec.Timestamp,
	}
	// nil maps must reach storage as NULL, not as typed nils.
	if rec.CardData == nil {
		row["card_data"] = nil
	}
	if rec.BeforeData == nil {
		row["before_data"] = nil
	}

	created, err := s.model.Create(ctx, row)
	if err != nil {
		return Record{}, fmt.Errorf("append activity record: %w", err)
	}
	if id, ok := created.ID(); ok {
		rec.ID = id
	}
	return rec, nil
}

// toDocument converts details into a plain JSON document so every backend
// stores the same shape.
func toDocument(d Details) (any, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
