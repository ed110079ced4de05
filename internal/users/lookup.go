// Package users resolves display names for e-mail identifiers from the User
// entity, optionally through a Redis cache.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cardkeep/internal/entities/filter"
	"cardkeep/internal/entities/store"
	platformstrings "cardkeep/pkg/platform/strings"
)

// ErrUnknownUser is returned when no user row has the e-mail.
var ErrUnknownUser = errors.New("unknown user")

// ModelLookup reads names straight from the User model.
type ModelLookup struct {
	model store.Model
}

// NewModelLookup wraps the User model.
func NewModelLookup(model store.Model) *ModelLookup {
	return &ModelLookup{model: model}
}

// DisplayName matches the normalized address first. Rows stored before
// addresses were normalized are still found by their exact spelling.
func (l *ModelLookup) DisplayName(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrUnknownUser
	}
	candidates := []string{platformstrings.NormalizeEmail(email)}
	if email != candidates[0] {
		candidates = append(candidates, email)
	}
	for _, candidate := range candidates {
		row, found, err := l.find(ctx, candidate)
		if err != nil {
			return "", err
		}
		if found {
			name, _ := row["name"].(string)
			return name, nil
		}
	}
	return "", ErrUnknownUser
}

func (l *ModelLookup) find(ctx context.Context, email string) (store.Row, bool, error) {
	limit := 1
	rows, err := l.model.FindMany(ctx, store.Query{
		Where: filter.Translate(map[string]any{"email": email}),
		Limit: &limit,
	})
	if err != nil {
		return nil, false, fmt.Errorf("find user by email: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}
