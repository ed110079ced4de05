// Package middleware holds the HTTP middleware chain shared by every route:
// request ids, client metadata, request time, logging, recovery and bearer
// authentication.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/platform/httputil"
	platformstrings "cardkeep/pkg/platform/strings"
	"cardkeep/pkg/requestcontext"
)

// Claims are the access token claims. userId is numeric in tokens issued by
// the account service but is accepted as text too.
type Claims struct {
	UserID any    `json:"userId,omitempty"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies HS256 bearer tokens.
type TokenValidator struct {
	signingKey []byte
	parser     *jwt.Parser
}

// NewTokenValidator builds a validator for tokens signed with signingKey.
func NewTokenValidator(signingKey string) *TokenValidator {
	return &TokenValidator{
		signingKey: []byte(signingKey),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithJSONNumber(),
			jwt.WithExpirationRequired(),
		),
	}
}

// Validate parses tokenString and returns the actor it names.
func (v *TokenValidator) Validate(tokenString string) (requestcontext.Actor, error) {
	parsed, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	email := platformstrings.NormalizeEmail(claims.Email)
	if email == "" {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has no email")
	}
	return requestcontext.Actor{ID: numericID(claims.UserID), Email: email, Name: claims.Name}, nil
}

// IssueToken signs a token for actor. The CLI uses it to mint development
// tokens; production tokens come from the account service.
func IssueToken(signingKey string, actor requestcontext.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: actor.ID,
		Email:  actor.Email,
		Name:   actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString([]byte(signingKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func numericID(v any) int64 {
	switch id := v.(type) {
	case json.Number:
		n, err := id.Int64()
		if err == nil {
			return n
		}
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err == nil {
			return n
		}
	case float64:
		return int64(id)
	}
	return 0
}

// RequireAuth rejects requests without a valid bearer token and puts the
// token's actor into the request context.
func RequireAuth(validator *TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			actor, err := validator.Validate(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, actor)))
		})
	}
}
