package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/middleware"
	"cardkeep/pkg/requestcontext"
	"cardkeep/pkg/testutil"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","storage":"memory"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestEntityRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)
	rec := testutil.DoRequest(a.Router(), testutil.NewRequestWithBody(t, http.MethodPost, "/entities/GiftCard/filter", `{}`))
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestCreateThroughTheFullChain(t *testing.T) {
	a := newTestApp(t)
	router := a.Router()
	token, err := middleware.IssueToken(a.cfg.Auth.JWTSigningKey,
		requestcontext.Actor{ID: 1, Email: "owner@x.io"}, time.Hour)
	require.NoError(t, err)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/entities/GiftCard", map[string]any{"card_name": "Amazon", "balance": 20})
	rec := testutil.DoRequest(router, testutil.WithBearer(req, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := testutil.UnmarshalResponse[map[string]any](t, rec)
	assert.Equal(t, 20.0, created["balance"])
	assert.Equal(t, "owner@x.io", created["created_by"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cardkeep_entity_operations_total{entity="GiftCard",operation="create",outcome="success"} 1`)
	assert.Contains(t, body, `cardkeep_activity_records_written_total`)
}
