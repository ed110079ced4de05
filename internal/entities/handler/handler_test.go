package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cardkeep/internal/activity"
	"cardkeep/internal/entities"
	"cardkeep/internal/entities/handler/mocks"
	"cardkeep/internal/entities/store"
	"cardkeep/internal/users"
	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/requestcontext"
	"cardkeep/pkg/testutil"
)

var testActor = requestcontext.Actor{ID: 1, Email: "owner@x.io", Name: "Owner"}

func withActor(actor requestcontext.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, testutil.WithActor(r, actor))
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(svc Service, actor *requestcontext.Actor) http.Handler {
	r := chi.NewRouter()
	if actor != nil {
		r.Use(withActor(*actor))
	}
	New(svc, discardLogger()).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	if raw, ok := body.(string); ok {
		return testutil.DoRequest(h, testutil.NewRequestWithBody(t, method, path, raw))
	}
	return testutil.DoRequest(h, testutil.NewJSONRequest(t, method, path, body))
}

// =============================================================================
// Handler Test Suite
// =============================================================================
// Routes run against a memory-backed service with the real activity recorder,
// the same wiring cmd/cardkeep uses with the memory backend.

type HandlerSuite struct {
	suite.Suite
	registry *entities.Registry
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.registry = entities.NewRegistry(entities.MemoryModels())
	recorder, err := activity.NewRecorder(
		activity.NewModelStore(s.registry.Model(entities.KindCardActivityLog)),
		users.NewModelLookup(s.registry.Model(entities.KindUser)),
		activity.WithLogger(discardLogger()),
	)
	s.Require().NoError(err)
	svc, err := entities.New(s.registry,
		entities.WithLogger(discardLogger()),
		entities.WithActivityRecorder(recorder),
	)
	s.Require().NoError(err)
	s.router = newRouter(svc, &testActor)
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) TestCardLifecycle() {
	rec := do(s.T(), s.router, http.MethodPost, "/entities/GiftCard", map[string]any{
		"card_name":   "Amazon",
		"balance":     20,
		"expiry_date": "2027-01-31",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	s.decode(rec, &created)
	s.Equal(20.0, created["balance"])
	s.Equal("2027-01-31T00:00:00.000Z", created["expiry_date"])
	s.Equal("owner@x.io", created["owner_email"])
	id := int64(created["id"].(float64))

	rec = do(s.T(), s.router, http.MethodPut, "/entities/GiftCard/"+jsonInt(id), map[string]any{"balance": 7.5})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var updated map[string]any
	s.decode(rec, &updated)
	s.Equal(7.5, updated["balance"])
	s.Equal("Amazon", updated["card_name"])

	rec = do(s.T(), s.router, http.MethodPost, "/entities/GiftCard/filter", map[string]any{
		// Filter values are compared in stored minor units.
		"where": map[string]any{"balance": map[string]any{"$lt": 1000}},
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	var rows []map[string]any
	s.decode(rec, &rows)
	s.Require().Len(rows, 1)
	s.Equal("Amazon", rows[0]["card_name"])

	rec = do(s.T(), s.router, http.MethodPost, "/entities/CardActivityLog/filter", map[string]any{
		"where":  map[string]any{"card_id": id},
		"sortBy": "id",
	})
	s.Require().Equal(http.StatusOK, rec.Code)
	var logs []map[string]any
	s.decode(rec, &logs)
	s.Require().Len(logs, 2)
	s.Equal("created", logs[0]["action"])
	s.Equal("edit", logs[1]["action"])

	rec = do(s.T(), s.router, http.MethodDelete, "/entities/GiftCard/"+jsonInt(id), nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"ok":true}`, rec.Body.String())

	rec = do(s.T(), s.router, http.MethodDelete, "/entities/GiftCard/"+jsonInt(id), nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestFilterWithoutBody() {
	rec := do(s.T(), s.router, http.MethodPost, "/entities/Group/filter", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *HandlerSuite) TestUnknownEntity() {
	rec := do(s.T(), s.router, http.MethodPost, "/entities/Wallet/filter", map[string]any{})
	s.Require().Equal(http.StatusNotFound, rec.Code)
	body := testutil.UnmarshalResponse[map[string]string](s.T(), rec)
	s.Equal("not_found", body["error"])
	s.Equal("Unknown entity Wallet", body["error_description"])
}

func (s *HandlerSuite) TestLogActivity() {
	rec := do(s.T(), s.router, http.MethodPost, "/entities/log-activity", map[string]any{
		"cardId":     12,
		"action":     "share",
		"cardData":   map[string]any{"card_name": "Family", "balance": 40},
		"cardType":   "shared_card",
		"sharedWith": []string{"b@x.io", "c@x.io"},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var primary map[string]any
	s.decode(rec, &primary)
	s.Equal("share", primary["action"])
	s.Equal("owner@x.io", primary["user_email"])

	logs, err := s.registry.Model(entities.KindCardActivityLog).FindMany(context.Background(), store.Query{})
	s.Require().NoError(err)
	s.Len(logs, 3)
}

func (s *HandlerSuite) TestLogActivityRejectsUnknownAction() {
	rec := do(s.T(), s.router, http.MethodPost, "/entities/log-activity", map[string]any{
		"cardId": 12,
		"action": "teleport",
	})
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
}

// =============================================================================
// Request validation and error mapping
// =============================================================================

func TestNonNumericIDIsRejectedBeforeTheService(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc, &testActor)

	for _, path := range []string{"/entities/GiftCard/abc", "/entities/GiftCard/-3", "/entities/GiftCard/0"} {
		rec := do(t, router, http.MethodPut, path, map[string]any{"notes": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		rec = do(t, router, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMalformedBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc, &testActor)

	rec := do(t, router, http.MethodPost, "/entities/GiftCard", "{not json")
	testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestInternalErrorsHideDetails(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Filter(gomock.Any(), "GiftCard", gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeInternal, "Filter failed"))
	router := newRouter(svc, &testActor)

	rec := do(t, router, http.MethodPost, "/entities/GiftCard/filter", map[string]any{})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestFilterRequestIsForwarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Filter(gomock.Any(), "SharedCard", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, q entities.FilterQuery) ([]store.Row, error) {
			assert.Equal(t, "-balance", q.SortBy)
			require.NotNil(t, q.Limit)
			assert.Equal(t, 5, *q.Limit)
			assert.Equal(t, map[string]any{"$in": []any{"a@x.io"}}, q.Where["owner_email"])
			return []store.Row{}, nil
		})
	router := newRouter(svc, &testActor)

	rec := do(t, router, http.MethodPost, "/entities/SharedCard/filter", map[string]any{
		"where":  map[string]any{"owner_email": map[string]any{"$in": []string{"a@x.io"}}},
		"sortBy": "-balance",
		"limit":  5,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogActivityRouteIsNotAnEntity(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().LogActivity(gomock.Any(), testActor, gomock.Any()).
		Return(activity.Record{ID: 1, Action: activity.ActionPayment}, nil)
	router := newRouter(svc, &testActor)

	rec := do(t, router, http.MethodPost, "/entities/log-activity", map[string]any{"cardId": 1, "action": "payment"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMutationsRequirePrincipal(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	router := newRouter(svc, nil)

	rec := do(t, router, http.MethodPost, "/entities/GiftCard", map[string]any{"card_name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, router, http.MethodPut, "/entities/GiftCard/1", map[string]any{"card_name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
