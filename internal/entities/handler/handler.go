// Package handler exposes the entity gateway over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cardkeep/internal/activity"
	"cardkeep/internal/entities"
	"cardkeep/internal/entities/store"
	dErrors "cardkeep/pkg/domain-errors"
	"cardkeep/pkg/platform/httputil"
	"cardkeep/pkg/requestcontext"
)

// Service defines the interface for entity operations.
type Service interface {
	Filter(ctx context.Context, name string, q entities.FilterQuery) ([]store.Row, error)
	Create(ctx context.Context, actor requestcontext.Actor, name string, payload map[string]any) (store.Row, error)
	Update(ctx context.Context, actor requestcontext.Actor, name string, id int64, payload map[string]any) (store.Row, error)
	Delete(ctx context.Context, name string, id int64) error
	LogActivity(ctx context.Context, actor requestcontext.Actor, req entities.LogActivityRequest) (activity.Record, error)
}

// Handler handles the /entities route family.
type Handler struct {
	logger   *slog.Logger
	entities Service
}

// New creates a new entity Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, entities: svc}
}

// Register registers the entity routes. Callers are expected to have put an
// authentication middleware in front of r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/entities", func(r chi.Router) {
		// Static path first so it never resolves as an entity name.
		r.Post("/log-activity", h.handleLogActivity)
		r.Post("/{name}/filter", h.handleFilter)
		r.Post("/{name}", h.handleCreate)
		r.Put("/{name}/{id}", h.handleUpdate)
		r.Delete("/{name}/{id}", h.handleDelete)
	})
}

type filterRequest struct {
	Where  map[string]any `json:"where"`
	SortBy string         `json:"sortBy"`
	Limit  *int           `json:"limit"`
}

type logActivityRequest struct {
	CardID     int64          `json:"cardId"`
	Action     string         `json:"action"`
	CardData   map[string]any `json:"cardData"`
	BeforeData map[string]any `json:"beforeData"`
	CardType   string         `json:"cardType"`
	SharedWith []string       `json:"sharedWith"`
}

func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	rows, err := h.entities.Filter(ctx, chi.URLParam(r, "name"), entities.FilterQuery{
		Where:  req.Where,
		SortBy: req.SortBy,
		Limit:  req.Limit,
	})
	if err != nil {
		h.fail(w, r, "filter", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	row, err := h.entities.Create(ctx, actor, chi.URLParam(r, "name"), payload)
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, row)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	row, err := h.entities.Update(ctx, actor, chi.URLParam(r, "name"), id, payload)
	if err != nil {
		h.fail(w, r, "update", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.entities.Delete(r.Context(), chi.URLParam(r, "name"), id); err != nil {
		h.fail(w, r, "delete", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req logActivityRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	rec, err := h.entities.LogActivity(ctx, actor, entities.LogActivityRequest{
		CardID:     req.CardID,
		Action:     req.Action,
		CardData:   req.CardData,
		BeforeData: req.BeforeData,
		CardType:   req.CardType,
		SharedWith: req.SharedWith,
	})
	if err != nil {
		h.fail(w, r, "log_activity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// principal reads the authenticated actor. A missing principal means the
// route was mounted without RequireAuth.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (requestcontext.Actor, bool) {
	actor, ok := requestcontext.Principal(r.Context())
	if !ok || actor.Email == "" {
		h.logger.ErrorContext(r.Context(), "principal missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return requestcontext.Actor{}, false
	}
	return actor, true
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "invalid entity request body",
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "entity operation failed",
		"operation", op,
		"entity", chi.URLParam(r, "name"),
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err.Error(),
	)
	httputil.WriteError(w, err)
}

// decodeBody reads a JSON body. An empty body decodes as the zero value.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "id must be a positive integer")
	}
	return id, nil
}
