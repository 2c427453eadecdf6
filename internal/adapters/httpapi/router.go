// Package httpapi exposes the FMEA record service over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Ajanth06/medsafe-udi-sub000/internal/core"
	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

// ActorHeader carries the authenticated user name set by the upstream proxy.
const ActorHeader = "X-Actor"

type contextKey string

const actorKey contextKey = "actor"

// Handler serves the /api/v1 routes.
type Handler struct {
	service *core.Service
}

// Option configures the router.
type Option func(*routerOptions)

type routerOptions struct {
	metricsPath    string
	metricsHandler http.Handler
}

// WithMetrics mounts handler at path, outside the actor check.
func WithMetrics(path string, handler http.Handler) Option {
	return func(o *routerOptions) {
		if path != "" && handler != nil {
			o.metricsPath = path
			o.metricsHandler = handler
		}
	}
}

// NewRouter builds the HTTP routes for service.
func NewRouter(service *core.Service, opts ...Option) http.Handler {
	var cfg routerOptions
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &Handler{service: service}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, cfg.metricsPath, cfg.metricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(requireActor)
		api.Post("/fmea/evaluate", h.handleEvaluate)
		api.Get("/analyses/{analysisID}/failure-modes", h.handleListFailureModes)
		api.Post("/analyses/{analysisID}/failure-modes", h.handleCreateFailureMode)
		api.Get("/failure-modes/{id}", h.handleGetFailureMode)
		api.Put("/failure-modes/{id}", h.handleUpdateFailureMode)
		api.Delete("/failure-modes/{id}", h.handleDeleteFailureMode)
		api.Get("/failure-modes/{id}/audit", h.handleListAudit)
		api.Get("/documents", h.handleListDocuments)
		api.Post("/documents", h.handleUploadDocument)
		api.Get("/documents/{id}", h.handleGetDocument)
		api.Get("/documents/{id}/url", h.handleDocumentURL)
		api.Delete("/documents/{id}", h.handleDeleteDocument)
	})
	return r
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var row domain.FailureMode
	if err := decodeJSON(r, &row); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.EvaluateFailureMode(r.Context(), row))
}

func (h *Handler) handleListFailureModes(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListFailureModes(r.Context(), chi.URLParam(r, "analysisID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) handleCreateFailureMode(w http.ResponseWriter, r *http.Request) {
	var row domain.FailureMode
	if err := decodeJSON(r, &row); err != nil {
		writeError(w, err)
		return
	}
	row.ID = ""
	row.AnalysisID = chi.URLParam(r, "analysisID")
	created, _, err := h.service.CreateFailureMode(r.Context(), actorFromContext(r.Context()), row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetFailureMode(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.GetFailureMode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) handleUpdateFailureMode(w http.ResponseWriter, r *http.Request) {
	var replacement domain.FailureMode
	if err := decodeJSON(r, &replacement); err != nil {
		writeError(w, err)
		return
	}
	updated, _, err := h.service.UpdateFailureMode(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id"), func(row *domain.FailureMode) error {
		next := replacement.Clone()
		next.ID = row.ID
		next.AnalysisID = row.AnalysisID
		next.CreatedAt = row.CreatedAt
		*row = next
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteFailureMode(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteFailureMode(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListDocuments(r.Context(), strings.TrimSpace(r.URL.Query().Get("failure_mode_id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(core.MaxDocumentSize); err != nil {
		writeError(w, badRequest("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.ValidationErrors{{Field: "file", Code: domain.CodeRequired, Message: "file is required"}})
		return
	}
	defer file.Close()

	upload := core.DocumentUpload{
		Title:       r.FormValue("title"),
		UDI:         r.FormValue("udi"),
		ContentType: header.Header.Get("Content-Type"),
	}
	if upload.Title == "" {
		upload.Title = header.Filename
	}
	if id := strings.TrimSpace(r.FormValue("failure_mode_id")); id != "" {
		upload.FailureModeID = &id
	}
	doc, _, err := h.service.UploadDocument(r.Context(), actorFromContext(r.Context()), upload, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, badRequest("invalid ttl %q", raw))
			return
		}
		ttl = parsed
	}
	url, err := h.service.DocumentURL(r.Context(), chi.URLParam(r, "id"), ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteDocument(r.Context(), actorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid json body: %v", err)
	}
	return nil
}

// writeError maps service errors to status codes: validation and rule
// violations to 422 with field details, missing records to 404.
func writeError(w http.ResponseWriter, err error) {
	var (
		violation domain.RuleViolationError
		invalid   domain.ValidationErrors
		notFound  core.ErrNotFound
		bad       badRequestError
	)
	switch {
	case errors.As(err, &violation):
		fields := violation.Result.FieldErrors()
		if len(fields) == 0 {
			for _, v := range violation.Result.Violations {
				fields = append(fields, domain.FieldError{Field: string(v.Entity), Code: domain.ErrorCode(v.Rule), Message: v.Message})
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": fields})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": invalid})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": notFound.Error()})
	case errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": bad.Error()})
	case errors.Is(err, core.ErrActorRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	case errors.Is(err, core.ErrBlobStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
