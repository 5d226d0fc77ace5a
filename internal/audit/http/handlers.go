package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tripwell/tripwell/internal/audit"
	"github.com/tripwell/tripwell/internal/platform/httpx"
	"github.com/tripwell/tripwell/internal/rbac"
	"github.com/tripwell/tripwell/internal/shared"
)

const (
	maxHistoryLimit = 1000
	maxExportRows   = 10000
	dateLayout      = "2006-01-02"
)

// ActivityService defines the audit queries served over HTTP.
type ActivityService interface {
	LogActivity(ctx context.Context, userID string, action audit.Action, resource string, details map[string]any, meta *audit.RequestMeta) *audit.Entry
	ActivityHistory(ctx context.Context, filters audit.Filters) ([]audit.Entry, error)
	ActivityStats(ctx context.Context, from, to *time.Time) (audit.Stats, error)
	DetectSuspiciousActivity(ctx context.Context) ([]audit.Finding, error)
}

// RetentionService purges expired entries on demand.
type RetentionService interface {
	CleanOldLogs(ctx context.Context) (int, error)
}

// Handler serves the audit read API, on-demand cleanup and event ingestion.
type Handler struct {
	logger    *slog.Logger
	service   ActivityService
	retention RetentionService
	rbac      rbac.Middleware
	validator *validator.Validate
	now       func() time.Time

	idempotency shared.IdempotencyStore
	auditor     Auditor
}

// Auditor wraps a handler so its outcome is recorded as action on resource.
type Auditor interface {
	Audit(action audit.Action, resource string) func(http.Handler) http.Handler
}

// IdempotencyHeader carries the caller's event key for deduplicated ingestion.
const IdempotencyHeader = "Idempotency-Key"

const eventScope = "audit:events"

// NewHandler constructs the audit HTTP handler.
func NewHandler(logger *slog.Logger, service ActivityService, retention RetentionService, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		logger:    logger,
		service:   service,
		retention: retention,
		rbac:      guard,
		validator: validate,
		now:       time.Now,
	}
}

// WithIdempotency deduplicates ingested events that carry an Idempotency-Key.
func (h *Handler) WithIdempotency(store shared.IdempotencyStore) *Handler {
	h.idempotency = store
	return h
}

// WithAuditor records bulk exports through auditor.
func (h *Handler) WithAuditor(auditor Auditor) *Handler {
	h.auditor = auditor
	return h
}

func (h *Handler) audited(action audit.Action, resource string) func(http.Handler) http.Handler {
	if h.auditor == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.auditor.Audit(action, resource)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r, maxHistoryLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.ActivityHistory(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load activity history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var fromPtr, toPtr *time.Time
	if !from.IsZero() {
		fromPtr = &from
	}
	if !to.IsZero() {
		toPtr = &to
	}
	stats, err := h.service.ActivityStats(r.Context(), fromPtr, toPtr)
	if err != nil {
		h.handleServerError(w, "load activity stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	findings, err := h.service.DetectSuspiciousActivity(r.Context())
	if err != nil {
		if errors.Is(err, audit.ErrMalformedEntry) {
			h.logger.Error("suspicious activity scan hit malformed entry", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Detection Failed", err.Error())
			return
		}
		h.handleServerError(w, "detect suspicious activity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"findings":     findings,
		"count":        len(findings),
		"generated_at": h.now().UTC(),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r, maxExportRows)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.Limit <= 0 {
		filters.Limit = maxExportRows
	}
	entries, err := h.service.ActivityHistory(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export activity", err)
		return
	}
	csvBytes, err := audit.WriteCSV(entries)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-activity.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if h.retention == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	removed, err := h.retention.CleanOldLogs(r.Context())
	if err != nil {
		h.handleServerError(w, "clean old logs", err)
		return
	}
	userID := audit.AnonymousUser
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		userID = p.ID
	}
	h.service.LogActivity(r.Context(), userID, audit.ActionAuditCleanup, "audit",
		map[string]any{"removed": removed}, audit.RequestMetaFromRequest(r))
	httpx.JSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type eventRequest struct {
	UserID    string         `json:"user_id" validate:"required,max=128"`
	Action    string         `json:"action" validate:"required,oneof=LOGIN LOGOUT LOGIN_FAILED PASSWORD_CHANGE"`
	Details   map[string]any `json:"details"`
	IPAddress string         `json:"ip_address" validate:"omitempty,ip"`
	UserAgent string         `json:"user_agent" validate:"omitempty,max=512"`
	SessionID string         `json:"session_id" validate:"omitempty,max=128"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.handleServerError(w, "validate event", err)
			return
		}
		fields := make(httpx.FieldErrors, len(verrs))
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Error()
		}
		httpx.ValidationProblem(w, fields)
		return
	}

	meta := audit.RequestMetaFromRequest(r)
	if req.IPAddress != "" {
		meta.IP = req.IPAddress
	}
	if req.UserAgent != "" {
		meta.UserAgent = req.UserAgent
	}
	if req.SessionID != "" {
		meta.SessionID = req.SessionID
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, eventScope); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Conflict", "event already recorded")
				return
			}
			h.handleServerError(w, "check idempotency key", err)
			return
		}
	}

	entry := h.service.LogActivity(r.Context(), req.UserID, audit.Action(req.Action), "auth", req.Details, meta)
	if entry == nil {
		if key != "" && h.idempotency != nil {
			if err := h.idempotency.Delete(r.Context(), key, eventScope); err != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", err))
			}
		}
		httpx.Problem(w, http.StatusServiceUnavailable, "Not Recorded", "audit entry could not be recorded")
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseFilters(r *http.Request, maxLimit int) (audit.Filters, error) {
	q := r.URL.Query()
	from, to, err := parseRange(r)
	if err != nil {
		return audit.Filters{}, err
	}
	filters := audit.Filters{
		UserID:    strings.TrimSpace(q.Get("user_id")),
		Resource:  strings.TrimSpace(q.Get("resource")),
		IPAddress: strings.TrimSpace(q.Get("ip_address")),
		From:      from,
		To:        to,
	}
	if v := strings.TrimSpace(q.Get("action")); v != "" {
		action := audit.Action(strings.ToUpper(v))
		if !action.Valid() {
			return audit.Filters{}, httpx.FieldErrors{"action": "unknown action"}
		}
		filters.Action = action
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return audit.Filters{}, httpx.FieldErrors{"limit": "must be a positive integer"}
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		filters.Limit = limit
	}
	return filters, nil
}

// parseRange reads from/to as RFC3339 timestamps or dates. A date-only "to"
// covers the whole day.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseBound(q.Get("from"), false)
	if err != nil {
		return time.Time{}, time.Time{}, httpx.FieldErrors{"from": err.Error()}
	}
	to, err := parseBound(q.Get("to"), true)
	if err != nil {
		return time.Time{}, time.Time{}, httpx.FieldErrors{"to": err.Error()}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, httpx.FieldErrors{"range": "from must not be after to"}
	}
	return from, to, nil
}

func parseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339 timestamp or YYYY-MM-DD date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
