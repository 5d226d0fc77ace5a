package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tripwell/tripwell/internal/shared"
)

// DefaultHistoryLimit caps ActivityHistory when the caller sets no limit.
const DefaultHistoryLimit = 100

// AnonymousUser identifies failed calls made without a principal.
const AnonymousUser = "anonymous"

// EntryObserver is notified of every recording attempt.
type EntryObserver interface {
	ObserveEntry(action string, recorded bool)
}

// RecorderConfig wires a Recorder.
type RecorderConfig struct {
	Store    Store
	Detector *Detector
	Logger   *slog.Logger
	Observer EntryObserver
	Clock    func() time.Time
}

// Recorder appends audit entries and answers history, stats and detection
// queries over the configured store.
type Recorder struct {
	store    Store
	detector *Detector
	logger   *slog.Logger
	observer EntryObserver
	now      func() time.Time
}

// NewRecorder constructs a Recorder. A nil store falls back to an in-memory
// ring buffer of DefaultCapacity.
func NewRecorder(cfg RecorderConfig) *Recorder {
	r := &Recorder{
		store:    cfg.Store,
		detector: cfg.Detector,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		now:      cfg.Clock,
	}
	if r.store == nil {
		r.store = NewMemoryStore(DefaultCapacity)
	}
	if r.detector == nil {
		r.detector = NewDetector(DefaultThresholds())
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Store exposes the backing store.
func (r *Recorder) Store() Store { return r.store }

// LogActivity builds and appends an entry. It never fails the caller: any
// problem is logged and reported as a nil entry.
func (r *Recorder) LogActivity(ctx context.Context, userID string, action Action, resource string, details map[string]any, meta *RequestMeta) (entry *Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(action, resource, fmt.Errorf("panic: %v", rec))
			entry = nil
		}
	}()

	if !action.Valid() {
		r.fail(action, resource, fmt.Errorf("%w: %q", ErrUnknownAction, action))
		return nil
	}

	now := r.now().UTC()
	merged := cloneDetails(details)
	merged["timestamp"] = now.Format(time.RFC3339Nano)
	if _, err := json.Marshal(merged); err != nil {
		r.fail(action, resource, fmt.Errorf("serialize details: %w", err))
		return nil
	}

	e := Entry{
		ID:        newEntryID(now),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   merged,
		IPAddress: pick(metaField(meta, func(m *RequestMeta) string { return m.IP }), details, "ip_address", "ip"),
		UserAgent: pick(metaField(meta, func(m *RequestMeta) string { return m.UserAgent }), details, "user_agent", "userAgent"),
		SessionID: pick(metaField(meta, func(m *RequestMeta) string { return m.SessionID }), details, "session_id", "sessionId"),
		CreatedAt: now,
	}

	stored, err := r.store.Append(context.WithoutCancel(ctx), e)
	if err != nil {
		r.fail(action, resource, err)
		return nil
	}
	if r.observer != nil {
		r.observer.ObserveEntry(string(action), true)
	}
	return &stored
}

// LogError records a SYSTEM_ERROR entry against the system resource.
func (r *Recorder) LogError(ctx context.Context, userID string, cause error, extra map[string]any, meta *RequestMeta) *Entry {
	details := cloneDetails(extra)
	details["severity"] = "error"
	if cause != nil {
		details["error"] = cause.Error()
	}
	return r.LogActivity(ctx, userID, ActionSystemError, ResourceSystem, details, meta)
}

// LogWarning records a SYSTEM_WARNING entry against the system resource.
func (r *Recorder) LogWarning(ctx context.Context, userID, message string, extra map[string]any, meta *RequestMeta) *Entry {
	details := cloneDetails(extra)
	details["severity"] = "warning"
	details["message"] = message
	return r.LogActivity(ctx, userID, ActionSystemWarning, ResourceSystem, details, meta)
}

// Outcome describes a completed privileged operation.
type Outcome struct {
	Status     int
	Method     string
	Path       string
	ResourceID string
	Fields     []string
	Meta       *RequestMeta
}

// RecordOutcome is the post-operation hook used by the audit middleware.
// Failed operations are always recorded as API_ERROR; successful ones only
// when a principal is attached to ctx.
func (r *Recorder) RecordOutcome(ctx context.Context, action Action, resource string, out Outcome) *Entry {
	principal := shared.PrincipalFromContext(ctx)
	if out.Status >= http.StatusBadRequest {
		userID := AnonymousUser
		if principal != nil && principal.ID != "" {
			userID = principal.ID
		}
		return r.LogActivity(ctx, userID, ActionAPIError, resource, map[string]any{
			"original_action": string(action),
			"method":          out.Method,
			"path":            out.Path,
			"status_code":     out.Status,
		}, out.Meta)
	}
	if principal == nil || principal.ID == "" {
		return nil
	}

	details := map[string]any{
		"method": out.Method,
		"path":   out.Path,
	}
	switch out.Method {
	case http.MethodPost:
		details["created_fields"] = fieldList(out.Fields)
	case http.MethodPut, http.MethodPatch:
		details["updated_fields"] = fieldList(out.Fields)
	}
	if out.ResourceID != "" || out.Method == http.MethodDelete {
		details["resource_id"] = out.ResourceID
	}
	return r.LogActivity(ctx, principal.ID, action, resource, details, out.Meta)
}

// ActivityHistory returns entries matching f, newest first. A non-positive
// limit defaults to DefaultHistoryLimit.
func (r *Recorder) ActivityHistory(ctx context.Context, f Filters) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	return r.store.Query(ctx, f)
}

// ActivityStats aggregates per-action counts over the optional date range.
func (r *Recorder) ActivityStats(ctx context.Context, from, to *time.Time) (Stats, error) {
	var f Filters
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = *to
	}
	entries, err := r.store.Query(ctx, f)
	if err != nil {
		return Stats{}, err
	}
	return aggregate(entries), nil
}

// DetectSuspiciousActivity runs the detector against a snapshot of the log.
func (r *Recorder) DetectSuspiciousActivity(ctx context.Context) ([]Finding, error) {
	entries, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.detector.Detect(entries, r.now())
}

func (r *Recorder) fail(action Action, resource string, err error) {
	r.logger.Error("audit: record activity",
		slog.String("action", string(action)),
		slog.String("resource", resource),
		slog.Any("error", err),
	)
	if r.observer != nil {
		r.observer.ObserveEntry(string(action), false)
	}
}

func aggregate(entries []Entry) Stats {
	type bucket struct {
		count int
		users map[string]struct{}
		ips   map[string]struct{}
	}
	buckets := make(map[Action]*bucket)
	users := make(map[string]struct{})
	ips := make(map[string]struct{})
	for _, e := range entries {
		b, ok := buckets[e.Action]
		if !ok {
			b = &bucket{users: make(map[string]struct{}), ips: make(map[string]struct{})}
			buckets[e.Action] = b
		}
		b.count++
		b.users[e.UserID] = struct{}{}
		b.ips[e.IPAddress] = struct{}{}
		users[e.UserID] = struct{}{}
		ips[e.IPAddress] = struct{}{}
	}

	stats := Stats{Actions: make([]ActionStat, 0, len(buckets))}
	for action, b := range buckets {
		stats.Actions = append(stats.Actions, ActionStat{
			Action:      action,
			Count:       b.count,
			UniqueUsers: len(b.users),
			UniqueIPs:   len(b.ips),
		})
	}
	sort.Slice(stats.Actions, func(i, j int) bool {
		if stats.Actions[i].Count != stats.Actions[j].Count {
			return stats.Actions[i].Count > stats.Actions[j].Count
		}
		return stats.Actions[i].Action < stats.Actions[j].Action
	})
	stats.Totals = Totals{
		TotalActions:  len(entries),
		UniqueUsers:   len(users),
		UniqueIPs:     len(ips),
		UniqueActions: len(buckets),
	}
	return stats
}

func newEntryID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])
}

func metaField(meta *RequestMeta, get func(*RequestMeta) string) string {
	if meta == nil {
		return ""
	}
	return get(meta)
}

// pick returns preferred when set, else the first non-empty string value of
// keys in details, else "unknown".
func pick(preferred string, details map[string]any, keys ...string) string {
	if preferred != "" {
		return preferred
	}
	for _, k := range keys {
		if v, ok := details[k].(string); ok && v != "" {
			return v
		}
	}
	return unknownValue
}

func fieldList(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
