// Package audit records privileged activity in a bounded append-only log and
// inspects it for suspicious access patterns.
package audit

import (
	"errors"
	"time"
)

// Action is a closed set of activity codes.
type Action string

// Authentication actions reported by the upstream login flow.
const (
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionPasswordChange Action = "PASSWORD_CHANGE"
)

// Generic resource actions.
const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionView   Action = "VIEW"
	ActionExport Action = "EXPORT"
)

// Domain actions.
const (
	ActionClientCreate   Action = "CLIENT_CREATE"
	ActionClientUpdate   Action = "CLIENT_UPDATE"
	ActionClientDelete   Action = "CLIENT_DELETE"
	ActionBookingCreate  Action = "BOOKING_CREATE"
	ActionBookingUpdate  Action = "BOOKING_UPDATE"
	ActionBookingCancel  Action = "BOOKING_CANCEL"
	ActionBookingConfirm Action = "BOOKING_CONFIRM"
	ActionBookingRefund  Action = "BOOKING_REFUND"
	ActionPackageCreate  Action = "PACKAGE_CREATE"
	ActionPackageUpdate  Action = "PACKAGE_UPDATE"
	ActionPackageDelete  Action = "PACKAGE_DELETE"
	ActionPackagePublish Action = "PACKAGE_PUBLISH"
	ActionPaymentProcess Action = "PAYMENT_PROCESS"
	ActionUserCreate     Action = "USER_CREATE"
	ActionUserUpdate     Action = "USER_UPDATE"
	ActionUserDelete     Action = "USER_DELETE"
	ActionRoleChange     Action = "ROLE_CHANGE"
	ActionConfigUpdate   Action = "CONFIG_UPDATE"
	ActionReportExport   Action = "REPORT_EXPORT"
)

// System actions.
const (
	ActionAPIError      Action = "API_ERROR"
	ActionSystemError   Action = "SYSTEM_ERROR"
	ActionSystemWarning Action = "SYSTEM_WARNING"
	ActionAuditCleanup  Action = "AUDIT_CLEANUP"
)

var allActions = []Action{
	ActionLogin, ActionLogout, ActionLoginFailed, ActionPasswordChange,
	ActionCreate, ActionUpdate, ActionDelete, ActionView, ActionExport,
	ActionClientCreate, ActionClientUpdate, ActionClientDelete,
	ActionBookingCreate, ActionBookingUpdate, ActionBookingCancel, ActionBookingConfirm, ActionBookingRefund,
	ActionPackageCreate, ActionPackageUpdate, ActionPackageDelete, ActionPackagePublish,
	ActionPaymentProcess,
	ActionUserCreate, ActionUserUpdate, ActionUserDelete, ActionRoleChange,
	ActionConfigUpdate, ActionReportExport,
	ActionAPIError, ActionSystemError, ActionSystemWarning, ActionAuditCleanup,
}

var knownActions = func() map[Action]struct{} {
	out := make(map[Action]struct{}, len(allActions))
	for _, a := range allActions {
		out[a] = struct{}{}
	}
	return out
}()

// AllActions lists every recognised action code.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// Valid reports whether a is part of the closed action set.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// ResourceSystem is used for entries describing the platform itself.
const ResourceSystem = "system"

const unknownValue = "unknown"

// Entry is one immutable audit record.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Action    Action         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
}

// RequestMeta carries the request attributes used to enrich an entry.
type RequestMeta struct {
	IP        string
	UserAgent string
	SessionID string
}

// Filters narrows activity history queries. Zero values disable a filter.
type Filters struct {
	UserID    string
	Action    Action
	Resource  string
	IPAddress string
	From      time.Time
	To        time.Time
	Limit     int
}

// Matches reports whether e satisfies every configured filter. Date bounds
// are inclusive.
func (f Filters) Matches(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// ActionStat aggregates one action code.
type ActionStat struct {
	Action      Action `json:"action"`
	Count       int    `json:"count"`
	UniqueUsers int    `json:"unique_users"`
	UniqueIPs   int    `json:"unique_ips"`
}

// Totals aggregates the whole window.
type Totals struct {
	TotalActions  int `json:"total_actions"`
	UniqueUsers   int `json:"unique_users"`
	UniqueIPs     int `json:"unique_ips"`
	UniqueActions int `json:"unique_actions"`
}

// Stats is the result of ActivityStats.
type Stats struct {
	Actions []ActionStat `json:"actions"`
	Totals  Totals       `json:"totals"`
}

var (
	// ErrUnknownAction is returned when recording an action outside the closed set.
	ErrUnknownAction = errors.New("audit: unknown action")
	// ErrMalformedEntry is returned by the detector when the log holds an entry
	// it cannot evaluate.
	ErrMalformedEntry = errors.New("audit: malformed entry")
	// ErrStoreNotConfigured is returned by a RetentionManager without backing store.
	ErrStoreNotConfigured = errors.New("audit: store not configured")
)

func cloneDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
