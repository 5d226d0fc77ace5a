package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwell/tripwell/internal/audit"
	"github.com/tripwell/tripwell/internal/rbac"
	"github.com/tripwell/tripwell/internal/shared"
	"github.com/tripwell/tripwell/jobs"
	_ "github.com/tripwell/tripwell/testing"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	core, err := NewCore(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(core.Close)
	return core
}

func bookingRoutes(calls *int, core *Core) func(chi.Router) {
	return func(r chi.Router) {
		r.With(core.Protected(rbac.PermBookingsCancel, audit.ActionBookingCancel, "bookings")).
			Post("/bookings/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				*calls++
				w.WriteHeader(http.StatusOK)
			})
	}
}

func principalRequest(method, target, id, role string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if id != "" {
		req.Header.Set(HeaderPrincipalID, id)
		req.Header.Set(HeaderPrincipalRole, role)
	}
	return req
}

func TestPrincipalFromHeaders(t *testing.T) {
	var seen *shared.Principal
	handler := PrincipalFromHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderPrincipalID, " u-1 ")
	req.Header.Set(HeaderPrincipalRole, "manager")
	req.Header.Set(HeaderPrincipalEmail, "m@tripwell.test")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, shared.Principal{ID: "u-1", Role: "manager", Email: "m@tripwell.test"}, *seen)

	seen = nil
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, seen)
}

func TestProtectedRecordsPermittedOperation(t *testing.T) {
	core := newTestCore(t)
	calls := 0
	router := NewCoreRouter(core, nil, bookingRoutes(&calls, core))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodPost, "/bookings/7/cancel", "admin-1", "admin"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, calls)

	entries, err := core.Store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, audit.ActionBookingCancel, entry.Action)
	assert.Equal(t, "bookings", entry.Resource)
	assert.Equal(t, "admin-1", entry.UserID)
	assert.Equal(t, "7", entry.Details["resource_id"])
	assert.Equal(t, http.MethodPost, entry.Details["method"])
}

func TestProtectedRejectsViewerWithoutAuditing(t *testing.T) {
	core := newTestCore(t)
	calls := 0
	router := NewCoreRouter(core, nil, bookingRoutes(&calls, core))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodPost, "/bookings/7/cancel", "viewer-1", "viewer"))

	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 0, calls)
	var body rbac.Rejection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, rbac.CodeInsufficientPermissions, body.Code)

	entries, err := core.Store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `tripwell_authz_denials_total{code="INSUFFICIENT_PERMISSIONS",permission="bookings:cancel"} 1`))
}

func TestProtectedRecordsFailedOperationAsAPIError(t *testing.T) {
	core := newTestCore(t)
	router := NewCoreRouter(core, nil, func(r chi.Router) {
		r.With(core.Protected(rbac.PermClientsDelete, audit.ActionClientDelete, "clients")).
			Delete("/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "conflict", http.StatusConflict)
			})
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodDelete, "/clients/3", "admin-1", "admin"))
	require.Equal(t, http.StatusConflict, rr.Code)

	entries, err := core.Store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAPIError, entries[0].Action)
	assert.Equal(t, "CLIENT_DELETE", entries[0].Details["original_action"])
}

func TestRouterServesCoreEndpoints(t *testing.T) {
	core := newTestCore(t)
	router := NewCoreRouter(core, jobs.NewHandler(nil, core.Logger), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodGet, "/permissions/me", "m-1", "manager"))
	require.Equal(t, http.StatusOK, rr.Code)
	var caps rbac.CapabilitySnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &caps))
	assert.Equal(t, rbac.RoleManager, caps.Role)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodGet, "/audit/activity", "v-1", "viewer"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodGet, "/audit/activity", "m-1", "manager"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"queue":"default"`)
}

func TestServedExportIsAudited(t *testing.T) {
	core := newTestCore(t)
	router := NewCoreRouter(core, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, principalRequest(http.MethodGet, "/audit/export.csv", "admin-1", "admin"))
	require.Equal(t, http.StatusOK, rr.Code)

	entries, err := core.Store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionExport, entries[0].Action)
	assert.Equal(t, "admin-1", entries[0].UserID)
}

func TestNewCoreRejectsNilConfig(t *testing.T) {
	_, err := NewCore(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestTestModeDetected(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
