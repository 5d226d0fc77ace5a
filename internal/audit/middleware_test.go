package audit

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwell/tripwell/internal/shared"
)

func auditedRouter(r *Recorder, status int, seenBody *string) http.Handler {
	mw := NewMiddleware(r)
	router := chi.NewRouter()
	handler := func(w http.ResponseWriter, req *http.Request) {
		if seenBody != nil {
			raw, _ := io.ReadAll(req.Body)
			*seenBody = string(raw)
		}
		w.WriteHeader(status)
	}
	router.With(mw.Audit(ActionClientCreate, "clients")).Post("/clients", handler)
	router.With(mw.Audit(ActionClientDelete, "clients")).Delete("/clients/{id}", handler)
	router.With(mw.Audit(ActionView, "clients")).Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	return router
}

func asPrincipal(req *http.Request, id, role string) *http.Request {
	return req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{ID: id, Role: role}))
}

func TestAuditMiddlewareRecordsCreatedFields(t *testing.T) {
	r, _ := newTestRecorder(t, NewMemoryStore(10))
	var seen string
	router := auditedRouter(r, http.StatusCreated, &seen)

	body := `{"name":"Ada","email":"ada@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "agent-ui")
	req.Header.Set("X-Session-ID", "sess-1")
	req.RemoteAddr = "203.0.113.5:41000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asPrincipal(req, "u1", "operator"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, body, seen)

	snap, _ := r.Store().Snapshot(context.Background())
	require.Len(t, snap, 1)
	e := snap[0]
	assert.Equal(t, ActionClientCreate, e.Action)
	assert.Equal(t, "clients", e.Resource)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, []string{"email", "name"}, e.Details["created_fields"])
	assert.Equal(t, "203.0.113.5", e.IPAddress)
	assert.Equal(t, "agent-ui", e.UserAgent)
	assert.Equal(t, "sess-1", e.SessionID)
}

func TestAuditMiddlewareResourceIDFromNamedParam(t *testing.T) {
	r, _ := newTestRecorder(t, NewMemoryStore(10))
	mw := NewMiddleware(r)
	router := chi.NewRouter()
	noContent := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }
	router.With(mw.Audit(ActionBookingCancel, "bookings")).Delete("/bookings/{bookingID}", noContent)
	router.With(mw.Audit(ActionBookingUpdate, "bookings")).Delete("/bookings/{bookingID}/travellers/{travellerID}", noContent)

	router.ServeHTTP(httptest.NewRecorder(), asPrincipal(httptest.NewRequest(http.MethodDelete, "/bookings/B-17", nil), "u2", "admin"))
	router.ServeHTTP(httptest.NewRecorder(), asPrincipal(httptest.NewRequest(http.MethodDelete, "/bookings/B-17/travellers/T-3", nil), "u2", "admin"))

	snap, _ := r.Store().Snapshot(context.Background())
	require.Len(t, snap, 2)
	assert.Equal(t, "B-17", snap[0].Details["resource_id"])
	assert.Equal(t, "T-3", snap[1].Details["resource_id"])
}

func TestAuditMiddlewareRecordsDeleteID(t *testing.T) {
	r, _ := newTestRecorder(t, NewMemoryStore(10))
	router := auditedRouter(r, http.StatusNoContent, nil)

	req := httptest.NewRequest(http.MethodDelete, "/clients/42", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-sess"})
	router.ServeHTTP(httptest.NewRecorder(), asPrincipal(req, "u2", "admin"))

	snap, _ := r.Store().Snapshot(context.Background())
	require.Len(t, snap, 1)
	assert.Equal(t, "42", snap[0].Details["resource_id"])
	assert.Equal(t, "cookie-sess", snap[0].SessionID)
}

func TestAuditMiddlewareRecordsFailuresAsAPIError(t *testing.T) {
	r, _ := newTestRecorder(t, NewMemoryStore(10))
	router := auditedRouter(r, http.StatusUnprocessableEntity, nil)

	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(`{}`))
	router.ServeHTTP(httptest.NewRecorder(), req)

	snap, _ := r.Store().Snapshot(context.Background())
	require.Len(t, snap, 1)
	assert.Equal(t, ActionAPIError, snap[0].Action)
	assert.Equal(t, AnonymousUser, snap[0].UserID)
	assert.Equal(t, http.StatusUnprocessableEntity, snap[0].Details["status_code"])
}

func TestAuditMiddlewareImplicitOKWithoutPrincipalIsSkipped(t *testing.T) {
	r, _ := newTestRecorder(t, NewMemoryStore(10))
	router := auditedRouter(r, http.StatusOK, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clients", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	snap, _ := r.Store().Snapshot(context.Background())
	assert.Empty(t, snap)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asPrincipal(httptest.NewRequest(http.MethodGet, "/clients", nil), "u3", "viewer"))
	snap, _ = r.Store().Snapshot(context.Background())
	require.Len(t, snap, 1)
	assert.Equal(t, ActionView, snap[0].Action)
}

func TestRequestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("User-Agent", "ua")
	meta := RequestMetaFromRequest(req)
	assert.Equal(t, "2001:db8::1", meta.IP)
	assert.Equal(t, "ua", meta.UserAgent)
	assert.Empty(t, meta.SessionID)

	req.RemoteAddr = "198.51.100.7"
	assert.Equal(t, "198.51.100.7", RequestMetaFromRequest(req).IP)
}

func TestWriteCSV(t *testing.T) {
	e := entryAt("id-1", ActionBookingRefund, baseTime)
	e.Details = map[string]any{"amount": 120, "note": "late, \"urgent\""}
	out, err := WriteCSV([]Entry{e})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "id-1", records[1][0])
	assert.Equal(t, "2024-03-15T12:00:00Z", records[1][1])
	assert.Equal(t, "BOOKING_REFUND", records[1][3])
	assert.JSONEq(t, `{"amount":120,"note":"late, \"urgent\""}`, records[1][8])
}
