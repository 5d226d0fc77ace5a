package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxCapturedBody bounds how much of a request body is inspected for field names.
const maxCapturedBody = 1 << 20

// Middleware records the outcome of wrapped handlers through Recorder.RecordOutcome.
type Middleware struct {
	recorder *Recorder
}

// NewMiddleware constructs the audit middleware.
func NewMiddleware(recorder *Recorder) *Middleware {
	return &Middleware{recorder: recorder}
}

// Audit wraps a privileged handler. Once the handler returns, the final status
// decides whether action or API_ERROR is recorded for resource.
func (m *Middleware) Audit(action Action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := captureFields(r)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.recorder.RecordOutcome(r.Context(), action, resource, Outcome{
				Status:     status,
				Method:     r.Method,
				Path:       r.URL.Path,
				ResourceID: resourceID(r),
				Fields:     fields,
				Meta:       RequestMetaFromRequest(r),
			})
		})
	}
}

// resourceID prefers the {id} URL parameter and falls back to the last named
// parameter of the matched route.
func resourceID(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	params := rctx.URLParams
	for i := len(params.Keys) - 1; i >= 0; i-- {
		if params.Keys[i] != "*" && i < len(params.Values) && params.Values[i] != "" {
			return params.Values[i]
		}
	}
	return ""
}

// captureFields returns the sorted top-level keys of a JSON object body and
// restores the body for the wrapped handler.
func captureFields(r *http.Request) []string {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return nil
	}
	if ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || ct != "application/json" {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(buf, &obj); err != nil {
		return nil
	}
	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
