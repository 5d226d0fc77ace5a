package audit

import (
	"net"
	"net/http"
	"strings"
)

// SessionCookieName is read when no X-Session-ID header is present.
const SessionCookieName = "tripwell_session"

// RequestMetaFromRequest extracts audit enrichment attributes from r. The
// remote address is expected to be normalised by a RealIP middleware.
func RequestMetaFromRequest(r *http.Request) *RequestMeta {
	meta := &RequestMeta{
		IP:        remoteIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		SessionID: strings.TrimSpace(r.Header.Get("X-Session-ID")),
	}
	if meta.SessionID == "" {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			meta.SessionID = c.Value
		}
	}
	return meta
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
