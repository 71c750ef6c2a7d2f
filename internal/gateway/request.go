package gateway

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestDetails is built once per inbound request and carried through
// the pipeline. Never shared across requests.
type requestDetails struct {
	ID        string
	Method    string
	URI       string
	RouteName string
	ClientID  string
	Received  time.Time
}

func newRequestDetails(r *http.Request, selfName string) *requestDetails {
	return &requestDetails{
		ID:        uuid.NewString(),
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
		RouteName: resolveRouteName(r.URL.RequestURI(), selfName),
		ClientID:  clientID(r.RemoteAddr),
		Received:  time.Now(),
	}
}

// resolveRouteName extracts the first path segment: strip the leading
// slash, cut at the query string, cut at the next slash. An empty
// result means the caller addressed the gateway itself.
func resolveRouteName(target, selfName string) string {
	s := strings.TrimPrefix(target, "/")
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return selfName
	}
	return s
}

// clientID normalizes the caller's remote address by dropping the
// ephemeral port, so one client maps to one limiter.
func clientID(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
