package routes

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Credential is a backend's basic-auth pair.
type Credential struct {
	Username string
	Password string
}

// Snapshot is an immutable point-in-time bundle of routing and auth
// configuration. A request captures one snapshot at route resolution
// and uses that same snapshot through auth and forwarding, so a
// mid-flight refresh can never show it half of two configurations.
type Snapshot struct {
	Version   int64
	FetchedAt time.Time

	routeTable        map[string]string
	authExclusions    []string
	basicAuthPrefixes []string
	credentials       map[string]Credential
	forwardedHeaders  map[string]bool
}

// NewSnapshot builds an immutable snapshot from its parts. The maps
// and slices are copied; callers may not mutate them afterwards.
func NewSnapshot(
	routeTable map[string]string,
	authExclusions []string,
	basicAuthPrefixes []string,
	credentials map[string]Credential,
	forwardedHeaders []string,
) *Snapshot {
	s := &Snapshot{
		FetchedAt:         time.Now(),
		routeTable:        make(map[string]string, len(routeTable)),
		authExclusions:    append([]string(nil), authExclusions...),
		basicAuthPrefixes: append([]string(nil), basicAuthPrefixes...),
		credentials:       make(map[string]Credential, len(credentials)),
		forwardedHeaders:  make(map[string]bool, len(forwardedHeaders)),
	}
	for k, v := range routeTable {
		s.routeTable[k] = v
	}
	for k, v := range credentials {
		s.credentials[k] = v
	}
	for _, h := range forwardedHeaders {
		s.forwardedHeaders[http.CanonicalHeaderKey(h)] = true
	}
	return s
}

// EmptySnapshot returns a snapshot with no routes, used before the
// first successful fetch.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil, nil, nil, nil)
}

// TargetBaseURL looks up the backend base URL for a route name.
func (s *Snapshot) TargetBaseURL(routeName string) (string, bool) {
	url, ok := s.routeTable[routeName]
	return url, ok
}

// Credentials returns the basic-auth pair for a route.
func (s *Snapshot) Credentials(routeName string) (Credential, bool) {
	cred, ok := s.credentials[routeName]
	if !ok || cred.Username == "" || cred.Password == "" {
		return Credential{}, false
	}
	return cred, true
}

// IsAuthExcluded reports whether the request path, with the route name
// segment removed, starts with any configured exclusion.
func (s *Snapshot) IsAuthExcluded(pathLessRoute string) bool {
	for _, prefix := range s.authExclusions {
		if strings.HasPrefix(pathLessRoute, prefix) {
			return true
		}
	}
	return false
}

// IsBasicAuthOnly reports whether the full request URI starts with any
// configured basic-auth-only prefix.
func (s *Snapshot) IsBasicAuthOnly(requestURI string) bool {
	for _, prefix := range s.basicAuthPrefixes {
		if strings.HasPrefix(requestURI, prefix) {
			return true
		}
	}
	return false
}

// ForwardsHeader reports whether an inbound header may be copied to
// the outbound request. Header forwarding is default-deny.
func (s *Snapshot) ForwardsHeader(name string) bool {
	return s.forwardedHeaders[http.CanonicalHeaderKey(name)]
}

// RouteCount returns the number of configured routes.
func (s *Snapshot) RouteCount() int {
	return len(s.routeTable)
}

// Store holds the current snapshot behind an atomic pointer. The
// refresh task is the only writer; request handlers only Load.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Int64
}

// NewStore creates a store primed with an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(EmptySnapshot())
	return s
}

// Load returns the current snapshot. Never nil.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Swap replaces the current snapshot wholesale and stamps its version.
func (s *Store) Swap(snap *Snapshot) {
	snap.Version = s.version.Add(1)
	s.current.Store(snap)
}
