package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kinds of cached resources. Each kind carries its own TTL so frequently
// changing data expires faster than near-static data.
const (
	KindSummary    = "summary"
	KindCampaigns  = "campaigns"
	KindConnection = "connection"
)

const defaultTTL = 5 * time.Minute

var kindTTLs = map[string]time.Duration{
	KindSummary:    5 * time.Minute,
	KindCampaigns:  5 * time.Minute,
	KindConnection: 1 * time.Minute,
}

// Clock returns the current time; injected so TTL expiry is testable.
type Clock func() time.Time

type entry struct {
	value      interface{}
	clientSlug string
	storedAt   time.Time
	ttl        time.Duration
}

// Service is a process-local TTL cache for provider API responses. State is
// rebuilt from empty on restart; callers must tolerate cold-cache latency.
type Service struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     Clock
}

// New creates a cache service. A nil clock defaults to time.Now.
func New(now Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Key derives a deterministic cache key from the resource kind, the client
// slug, and the normalized query parameters. Parameter order never affects
// the result; any parameter change does.
func Key(kind, clientSlug string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(clientSlug)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WithCache returns the live cached value for key if one exists; otherwise it
// invokes producer, stores the result under the kind's TTL, and returns it.
// Producer errors propagate uncached so a failed fetch never poisons the
// cache or blocks future attempts.
func (s *Service) WithCache(ctx context.Context, kind, clientSlug, key string, producer func(context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := s.get(key); ok {
		return v, nil
	}

	v, err := producer(ctx)
	if err != nil {
		return nil, err
	}

	ttl, ok := kindTTLs[kind]
	if !ok {
		ttl = defaultTTL
	}

	s.mu.Lock()
	s.entries[key] = entry{
		value:      v,
		clientSlug: clientSlug,
		storedAt:   s.now(),
		ttl:        ttl,
	}
	s.mu.Unlock()

	return v, nil
}

func (s *Service) get(key string) (interface{}, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if s.now().Sub(e.storedAt) > e.ttl {
		// Lazy eviction on read.
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Invalidate drops a single entry.
func (s *Service) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// ClearClient drops every entry owned by the given client slug. Used when a
// client is deleted or their credentials change.
func (s *Service) ClearClient(clientSlug string) {
	s.mu.Lock()
	for k, e := range s.entries {
		if e.clientSlug == clientSlug {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}

// ClearAll drops every entry. Operational reset, not part of request flow.
func (s *Service) ClearAll() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}

// Len reports the number of live or expired-but-unread entries.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
