package perms

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
)

type fakeStore struct {
	mu        sync.Mutex
	overrides map[string]Override
	security  map[string]SecurityConfig
	entries   []audit.Entry
	failRead  error
	failWrite error
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		overrides: make(map[string]Override),
		security:  make(map[string]SecurityConfig),
	}
}

func overrideKey(community string, feature features.Key) string {
	return community + "/" + string(feature)
}

func (s *fakeStore) GetOverride(ctx context.Context, communityID string, feature features.Key) (Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead != nil {
		return Override{}, s.failRead
	}
	o, ok := s.overrides[overrideKey(communityID, feature)]
	if !ok {
		return Override{}, ErrNotFound
	}
	o.Allow = slices.Clone(o.Allow)
	o.Deny = slices.Clone(o.Deny)
	return o, nil
}

func (s *fakeStore) PutOverride(ctx context.Context, o Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	s.writes++
	s.overrides[overrideKey(o.CommunityID, o.Feature)] = o
	return nil
}

func (s *fakeStore) DeleteOverride(ctx context.Context, communityID string, feature features.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	k := overrideKey(communityID, feature)
	if _, ok := s.overrides[k]; !ok {
		return ErrNotFound
	}
	s.writes++
	delete(s.overrides, k)
	return nil
}

func (s *fakeStore) ListOverrides(ctx context.Context, communityID string) ([]Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead != nil {
		return nil, s.failRead
	}
	var out []Override
	for _, o := range s.overrides {
		if o.CommunityID == communityID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSecurity(ctx context.Context, communityID string) (SecurityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead != nil {
		return SecurityConfig{}, s.failRead
	}
	cfg, ok := s.security[communityID]
	if !ok {
		return SecurityConfig{}, ErrNotFound
	}
	cfg.ProtectedGroups = slices.Clone(cfg.ProtectedGroups)
	cfg.ProtectedUsers = slices.Clone(cfg.ProtectedUsers)
	return cfg, nil
}

func (s *fakeStore) PutSecurity(ctx context.Context, cfg SecurityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return s.failWrite
	}
	s.writes++
	s.security[cfg.CommunityID] = cfg
	return nil
}

func (s *fakeStore) AppendAudit(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) ListAudit(ctx context.Context, communityID string, q audit.Query) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.CommunityID == communityID && q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) actions() []audit.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Action, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	store     *fakeStore
	gate      *Gate
	overrides *OverrideService
	security  *SecurityService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newFakeStore()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	rec, err := audit.NewRecorder(store, audit.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	gate, err := NewGate(store, rec)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	ov, err := NewOverrideService(store, rec, WithClock(clock))
	if err != nil {
		t.Fatalf("NewOverrideService: %v", err)
	}
	sec, err := NewSecurityService(store, rec, WithClock(clock))
	if err != nil {
		t.Fatalf("NewSecurityService: %v", err)
	}
	return fixture{store: store, gate: gate, overrides: ov, security: sec}
}
