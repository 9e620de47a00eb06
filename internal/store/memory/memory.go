// Package memory is an in-process implementation of every store interface.
// State is lost on restart; use it for tests and single-node development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

var (
	_ perms.Store      = (*Store)(nil)
	_ audit.Store      = (*Store)(nil)
	_ suspension.Store = (*Store)(nil)
)

type overrideKey struct {
	community string
	feature   features.Key
}

// Store keeps all entities in maps guarded by one lock.
type Store struct {
	mu          sync.RWMutex
	overrides   map[overrideKey]perms.Override
	security    map[string]perms.SecurityConfig
	audit       map[string][]audit.Entry
	suspensions map[string]suspension.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		overrides:   make(map[overrideKey]perms.Override),
		security:    make(map[string]perms.SecurityConfig),
		audit:       make(map[string][]audit.Entry),
		suspensions: make(map[string]suspension.Record),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetOverride(ctx context.Context, communityID string, feature features.Key) (perms.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[overrideKey{communityID, feature}]
	if !ok {
		return perms.Override{}, perms.ErrNotFound
	}
	return cloneOverride(o), nil
}

func (s *Store) PutOverride(ctx context.Context, o perms.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{o.CommunityID, o.Feature}] = cloneOverride(o)
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, communityID string, feature features.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := overrideKey{communityID, feature}
	if _, ok := s.overrides[k]; !ok {
		return perms.ErrNotFound
	}
	delete(s.overrides, k)
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, communityID string) ([]perms.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []perms.Override
	for k, o := range s.overrides {
		if k.community == communityID {
			out = append(out, cloneOverride(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out, nil
}

func (s *Store) GetSecurity(ctx context.Context, communityID string) (perms.SecurityConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.security[communityID]
	if !ok {
		return perms.SecurityConfig{}, perms.ErrNotFound
	}
	return cloneSecurity(cfg), nil
}

func (s *Store) PutSecurity(ctx context.Context, cfg perms.SecurityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security[cfg.CommunityID] = cloneSecurity(cfg)
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[e.CommunityID] = append(s.audit[e.CommunityID], e)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, communityID string, q audit.Query) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[communityID]
	limit := q.EffectiveLimit()
	var out []audit.Entry
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if q.Matches(entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

func (s *Store) GetActiveSuspension(ctx context.Context, communityID, userID string) (suspension.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.suspensions {
		if r.Active && r.CommunityID == communityID && r.UserID == userID {
			return r, nil
		}
	}
	return suspension.Record{}, suspension.ErrNotFound
}

func (s *Store) PutSuspension(ctx context.Context, r suspension.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspensions[r.ID] = r
	return nil
}

func (s *Store) ListSuspensions(ctx context.Context, communityID, userID string, limit int) ([]suspension.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []suspension.Record
	for _, r := range s.suspensions {
		if r.CommunityID == communityID && r.UserID == userID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListActiveSuspensions(ctx context.Context) ([]suspension.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []suspension.Record
	for _, r := range s.suspensions {
		if r.Active {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(recs []suspension.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].StartedAt.After(recs[j].StartedAt)
		}
		return recs[i].ID > recs[j].ID
	})
}

func cloneOverride(o perms.Override) perms.Override {
	o.Allow = slices.Clone(o.Allow)
	o.Deny = slices.Clone(o.Deny)
	return o
}

func cloneSecurity(cfg perms.SecurityConfig) perms.SecurityConfig {
	cfg.ProtectedGroups = slices.Clone(cfg.ProtectedGroups)
	cfg.ProtectedUsers = slices.Clone(cfg.ProtectedUsers)
	if cfg.BootstrappedAt != nil {
		t := *cfg.BootstrappedAt
		cfg.BootstrappedAt = &t
	}
	return cfg
}
