package perms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bredsky212/Logiq212/internal/audit"
)

// SecurityService manages a community's bootstrap state and protection sets.
type SecurityService struct {
	store SecurityStore
	audit *audit.Recorder
	opts  options
}

// NewSecurityService constructs a SecurityService.
func NewSecurityService(store SecurityStore, rec *audit.Recorder, opts ...Option) (*SecurityService, error) {
	if store == nil {
		return nil, errors.New("security store is required")
	}
	if rec == nil {
		return nil, errors.New("audit recorder is required")
	}
	return &SecurityService{store: store, audit: rec, opts: buildOptions(opts)}, nil
}

// Get returns the community's config; the zero config when none is stored.
func (s *SecurityService) Get(ctx context.Context, communityID string) (SecurityConfig, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return SecurityConfig{}, fmt.Errorf("%w: community_id is required", ErrInvalidInput)
	}
	return s.load(ctx, communityID)
}

// Bootstrap marks the community bootstrapped and stores seed as the
// protected groups. It fails with ErrAlreadyBootstrapped on every call
// after the first, and with ErrInvalidInput when seed names no group.
func (s *SecurityService) Bootstrap(ctx context.Context, communityID, actorID string, seed []string) (SecurityConfig, error) {
	communityID, actorID, err := validateActor(communityID, actorID)
	if err != nil {
		return SecurityConfig{}, err
	}
	cfg, err := s.load(ctx, communityID)
	if err != nil {
		return SecurityConfig{}, err
	}
	if cfg.Bootstrapped {
		return cfg, ErrAlreadyBootstrapped
	}
	groups := normalizeSet(seed)
	if len(groups) == 0 {
		return SecurityConfig{}, fmt.Errorf("%w: bootstrap needs at least one protected group", ErrInvalidInput)
	}

	now := s.opts.now().UTC()
	next := cfg
	next.Bootstrapped = true
	next.ProtectedGroups = groups
	next.BootstrappedAt = &now
	next.BootstrappedBy = actorID
	next.UpdatedAt = now
	if err := s.store.PutSecurity(ctx, next); err != nil {
		return SecurityConfig{}, storeErr("put security", err)
	}
	if _, err := s.audit.Record(ctx, audit.Entry{
		CommunityID: communityID,
		ActorID:     actorID,
		Action:      audit.ActionBootstrap,
		Reason:      strings.Join(next.ProtectedGroups, ","),
	}); err != nil {
		return next, storeErr("append audit", err)
	}
	return next, nil
}

// AddProtected adds group to the protected groups.
func (s *SecurityService) AddProtected(ctx context.Context, communityID, actorID, group string) (SecurityConfig, error) {
	return s.mutate(ctx, communityID, actorID, group, "group", func(cfg *SecurityConfig, v string) (audit.Entry, bool, error) {
		var ok bool
		cfg.ProtectedGroups, ok = setAdd(cfg.ProtectedGroups, v)
		return audit.Entry{Action: audit.ActionProtectedAdd, TargetGroup: v}, ok, nil
	})
}

// RemoveProtected removes group from the protected groups. Removing the
// last one fails with ErrLastProtectedGroup and leaves the set unchanged.
func (s *SecurityService) RemoveProtected(ctx context.Context, communityID, actorID, group string) (SecurityConfig, error) {
	return s.mutate(ctx, communityID, actorID, group, "group", func(cfg *SecurityConfig, v string) (audit.Entry, bool, error) {
		next, ok := setRemove(cfg.ProtectedGroups, v)
		if !ok {
			return audit.Entry{}, false, nil
		}
		if len(next) == 0 {
			return audit.Entry{}, false, ErrLastProtectedGroup
		}
		cfg.ProtectedGroups = next
		return audit.Entry{Action: audit.ActionProtectedRemove, TargetGroup: v}, true, nil
	})
}

// AddProtectedUser adds user to the protected users.
func (s *SecurityService) AddProtectedUser(ctx context.Context, communityID, actorID, user string) (SecurityConfig, error) {
	return s.mutate(ctx, communityID, actorID, user, "user", func(cfg *SecurityConfig, v string) (audit.Entry, bool, error) {
		var ok bool
		cfg.ProtectedUsers, ok = setAdd(cfg.ProtectedUsers, v)
		return audit.Entry{Action: audit.ActionProtectedUserAdd, TargetUser: v}, ok, nil
	})
}

// RemoveProtectedUser removes user from the protected users.
func (s *SecurityService) RemoveProtectedUser(ctx context.Context, communityID, actorID, user string) (SecurityConfig, error) {
	return s.mutate(ctx, communityID, actorID, user, "user", func(cfg *SecurityConfig, v string) (audit.Entry, bool, error) {
		var ok bool
		cfg.ProtectedUsers, ok = setRemove(cfg.ProtectedUsers, v)
		return audit.Entry{Action: audit.ActionProtectedUserRemove, TargetUser: v}, ok, nil
	})
}

func (s *SecurityService) mutate(
	ctx context.Context,
	communityID, actorID, value, field string,
	apply func(cfg *SecurityConfig, v string) (audit.Entry, bool, error),
) (SecurityConfig, error) {
	communityID, actorID, err := validateActor(communityID, actorID)
	if err != nil {
		return SecurityConfig{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return SecurityConfig{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	cfg, err := s.load(ctx, communityID)
	if err != nil {
		return SecurityConfig{}, err
	}
	if !cfg.Bootstrapped {
		return cfg, ErrNotBootstrapped
	}

	next := cfg
	entry, changed, err := apply(&next, value)
	if err != nil {
		return cfg, err
	}
	if !changed {
		return cfg, nil
	}
	next.UpdatedAt = s.opts.now().UTC()
	if err := s.store.PutSecurity(ctx, next); err != nil {
		return SecurityConfig{}, storeErr("put security", err)
	}
	entry.CommunityID = communityID
	entry.ActorID = actorID
	if _, err := s.audit.Record(ctx, entry); err != nil {
		return next, storeErr("append audit", err)
	}
	return next, nil
}

func (s *SecurityService) load(ctx context.Context, communityID string) (SecurityConfig, error) {
	cfg, err := s.store.GetSecurity(ctx, communityID)
	if errors.Is(err, ErrNotFound) {
		return SecurityConfig{CommunityID: communityID}, nil
	}
	if err != nil {
		return SecurityConfig{}, storeErr("get security", err)
	}
	return cfg, nil
}

func validateActor(communityID, actorID string) (string, string, error) {
	communityID = strings.TrimSpace(communityID)
	actorID = strings.TrimSpace(actorID)
	if communityID == "" || actorID == "" {
		return "", "", fmt.Errorf("%w: community_id and actor_id are required", ErrInvalidInput)
	}
	return communityID, actorID, nil
}
