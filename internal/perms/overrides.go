package perms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
)

// OverrideService manages per-feature allow and deny sets. Callers must
// have verified that the acting member holds manage-community or admin
// capability before calling any mutating method.
type OverrideService struct {
	store OverrideStore
	audit *audit.Recorder
	opts  options
}

// NewOverrideService constructs an OverrideService.
func NewOverrideService(store OverrideStore, rec *audit.Recorder, opts ...Option) (*OverrideService, error) {
	if store == nil {
		return nil, errors.New("override store is required")
	}
	if rec == nil {
		return nil, errors.New("audit recorder is required")
	}
	return &OverrideService{store: store, audit: rec, opts: buildOptions(opts)}, nil
}

// Change describes the effect of a mutating call.
type Change struct {
	Override Override      `json:"override"`
	Changed  bool          `json:"changed"`
	Entries  []audit.Entry `json:"audit,omitempty"`
}

// Allow adds group to feature's allow-set.
func (s *OverrideService) Allow(ctx context.Context, communityID, actorID string, feature features.Key, group string) (Change, error) {
	return s.mutate(ctx, communityID, actorID, feature, group, func(o *Override) []audit.Action {
		var ok bool
		if o.Allow, ok = setAdd(o.Allow, group); ok {
			return []audit.Action{audit.ActionAllowAdd}
		}
		return nil
	})
}

// Deny adds group to feature's deny-set. A group may sit in both sets;
// deny wins at evaluation time.
func (s *OverrideService) Deny(ctx context.Context, communityID, actorID string, feature features.Key, group string) (Change, error) {
	return s.mutate(ctx, communityID, actorID, feature, group, func(o *Override) []audit.Action {
		var ok bool
		if o.Deny, ok = setAdd(o.Deny, group); ok {
			return []audit.Action{audit.ActionDenyAdd}
		}
		return nil
	})
}

// Clear removes group from both sets, auditing each set it was actually in.
func (s *OverrideService) Clear(ctx context.Context, communityID, actorID string, feature features.Key, group string) (Change, error) {
	return s.mutate(ctx, communityID, actorID, feature, group, func(o *Override) []audit.Action {
		var actions []audit.Action
		var ok bool
		if o.Allow, ok = setRemove(o.Allow, group); ok {
			actions = append(actions, audit.ActionAllowRemove)
		}
		if o.Deny, ok = setRemove(o.Deny, group); ok {
			actions = append(actions, audit.ActionDenyRemove)
		}
		return actions
	})
}

// Reset deletes feature's override record. It always writes a reset entry
// and reports whether a record existed.
func (s *OverrideService) Reset(ctx context.Context, communityID, actorID string, feature features.Key) (bool, error) {
	communityID, actorID, err := validateScope(communityID, actorID, feature)
	if err != nil {
		return false, err
	}
	existed := true
	if err := s.store.DeleteOverride(ctx, communityID, feature); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return false, storeErr("delete override", err)
		}
		existed = false
	}
	if _, err := s.audit.Record(ctx, audit.Entry{
		CommunityID: communityID,
		ActorID:     actorID,
		Feature:     feature,
		Action:      audit.ActionReset,
	}); err != nil {
		return existed, storeErr("append audit", err)
	}
	return existed, nil
}

// Get returns feature's override, or false when none exists.
func (s *OverrideService) Get(ctx context.Context, communityID string, feature features.Key) (Override, bool, error) {
	o, err := s.store.GetOverride(ctx, communityID, feature)
	if errors.Is(err, ErrNotFound) {
		return Override{}, false, nil
	}
	if err != nil {
		return Override{}, false, storeErr("get override", err)
	}
	return o, true, nil
}

// List returns the community's overrides sorted by feature. When filter is
// non-nil only features in it are returned.
func (s *OverrideService) List(ctx context.Context, communityID string, filter map[features.Key]struct{}) ([]Override, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("%w: community_id is required", ErrInvalidInput)
	}
	all, err := s.store.ListOverrides(ctx, communityID)
	if err != nil {
		return nil, storeErr("list overrides", err)
	}
	out := make([]Override, 0, len(all))
	for _, o := range all {
		if filter != nil {
			if _, ok := filter[o.Feature]; !ok {
				continue
			}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out, nil
}

func (s *OverrideService) mutate(
	ctx context.Context,
	communityID, actorID string,
	feature features.Key,
	group string,
	apply func(o *Override) []audit.Action,
) (Change, error) {
	communityID, actorID, err := validateScope(communityID, actorID, feature)
	if err != nil {
		return Change{}, err
	}
	group = strings.TrimSpace(group)
	if group == "" {
		return Change{}, fmt.Errorf("%w: group is required", ErrInvalidInput)
	}

	current, err := s.store.GetOverride(ctx, communityID, feature)
	switch {
	case errors.Is(err, ErrNotFound):
		current = Override{CommunityID: communityID, Feature: feature}
	case err != nil:
		return Change{}, storeErr("get override", err)
	}

	next := current
	actions := apply(&next)
	if len(actions) == 0 {
		return Change{Override: current}, nil
	}
	next.UpdatedAt = s.opts.now().UTC()

	if next.Empty() {
		if err := s.store.DeleteOverride(ctx, communityID, feature); err != nil && !errors.Is(err, ErrNotFound) {
			return Change{}, storeErr("delete override", err)
		}
	} else if err := s.store.PutOverride(ctx, next); err != nil {
		return Change{}, storeErr("put override", err)
	}

	change := Change{Override: next, Changed: true}
	for _, action := range actions {
		entry, err := s.audit.Record(ctx, audit.Entry{
			CommunityID: communityID,
			ActorID:     actorID,
			Feature:     feature,
			Action:      action,
			TargetGroup: group,
		})
		if err != nil {
			return change, storeErr("append audit", err)
		}
		change.Entries = append(change.Entries, entry)
	}
	return change, nil
}

func validateScope(communityID, actorID string, feature features.Key) (string, string, error) {
	communityID = strings.TrimSpace(communityID)
	actorID = strings.TrimSpace(actorID)
	if communityID == "" || actorID == "" {
		return "", "", fmt.Errorf("%w: community_id and actor_id are required", ErrInvalidInput)
	}
	if !features.Exists(feature) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFeatureKey, feature)
	}
	return communityID, actorID, nil
}
