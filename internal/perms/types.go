package perms

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bredsky212/Logiq212/internal/features"
)

// Group is a platform permission-group (a role) with the capability flags
// the platform reports for it.
type Group struct {
	ID              string `json:"id"`
	Admin           bool   `json:"admin"`
	ManageCommunity bool   `json:"manage_community"`
}

// Override holds the extra allow and deny sets for one feature in one community.
type Override struct {
	CommunityID string       `json:"community_id"`
	Feature     features.Key `json:"feature"`
	Allow       []string     `json:"allow"`
	Deny        []string     `json:"deny"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Empty reports whether neither set has members.
func (o Override) Empty() bool {
	return len(o.Allow) == 0 && len(o.Deny) == 0
}

// SecurityConfig is a community's bootstrap state and protection sets.
// The community owner is always protected but never stored here.
type SecurityConfig struct {
	CommunityID     string     `json:"community_id"`
	Bootstrapped    bool       `json:"bootstrapped"`
	ProtectedGroups []string   `json:"protected_groups"`
	ProtectedUsers  []string   `json:"protected_users"`
	BootstrappedAt  *time.Time `json:"bootstrapped_at,omitempty"`
	BootstrappedBy  string     `json:"bootstrapped_by,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Actor is the member attempting an action, as described by the platform.
type Actor struct {
	ID              string   `json:"id"`
	Groups          []string `json:"groups"`
	NativeOK        bool     `json:"native_ok"`
	Admin           bool     `json:"admin"`
	ManageCommunity bool     `json:"manage_community"`
}

// Target is the member an action is aimed at.
type Target struct {
	UserID string   `json:"user_id"`
	Groups []string `json:"groups"`
}

// SeedGroups returns the ids of groups carrying admin or manage-community
// capability; these become the protected groups at bootstrap.
func SeedGroups(groups []Group) []string {
	var out []string
	for _, g := range groups {
		if g.Admin || g.ManageCommunity {
			out = append(out, g.ID)
		}
	}
	return normalizeSet(out)
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func setAdd(set []string, v string) ([]string, bool) {
	if slices.Contains(set, v) {
		return set, false
	}
	out := append(slices.Clone(set), v)
	sort.Strings(out)
	return out, true
}

func setRemove(set []string, v string) ([]string, bool) {
	i := slices.Index(set, v)
	if i < 0 {
		return set, false
	}
	out := slices.Delete(slices.Clone(set), i, i+1)
	if len(out) == 0 {
		return nil, true
	}
	return out, true
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}
