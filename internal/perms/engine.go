package perms

import (
	"slices"

	"github.com/bredsky212/Logiq212/internal/features"
)

// Reason is the machine-readable cause of a verdict.
type Reason string

const (
	ReasonProtectedTarget         Reason = "protected_target"
	ReasonSecurityNotBootstrapped Reason = "security_not_bootstrapped"
	ReasonMissingNativeCapability Reason = "missing_native_capability"
	ReasonFeatureDenied           Reason = "feature_denied"
	ReasonAdminBypass             Reason = "admin_bypass"
	ReasonDefaultOpen             Reason = "default_open"
	ReasonAllowListed             Reason = "allow_listed"
	ReasonNotInAllowList          Reason = "not_in_allow_list"
)

// Verdict is the outcome of an authorization check.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow(r Reason) Verdict { return Verdict{Allowed: true, Reason: r} }
func deny(r Reason) Verdict  { return Verdict{Allowed: false, Reason: r} }

// Audited reports whether the verdict must produce a denied-attempt entry.
// A missing native capability is the platform's own refusal and is left to
// the caller.
func (v Verdict) Audited() bool {
	return !v.Allowed && v.Reason != ReasonMissingNativeCapability
}

// Input is everything Evaluate needs. Override is nil when the feature has
// no override record.
type Input struct {
	OwnerID  string
	Security SecurityConfig
	Override *Override
	Actor    Actor
	Feature  features.Key
	Target   *Target
}

// IsTargetProtected reports whether userID is immune to destructive actions:
// the owner, a protected user, or a member of a protected group.
func IsTargetProtected(cfg SecurityConfig, ownerID, userID string, userGroups []string) bool {
	if userID != "" && userID == ownerID {
		return true
	}
	if userID != "" && slices.Contains(cfg.ProtectedUsers, userID) {
		return true
	}
	return intersects(userGroups, cfg.ProtectedGroups)
}

// RequiresBootstrap reports whether feature is unusable until the community
// has been bootstrapped.
func RequiresBootstrap(feature features.Key) bool {
	return features.IsSensitive(feature)
}

type rule struct {
	name string
	eval func(in Input) (Verdict, bool)
}

// rules are evaluated in order; the first that matches decides.
var rules = []rule{
	{"protected-target", func(in Input) (Verdict, bool) {
		if in.Target == nil || in.isOwner() {
			return Verdict{}, false
		}
		if IsTargetProtected(in.Security, in.OwnerID, in.Target.UserID, in.Target.Groups) {
			return deny(ReasonProtectedTarget), true
		}
		return Verdict{}, false
	}},
	{"bootstrap", func(in Input) (Verdict, bool) {
		if RequiresBootstrap(in.Feature) && !in.Security.Bootstrapped {
			return deny(ReasonSecurityNotBootstrapped), true
		}
		return Verdict{}, false
	}},
	{"native-capability", func(in Input) (Verdict, bool) {
		if !in.Actor.NativeOK {
			return deny(ReasonMissingNativeCapability), true
		}
		return Verdict{}, false
	}},
	{"deny-set", func(in Input) (Verdict, bool) {
		if in.Override != nil && intersects(in.Actor.Groups, in.Override.Deny) {
			return deny(ReasonFeatureDenied), true
		}
		return Verdict{}, false
	}},
	{"admin-bypass", func(in Input) (Verdict, bool) {
		if in.Actor.Admin || in.Actor.ManageCommunity || in.isOwner() {
			return allow(ReasonAdminBypass), true
		}
		return Verdict{}, false
	}},
	{"default-open", func(in Input) (Verdict, bool) {
		if in.Override == nil || len(in.Override.Allow) == 0 {
			return allow(ReasonDefaultOpen), true
		}
		return Verdict{}, false
	}},
	{"allow-set", func(in Input) (Verdict, bool) {
		if intersects(in.Actor.Groups, in.Override.Allow) {
			return allow(ReasonAllowListed), true
		}
		return deny(ReasonNotInAllowList), true
	}},
}

func (in Input) isOwner() bool {
	return in.OwnerID != "" && in.Actor.ID == in.OwnerID
}

// Evaluate applies the ordered rules to in and returns the first verdict.
func Evaluate(in Input) Verdict {
	v, _ := evaluate(in)
	return v
}

func evaluate(in Input) (Verdict, string) {
	for _, r := range rules {
		if v, ok := r.eval(in); ok {
			return v, r.name
		}
	}
	// unreachable: allow-set always matches.
	return deny(ReasonNotInAllowList), "allow-set"
}
