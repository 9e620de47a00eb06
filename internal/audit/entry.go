package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bredsky212/Logiq212/internal/features"
)

// ErrStoreUnavailable marks a failed read or write of the backing store.
// The perms package shares this sentinel.
var ErrStoreUnavailable = errors.New("store unavailable")

func storeErr(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Action is the kind of change an entry records.
type Action string

const (
	ActionAllowAdd      Action = "allow-add"
	ActionAllowRemove   Action = "allow-remove"
	ActionDenyAdd       Action = "deny-add"
	ActionDenyRemove    Action = "deny-remove"
	ActionReset         Action = "reset"
	ActionDeniedAttempt Action = "denied-attempt"

	ActionBootstrap           Action = "security-bootstrap"
	ActionProtectedAdd        Action = "protected-add"
	ActionProtectedRemove     Action = "protected-remove"
	ActionProtectedUserAdd    Action = "protected-user-add"
	ActionProtectedUserRemove Action = "protected-user-remove"

	ActionSuspend              Action = "suspend"
	ActionUnsuspend            Action = "unsuspend"
	ActionSuspensionExpired    Action = "suspension-expired"
	ActionSuspensionSuperseded Action = "suspension-superseded"
)

// Entry is an immutable audit record.
type Entry struct {
	ID          string       `json:"id" bson:"_id"`
	OccurredAt  time.Time    `json:"occurred_at" bson:"occurred_at"`
	CommunityID string       `json:"community_id" bson:"community_id"`
	ActorID     string       `json:"actor_id" bson:"actor_id"`
	Feature     features.Key `json:"feature,omitempty" bson:"feature,omitempty"`
	Action      Action       `json:"action" bson:"action"`
	TargetGroup string       `json:"target_group,omitempty" bson:"target_group,omitempty"`
	TargetUser  string       `json:"target_user,omitempty" bson:"target_user,omitempty"`
	Reason      string       `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Query filters a community's audit trail. Zero fields match everything.
type Query struct {
	Feature features.Key
	Action  Action
	ActorID string
	Limit   int
}

// DefaultListLimit caps List results when Query.Limit is unset.
const DefaultListLimit = 100

// Store persists audit entries.
type Store interface {
	AppendAudit(ctx context.Context, entry Entry) error
	// ListAudit returns matching entries for a community, newest first.
	ListAudit(ctx context.Context, communityID string, q Query) ([]Entry, error)
}

// Matches reports whether e satisfies q's filters (Limit is ignored).
func (q Query) Matches(e Entry) bool {
	if q.Feature != "" && e.Feature != q.Feature {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	return true
}

// EffectiveLimit returns the limit to apply for q.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 || q.Limit > 1000 {
		return DefaultListLimit
	}
	return q.Limit
}
