package suspension

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDurationNotAllowed   = errors.New("suspension: duration not allowed")
	ErrNoActiveSuspension   = errors.New("suspension: no active suspension")
	ErrPlatformInconsistent = errors.New("suspension: platform restriction out of sync with record")

	// ErrNotFound is returned by stores when no active record exists.
	ErrNotFound = errors.New("suspension: not found")
)

// EndReason records why a suspension stopped being active.
type EndReason string

const (
	EndExpired    EndReason = "expired"
	EndManual     EndReason = "manual"
	EndSuperseded EndReason = "superseded"
)

// State is the lifecycle position of a record.
type State string

const (
	StateNone          State = "NONE"
	StateActive        State = "ACTIVE"
	StateExpired       State = "EXPIRED"
	StateManuallyEnded State = "MANUALLY_ENDED"
	StateSuperseded    State = "SUPERSEDED"
)

// Record is one suspension of one user in one community.
type Record struct {
	ID          string        `json:"id" bson:"_id"`
	CommunityID string        `json:"community_id" bson:"community_id"`
	UserID      string        `json:"user_id" bson:"user_id"`
	Active      bool          `json:"active" bson:"active"`
	StartedAt   time.Time     `json:"started_at" bson:"started_at"`
	Duration    time.Duration `json:"duration" bson:"duration"`
	Reason      string        `json:"reason,omitempty" bson:"reason,omitempty"`
	IssuerID    string        `json:"issuer_id" bson:"issuer_id"`
	EndedAt     *time.Time    `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	EndReason   EndReason     `json:"end_reason,omitempty" bson:"end_reason,omitempty"`
	EndedBy     string        `json:"ended_by,omitempty" bson:"ended_by,omitempty"`
}

// State derives the lifecycle state from Active and EndReason.
func (r Record) State() State {
	if r.Active {
		return StateActive
	}
	switch r.EndReason {
	case EndExpired:
		return StateExpired
	case EndManual:
		return StateManuallyEnded
	case EndSuperseded:
		return StateSuperseded
	}
	return StateNone
}

// ExpiresAt is when the platform restriction lapses.
func (r Record) ExpiresAt() time.Time {
	return r.StartedAt.Add(r.Duration)
}

// Overdue reports whether an active record has outlived its duration.
func (r Record) Overdue(now time.Time) bool {
	return r.Active && !now.Before(r.ExpiresAt())
}

func (r *Record) end(reason EndReason, by string, at time.Time) {
	r.Active = false
	r.EndedAt = &at
	r.EndReason = reason
	r.EndedBy = by
}

// Store persists suspension records. Writes are single-record upserts
// keyed by Record.ID.
type Store interface {
	// GetActiveSuspension returns the active record or ErrNotFound.
	GetActiveSuspension(ctx context.Context, communityID, userID string) (Record, error)
	PutSuspension(ctx context.Context, r Record) error
	// ListSuspensions returns up to limit records for the user, newest first.
	ListSuspensions(ctx context.Context, communityID, userID string, limit int) ([]Record, error)
	// ListActiveSuspensions returns every active record across communities.
	ListActiveSuspensions(ctx context.Context) ([]Record, error)
}

// Restrictor applies and lifts the platform-side communication restriction.
type Restrictor interface {
	Apply(ctx context.Context, communityID, userID string, d time.Duration) error
	Lift(ctx context.Context, communityID, userID string) error
}
