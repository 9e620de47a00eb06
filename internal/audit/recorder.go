package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/ids"
	"github.com/bredsky212/Logiq212/internal/obs"
)

// Recorder writes entries to a Store, throttling denied attempts.
type Recorder struct {
	store    Store
	throttle Throttle
	now      func() time.Time
	publish  []func(Entry)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithPublisher registers fn to receive every entry after it is stored.
// fn must not block.
func WithPublisher(fn func(Entry)) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.publish = append(r.publish, fn)
		}
	}
}

// WithThrottle replaces the default in-memory denial throttle.
func WithThrottle(t Throttle) Option {
	return func(r *Recorder) {
		if t != nil {
			r.throttle = t
		}
	}
}

// NewRecorder builds a Recorder over store.
func NewRecorder(store Store, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	r := &Recorder{
		store:    store,
		throttle: NewMemThrottle(0, DefaultDenialCooldown),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends e, filling in ID and OccurredAt.
func (r *Recorder) Record(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.CommunityID) == "" || e.Action == "" {
		return Entry{}, errors.New("audit: community and action are required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.ID == "" {
		e.ID = ids.NewAt(e.OccurredAt)
	}
	if err := r.store.AppendAudit(ctx, e); err != nil {
		return Entry{}, storeErr("append audit", err)
	}
	obs.ObserveAuditEntry(string(e.Action))
	LogEvent(ctx, "audit."+string(e.Action),
		zap.String("community_id", e.CommunityID),
		zap.String("actor_id", e.ActorID),
		zap.String("feature", string(e.Feature)),
		zap.String("target_group", e.TargetGroup),
		zap.String("target_user", e.TargetUser),
		zap.String("reason", e.Reason),
	)
	for _, fn := range r.publish {
		fn(e)
	}
	return e, nil
}

// RecordDenial appends a denied-attempt entry unless one was already
// recorded for the same community, actor and feature within the cooldown.
// It reports whether an entry was written. When the throttle itself fails
// the entry is written anyway.
func (r *Recorder) RecordDenial(ctx context.Context, e Entry) (bool, error) {
	e.Action = ActionDeniedAttempt
	key := DenialKey(e.CommunityID, e.ActorID, e.Feature)
	claimed, err := r.throttle.Allow(ctx, key)
	if err != nil {
		obs.Logger().Warn("denial throttle failed; recording anyway", zap.Error(err))
	}
	if err == nil && !claimed {
		obs.ObserveDenialThrottled()
		return false, nil
	}
	if _, err := r.Record(ctx, e); err != nil {
		// The window only counts once an entry is stored.
		if claimed {
			if rerr := r.throttle.Release(ctx, key); rerr != nil {
				obs.Logger().Warn("denial throttle release failed", zap.Error(rerr))
			}
		}
		return false, err
	}
	return true, nil
}

// List returns a community's entries, newest first.
func (r *Recorder) List(ctx context.Context, communityID string, q Query) ([]Entry, error) {
	entries, err := r.store.ListAudit(ctx, communityID, q)
	if err != nil {
		return nil, storeErr("list audit", err)
	}
	return entries, nil
}
