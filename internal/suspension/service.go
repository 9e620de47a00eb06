package suspension

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/ids"
	"github.com/bredsky212/Logiq212/internal/obs"
	"github.com/bredsky212/Logiq212/internal/perms"
)

// DefaultDurations are the suspension lengths offered to moderators.
var DefaultDurations = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// DefaultHistoryLimit bounds the past records returned by Status.
const DefaultHistoryLimit = 5

const (
	actorPlatform = "platform"
	actorSweeper  = "sweeper"
)

// Authorizer answers gate questions; *perms.Gate satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, req perms.Request) (perms.Verdict, error)
}

// Config tunes a Service.
type Config struct {
	Durations    []time.Duration
	HistoryLimit int
	Now          func() time.Time
}

// Service runs the suspension lifecycle.
type Service struct {
	store      Store
	gate       Authorizer
	restrictor Restrictor
	audit      *audit.Recorder
	durations  []time.Duration
	history    int
	now        func() time.Time
}

// NewService constructs a Service. Zero Config fields take defaults.
func NewService(store Store, gate Authorizer, restrictor Restrictor, rec *audit.Recorder, cfg Config) (*Service, error) {
	switch {
	case store == nil:
		return nil, errors.New("suspension store is required")
	case gate == nil:
		return nil, errors.New("authorizer is required")
	case restrictor == nil:
		return nil, errors.New("restrictor is required")
	case rec == nil:
		return nil, errors.New("audit recorder is required")
	}
	s := &Service{
		store:      store,
		gate:       gate,
		restrictor: restrictor,
		audit:      rec,
		durations:  slices.Clone(cfg.Durations),
		history:    cfg.HistoryLimit,
		now:        cfg.Now,
	}
	if len(s.durations) == 0 {
		s.durations = slices.Clone(DefaultDurations)
	}
	slices.Sort(s.durations)
	if s.history <= 0 {
		s.history = DefaultHistoryLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Durations returns the allowed suspension lengths, shortest first.
func (s *Service) Durations() []time.Duration {
	return slices.Clone(s.durations)
}

// SuspendRequest asks to restrict Target for Duration.
type SuspendRequest struct {
	CommunityID string        `json:"community_id"`
	OwnerID     string        `json:"owner_id"`
	Actor       perms.Actor   `json:"actor"`
	Target      perms.Target  `json:"target"`
	Duration    time.Duration `json:"duration"`
	Reason      string        `json:"reason"`
}

// UnsuspendRequest asks to lift UserID's active suspension.
type UnsuspendRequest struct {
	CommunityID string      `json:"community_id"`
	OwnerID     string      `json:"owner_id"`
	Actor       perms.Actor `json:"actor"`
	UserID      string      `json:"user_id"`
	Reason      string      `json:"reason"`
}

// Result carries the gate verdict and, when allowed, the records touched.
type Result struct {
	Verdict    perms.Verdict `json:"verdict"`
	Record     *Record       `json:"record,omitempty"`
	Superseded *Record       `json:"superseded,omitempty"`
}

// Status is the informational view of a user's suspensions.
type Status struct {
	Active  *Record  `json:"active,omitempty"`
	History []Record `json:"history"`
}

// Suspend authorizes and applies a new suspension, superseding any active one.
// A denied verdict is returned with a nil error and no side effects.
func (s *Service) Suspend(ctx context.Context, req SuspendRequest) (Result, error) {
	communityID, userID, err := scope(req.CommunityID, req.Target.UserID)
	if err != nil {
		return Result{}, err
	}
	if !slices.Contains(s.durations, req.Duration) {
		return Result{}, fmt.Errorf("%w: %s", ErrDurationNotAllowed, req.Duration)
	}

	target := req.Target
	target.UserID = userID
	v, err := s.gate.Authorize(ctx, perms.Request{
		CommunityID: communityID,
		OwnerID:     req.OwnerID,
		Actor:       req.Actor,
		Feature:     features.VCSuspend,
		Target:      &target,
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Verdict: v}
	if !v.Allowed {
		return res, nil
	}

	now := s.now().UTC()
	prev, err := s.store.GetActiveSuspension(ctx, communityID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return res, storeErr("get active suspension", err)
	default:
		prev.end(EndSuperseded, req.Actor.ID, now)
		if err := s.store.PutSuspension(ctx, prev); err != nil {
			return res, storeErr("close superseded suspension", err)
		}
		res.Superseded = &prev
		s.transition(ctx, prev, audit.ActionSuspensionSuperseded, string(EndSuperseded), req.Actor.ID)
	}

	rec := Record{
		ID:          ids.NewAt(now),
		CommunityID: communityID,
		UserID:      userID,
		Active:      true,
		StartedAt:   now,
		Duration:    req.Duration,
		Reason:      strings.TrimSpace(req.Reason),
		IssuerID:    req.Actor.ID,
	}
	if err := s.store.PutSuspension(ctx, rec); err != nil {
		return res, storeErr("put suspension", err)
	}
	res.Record = &rec
	s.transition(ctx, rec, audit.ActionSuspend, rec.Reason, req.Actor.ID)

	if err := s.restrictor.Apply(ctx, communityID, userID, req.Duration); err != nil {
		return res, fmt.Errorf("%w: apply restriction: %v", ErrPlatformInconsistent, err)
	}
	return res, nil
}

// Unsuspend authorizes and ends the active suspension, then lifts the
// platform restriction.
func (s *Service) Unsuspend(ctx context.Context, req UnsuspendRequest) (Result, error) {
	communityID, userID, err := scope(req.CommunityID, req.UserID)
	if err != nil {
		return Result{}, err
	}
	// Lifting a suspension is never blocked by target protection.
	v, err := s.gate.Authorize(ctx, perms.Request{
		CommunityID: communityID,
		OwnerID:     req.OwnerID,
		Actor:       req.Actor,
		Feature:     features.VCSuspend,
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{Verdict: v}
	if !v.Allowed {
		return res, nil
	}

	rec, err := s.store.GetActiveSuspension(ctx, communityID, userID)
	if errors.Is(err, ErrNotFound) {
		return res, ErrNoActiveSuspension
	}
	if err != nil {
		return res, storeErr("get active suspension", err)
	}
	rec.end(EndManual, req.Actor.ID, s.now().UTC())
	if err := s.store.PutSuspension(ctx, rec); err != nil {
		return res, storeErr("end suspension", err)
	}
	res.Record = &rec
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = string(EndManual)
	}
	s.transition(ctx, rec, audit.ActionUnsuspend, reason, req.Actor.ID)

	if err := s.restrictor.Lift(ctx, communityID, userID); err != nil {
		return res, fmt.Errorf("%w: lift restriction: %v", ErrPlatformInconsistent, err)
	}
	return res, nil
}

// Expire handles the platform's notice that a restriction lapsed. It
// reports false when there was no active record.
func (s *Service) Expire(ctx context.Context, communityID, userID string) (Record, bool, error) {
	communityID, userID, err := scope(communityID, userID)
	if err != nil {
		return Record{}, false, err
	}
	rec, err := s.store.GetActiveSuspension(ctx, communityID, userID)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storeErr("get active suspension", err)
	}
	if err := s.expire(ctx, &rec, actorPlatform); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Status returns the active record, if any, and recent history.
func (s *Service) Status(ctx context.Context, communityID, userID string) (Status, error) {
	communityID, userID, err := scope(communityID, userID)
	if err != nil {
		return Status{}, err
	}
	recs, err := s.store.ListSuspensions(ctx, communityID, userID, s.history+1)
	if err != nil {
		return Status{}, storeErr("list suspensions", err)
	}
	st := Status{History: make([]Record, 0, len(recs))}
	for i := range recs {
		if recs[i].Active && st.Active == nil {
			r := recs[i]
			st.Active = &r
			continue
		}
		if len(st.History) < s.history {
			st.History = append(st.History, recs[i])
		}
	}
	return st, nil
}

// SweepOverdue expires active records whose duration has elapsed by now.
// It only reconciles records; the platform lifts restrictions on its own.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	active, err := s.store.ListActiveSuspensions(ctx)
	if err != nil {
		return 0, storeErr("list active suspensions", err)
	}
	n := 0
	for i := range active {
		if !active[i].Overdue(now) {
			continue
		}
		if err := s.expire(ctx, &active[i], actorSweeper); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		obs.Logger().Info("expired overdue suspensions", zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) expire(ctx context.Context, rec *Record, by string) error {
	rec.end(EndExpired, by, s.now().UTC())
	if err := s.store.PutSuspension(ctx, *rec); err != nil {
		return storeErr("expire suspension", err)
	}
	s.transition(ctx, *rec, audit.ActionSuspensionExpired, string(EndExpired), by)
	return nil
}

// transition counts and audits a lifecycle change. The record write has
// already happened, so audit failures are only logged.
func (s *Service) transition(ctx context.Context, rec Record, action audit.Action, reason, actorID string) {
	label := string(action)
	if rec.EndReason != "" {
		label = string(rec.EndReason)
	}
	obs.ObserveSuspension(label)
	if _, err := s.audit.Record(ctx, audit.Entry{
		CommunityID: rec.CommunityID,
		ActorID:     actorID,
		Feature:     features.VCSuspend,
		Action:      action,
		TargetUser:  rec.UserID,
		Reason:      reason,
	}); err != nil {
		obs.Logger().Warn("record suspension transition",
			zap.String("community_id", rec.CommunityID),
			zap.String("user_id", rec.UserID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func scope(communityID, userID string) (string, string, error) {
	communityID = strings.TrimSpace(communityID)
	userID = strings.TrimSpace(userID)
	if communityID == "" || userID == "" {
		return "", "", fmt.Errorf("%w: community_id and user_id are required", perms.ErrInvalidInput)
	}
	return communityID, userID, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, perms.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", perms.ErrStoreUnavailable, op, err)
}
