package perms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/obs"
)

// Request is a single authorization question.
type Request struct {
	CommunityID string       `json:"community_id"`
	OwnerID     string       `json:"owner_id"`
	Actor       Actor        `json:"actor"`
	Feature     features.Key `json:"feature"`
	Target      *Target      `json:"target,omitempty"`
}

// Gate answers authorization requests against stored community state.
type Gate struct {
	store Store
	audit *audit.Recorder
}

// NewGate constructs a Gate.
func NewGate(store Store, rec *audit.Recorder) (*Gate, error) {
	if store == nil {
		return nil, errors.New("perms store is required")
	}
	if rec == nil {
		return nil, errors.New("audit recorder is required")
	}
	return &Gate{store: store, audit: rec}, nil
}

// Authorize evaluates req. Denials are returned as verdicts, not errors; an
// error means the question could not be answered.
func (g *Gate) Authorize(ctx context.Context, req Request) (Verdict, error) {
	req.CommunityID = strings.TrimSpace(req.CommunityID)
	req.Actor.ID = strings.TrimSpace(req.Actor.ID)
	if req.CommunityID == "" || req.Actor.ID == "" {
		return Verdict{}, fmt.Errorf("%w: community_id and actor.id are required", ErrInvalidInput)
	}
	if !features.Exists(req.Feature) {
		return Verdict{}, fmt.Errorf("%w: %q", ErrInvalidFeatureKey, req.Feature)
	}

	cfg, err := g.store.GetSecurity(ctx, req.CommunityID)
	switch {
	case errors.Is(err, ErrNotFound):
		cfg = SecurityConfig{CommunityID: req.CommunityID}
	case err != nil:
		return Verdict{}, storeErr("get security", err)
	}

	var override *Override
	o, err := g.store.GetOverride(ctx, req.CommunityID, req.Feature)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Verdict{}, storeErr("get override", err)
	default:
		override = &o
	}

	v, ruleName := evaluate(Input{
		OwnerID:  req.OwnerID,
		Security: cfg,
		Override: override,
		Actor:    req.Actor,
		Feature:  req.Feature,
		Target:   req.Target,
	})
	obs.ObserveVerdict(string(req.Feature), string(v.Reason), v.Allowed)
	obs.Logger().Debug("authorize",
		zap.String("community_id", req.CommunityID),
		zap.String("actor_id", req.Actor.ID),
		zap.String("feature", string(req.Feature)),
		zap.String("rule", ruleName),
		zap.Bool("allowed", v.Allowed),
	)

	if v.Audited() {
		entry := audit.Entry{
			CommunityID: req.CommunityID,
			ActorID:     req.Actor.ID,
			Feature:     req.Feature,
			Reason:      string(v.Reason),
		}
		if req.Target != nil {
			entry.TargetUser = req.Target.UserID
		}
		if _, err := g.audit.RecordDenial(ctx, entry); err != nil {
			obs.Logger().Warn("record denied attempt",
				zap.String("community_id", req.CommunityID),
				zap.String("feature", string(req.Feature)),
				zap.Error(err),
			)
		}
	}
	return v, nil
}
