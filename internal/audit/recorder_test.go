package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bredsky212/Logiq212/internal/features"
)

type sliceStore struct {
	mu      sync.Mutex
	entries []Entry
	fail    error
}

func (s *sliceStore) AppendAudit(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *sliceStore) ListAudit(ctx context.Context, communityID string, q Query) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.CommunityID == communityID && q.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

type brokenThrottle struct{}

func (brokenThrottle) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenThrottle) Release(context.Context, string) error {
	return errors.New("redis down")
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	store := &sliceStore{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := NewRecorder(store, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	e, err := rec.Record(context.Background(), Entry{
		CommunityID: "g1",
		ActorID:     "u1",
		Feature:     features.ModBan,
		Action:      ActionAllowAdd,
		TargetGroup: "r1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == "" {
		t.Fatalf("expected id")
	}
	if !e.OccurredAt.Equal(fixed) {
		t.Fatalf("occurred_at = %v, want %v", e.OccurredAt, fixed)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(store.entries))
	}
}

func TestRecordRejectsMissingCommunity(t *testing.T) {
	rec, _ := NewRecorder(&sliceStore{})
	if _, err := rec.Record(context.Background(), Entry{Action: ActionReset}); err == nil {
		t.Fatalf("expected error for missing community")
	}
}

func TestRecordDenialThrottledPerActorAndFeature(t *testing.T) {
	store := &sliceStore{}
	rec, _ := NewRecorder(store, WithThrottle(NewMemThrottle(100, time.Hour)))
	ctx := context.Background()

	base := Entry{CommunityID: "g1", ActorID: "u1", Feature: features.VCSuspend, Reason: "feature_denied"}
	written := 0
	for i := 0; i < 5; i++ {
		ok, err := rec.RecordDenial(ctx, base)
		if err != nil {
			t.Fatalf("RecordDenial: %v", err)
		}
		if ok {
			written++
		}
	}
	if written != 1 {
		t.Fatalf("expected exactly one denied-attempt entry, got %d", written)
	}

	other := base
	other.Feature = features.ModBan
	if ok, _ := rec.RecordDenial(ctx, other); !ok {
		t.Fatalf("different feature should not be throttled")
	}
	otherActor := base
	otherActor.ActorID = "u2"
	if ok, _ := rec.RecordDenial(ctx, otherActor); !ok {
		t.Fatalf("different actor should not be throttled")
	}

	got, _ := rec.List(ctx, "g1", Query{Action: ActionDeniedAttempt})
	if len(got) != 3 {
		t.Fatalf("expected 3 denied-attempt entries, got %d", len(got))
	}
	for _, e := range got {
		if e.Action != ActionDeniedAttempt {
			t.Fatalf("unexpected action %q", e.Action)
		}
	}
}

func TestRecordDenialAfterCooldown(t *testing.T) {
	store := &sliceStore{}
	rec, _ := NewRecorder(store, WithThrottle(NewMemThrottle(10, 20*time.Millisecond)))
	ctx := context.Background()
	e := Entry{CommunityID: "g1", ActorID: "u1", Feature: features.ModKick}

	if ok, _ := rec.RecordDenial(ctx, e); !ok {
		t.Fatalf("first denial should be recorded")
	}
	if ok, _ := rec.RecordDenial(ctx, e); ok {
		t.Fatalf("second denial inside cooldown should be throttled")
	}
	time.Sleep(60 * time.Millisecond)
	if ok, _ := rec.RecordDenial(ctx, e); !ok {
		t.Fatalf("denial after cooldown should be recorded")
	}
}

func TestRecordDenialFailsOpenOnThrottleError(t *testing.T) {
	store := &sliceStore{}
	rec, _ := NewRecorder(store, WithThrottle(brokenThrottle{}))
	ok, err := rec.RecordDenial(context.Background(), Entry{CommunityID: "g1", ActorID: "u1", Feature: features.ModBan})
	if err != nil {
		t.Fatalf("RecordDenial: %v", err)
	}
	if !ok || len(store.entries) != 1 {
		t.Fatalf("expected entry written when throttle fails")
	}
}

func TestRecordPropagatesStoreError(t *testing.T) {
	store := &sliceStore{fail: errors.New("disk full")}
	rec, _ := NewRecorder(store)
	if _, err := rec.Record(context.Background(), Entry{CommunityID: "g1", Action: ActionReset}); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestRecordPublishesStoredEntries(t *testing.T) {
	var got []Entry
	store := &sliceStore{}
	rec, _ := NewRecorder(store, WithPublisher(func(e Entry) { got = append(got, e) }))

	if _, err := rec.Record(context.Background(), Entry{CommunityID: "g1", Action: ActionReset}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.fail = errors.New("disk full")
	_, _ = rec.Record(context.Background(), Entry{CommunityID: "g1", Action: ActionReset})

	if len(got) != 1 || got[0].ID == "" {
		t.Fatalf("expected one published entry with id, got %+v", got)
	}
}

func TestRecordDenialRetriesAfterFailedWrite(t *testing.T) {
	store := &sliceStore{fail: errors.New("disk full")}
	rec, _ := NewRecorder(store, WithThrottle(NewMemThrottle(10, time.Hour)))
	ctx := context.Background()
	denial := Entry{CommunityID: "g1", ActorID: "u1", Feature: features.ModBan}

	written, err := rec.RecordDenial(ctx, denial)
	if err == nil || written {
		t.Fatalf("expected failed write, got written=%v err=%v", written, err)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()

	written, err = rec.RecordDenial(ctx, denial)
	if err != nil || !written {
		t.Fatalf("after recovery: written=%v err=%v", written, err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	if written, _ := rec.RecordDenial(ctx, denial); written {
		t.Fatalf("third denial inside cooldown should be throttled")
	}
}

type failingListStore struct{ sliceStore }

func (s *failingListStore) ListAudit(context.Context, string, Query) ([]Entry, error) {
	return nil, errors.New("connection reset")
}

func TestListWrapsStoreError(t *testing.T) {
	rec, _ := NewRecorder(&failingListStore{})
	_, err := rec.List(context.Background(), "g1", Query{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
