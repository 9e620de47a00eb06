package perms

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
)

func TestOverrideAllowIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.overrides.Allow(ctx, "c1", "admin", features.TicketsUse, "helpers")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !ch.Changed || len(ch.Entries) != 1 || ch.Entries[0].Action != audit.ActionAllowAdd {
		t.Fatalf("unexpected change %+v", ch)
	}
	writes := f.store.writes

	ch, err = f.overrides.Allow(ctx, "c1", "admin", features.TicketsUse, "helpers")
	if err != nil {
		t.Fatalf("Allow again: %v", err)
	}
	if ch.Changed || f.store.writes != writes {
		t.Fatalf("second allow must be a no-op")
	}
	if got := f.store.actions(); len(got) != 1 {
		t.Fatalf("expected one audit entry, got %v", got)
	}
}

func TestOverrideClearAuditsEachSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.overrides.Allow(ctx, "c1", "a", features.VCSuspend, "G1"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if _, err := f.overrides.Deny(ctx, "c1", "a", features.VCSuspend, "G1"); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	ch, err := f.overrides.Clear(ctx, "c1", "a", features.VCSuspend, "G1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(ch.Entries) != 2 {
		t.Fatalf("expected 2 remove entries, got %d", len(ch.Entries))
	}
	if _, ok, _ := f.overrides.Get(ctx, "c1", features.VCSuspend); ok {
		t.Fatalf("empty override must be deleted")
	}

	ch, err = f.overrides.Clear(ctx, "c1", "a", features.VCSuspend, "G1")
	if err != nil || ch.Changed {
		t.Fatalf("clear of absent group must be a no-op: %+v %v", ch, err)
	}
	want := []audit.Action{audit.ActionAllowAdd, audit.ActionDenyAdd, audit.ActionAllowRemove, audit.ActionDenyRemove}
	if got := f.store.actions(); !slices.Equal(got, want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestOverrideRejectsUnknownFeature(t *testing.T) {
	f := newFixture(t)
	_, err := f.overrides.Allow(context.Background(), "c1", "a", features.Key("mod.nuke"), "g")
	if !errors.Is(err, ErrInvalidFeatureKey) {
		t.Fatalf("expected ErrInvalidFeatureKey, got %v", err)
	}
	if _, err := f.overrides.Reset(context.Background(), "c1", "a", "nope"); !errors.Is(err, ErrInvalidFeatureKey) {
		t.Fatalf("expected ErrInvalidFeatureKey on reset, got %v", err)
	}
}

func TestResetThenAuthorizeIsDefaultOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.overrides.Allow(ctx, "c1", "a", features.TemplatesUse, "writers"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	req := Request{CommunityID: "c1", OwnerID: "owner", Actor: Actor{ID: "u1", Groups: []string{"readers"}, NativeOK: true}, Feature: features.TemplatesUse}
	v, err := f.gate.Authorize(ctx, req)
	if err != nil || v.Reason != ReasonNotInAllowList {
		t.Fatalf("before reset: %+v %v", v, err)
	}

	existed, err := f.overrides.Reset(ctx, "c1", "a", features.TemplatesUse)
	if err != nil || !existed {
		t.Fatalf("Reset: existed=%v err=%v", existed, err)
	}
	list, err := f.overrides.List(ctx, "c1", nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no overrides, got %+v", list)
	}

	v, err = f.gate.Authorize(ctx, req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if v != allow(ReasonDefaultOpen) {
		t.Fatalf("after reset got %+v", v)
	}

	existed, err = f.overrides.Reset(ctx, "c1", "a", features.TemplatesUse)
	if err != nil || existed {
		t.Fatalf("second reset: existed=%v err=%v", existed, err)
	}
	resets := 0
	for _, a := range f.store.actions() {
		if a == audit.ActionReset {
			resets++
		}
	}
	if resets != 2 {
		t.Fatalf("every reset is audited, got %d", resets)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, k := range []features.Key{features.VCMove, features.ModBan, features.TicketsUse} {
		if _, err := f.overrides.Deny(ctx, "c1", "a", k, "g"); err != nil {
			t.Fatalf("Deny %s: %v", k, err)
		}
	}
	all, err := f.overrides.List(ctx, "c1", nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Feature != features.ModBan || all[2].Feature != features.VCMove {
		t.Fatalf("unexpected order %+v", all)
	}
	vc, err := f.overrides.List(ctx, "c1", features.KeysForModules("vc"))
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(vc) != 1 || vc[0].Feature != features.VCMove {
		t.Fatalf("filtered = %+v", vc)
	}
}

func TestBootstrapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{
		CommunityID: "c1",
		OwnerID:     "owner",
		Actor:       Actor{ID: "adm", Groups: []string{"admins"}, NativeOK: true, Admin: true},
		Feature:     features.ModBan,
		Target:      &Target{UserID: "victim", Groups: []string{"everyone"}},
	}

	v, err := f.gate.Authorize(ctx, req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if v != deny(ReasonSecurityNotBootstrapped) {
		t.Fatalf("before bootstrap got %+v", v)
	}

	seed := SeedGroups([]Group{{ID: "admins", Admin: true}, {ID: "everyone"}})
	cfg, err := f.security.Bootstrap(ctx, "c1", "adm", seed)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !cfg.Bootstrapped || cfg.BootstrappedBy != "adm" || cfg.BootstrappedAt == nil {
		t.Fatalf("unexpected config %+v", cfg)
	}

	v, err = f.gate.Authorize(ctx, req)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if v != allow(ReasonAdminBypass) {
		t.Fatalf("after bootstrap got %+v", v)
	}
}

func TestBootstrapTwiceKeepsFirstSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.security.Bootstrap(ctx, "c1", "a", []string{"admins"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	_, err := f.security.Bootstrap(ctx, "c1", "a", []string{"other"})
	if !errors.Is(err, ErrAlreadyBootstrapped) {
		t.Fatalf("expected ErrAlreadyBootstrapped, got %v", err)
	}
	cfg, err := f.security.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !slices.Equal(cfg.ProtectedGroups, []string{"admins"}) {
		t.Fatalf("protected groups changed: %v", cfg.ProtectedGroups)
	}
}

func TestBootstrapRejectsEmptySeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, seed := range [][]string{nil, {" ", ""}} {
		if _, err := f.security.Bootstrap(ctx, "c1", "a", seed); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("seed %q: expected ErrInvalidInput, got %v", seed, err)
		}
	}
	cfg, err := f.security.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Bootstrapped {
		t.Fatalf("rejected bootstrap must not persist: %+v", cfg)
	}
	if _, err := f.security.Bootstrap(ctx, "c1", "a", []string{"admins"}); err != nil {
		t.Fatalf("Bootstrap after rejection: %v", err)
	}
}

func TestRemoveLastProtectedGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.security.Bootstrap(ctx, "c1", "a", []string{"admins"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	_, err := f.security.RemoveProtected(ctx, "c1", "a", "admins")
	if !errors.Is(err, ErrLastProtectedGroup) {
		t.Fatalf("expected ErrLastProtectedGroup, got %v", err)
	}
	cfg, _ := f.security.Get(ctx, "c1")
	if !slices.Equal(cfg.ProtectedGroups, []string{"admins"}) {
		t.Fatalf("set changed: %v", cfg.ProtectedGroups)
	}

	if _, err := f.security.AddProtected(ctx, "c1", "a", "mods"); err != nil {
		t.Fatalf("AddProtected: %v", err)
	}
	cfg, err = f.security.RemoveProtected(ctx, "c1", "a", "admins")
	if err != nil {
		t.Fatalf("RemoveProtected: %v", err)
	}
	if !slices.Equal(cfg.ProtectedGroups, []string{"mods"}) {
		t.Fatalf("protected = %v", cfg.ProtectedGroups)
	}
}

func TestProtectedMutationsRequireBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.security.AddProtected(ctx, "c1", "a", "mods"); !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("AddProtected: expected ErrNotBootstrapped, got %v", err)
	}
	if _, err := f.security.AddProtectedUser(ctx, "c1", "a", "u9"); !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("AddProtectedUser: expected ErrNotBootstrapped, got %v", err)
	}
}

func TestProtectedUserBlocksTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.security.Bootstrap(ctx, "c1", "a", []string{"admins"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := f.security.AddProtectedUser(ctx, "c1", "a", "vip"); err != nil {
		t.Fatalf("AddProtectedUser: %v", err)
	}
	req := Request{
		CommunityID: "c1",
		Actor:       Actor{ID: "mod", NativeOK: true, ManageCommunity: true},
		Feature:     features.ModKick,
		Target:      &Target{UserID: "vip"},
	}
	v, err := f.gate.Authorize(ctx, req)
	if err != nil || v != deny(ReasonProtectedTarget) {
		t.Fatalf("got %+v %v", v, err)
	}
	if _, err := f.security.RemoveProtectedUser(ctx, "c1", "a", "vip"); err != nil {
		t.Fatalf("RemoveProtectedUser: %v", err)
	}
	v, _ = f.gate.Authorize(ctx, req)
	if v != allow(ReasonAdminBypass) {
		t.Fatalf("after removal got %+v", v)
	}
}

func TestFeatureDeniedScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.security.Bootstrap(ctx, "c1", "a", []string{"admins"}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	for _, g := range []string{"G1", "G2"} {
		if _, err := f.overrides.Allow(ctx, "c1", "a", features.VCSuspend, g); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
	if _, err := f.overrides.Deny(ctx, "c1", "a", features.VCSuspend, "G1"); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	v, err := f.gate.Authorize(ctx, Request{
		CommunityID: "c1",
		Actor:       Actor{ID: "u1", Groups: []string{"G1"}, NativeOK: true},
		Feature:     features.VCSuspend,
		Target:      &Target{UserID: "t1"},
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if v != deny(ReasonFeatureDenied) {
		t.Fatalf("got %+v", v)
	}
}

func TestDeniedAttemptsAreThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{CommunityID: "c1", Actor: Actor{ID: "u1", NativeOK: true}, Feature: features.ModBan}
	for i := 0; i < 5; i++ {
		v, err := f.gate.Authorize(ctx, req)
		if err != nil || v.Allowed {
			t.Fatalf("attempt %d: %+v %v", i, v, err)
		}
	}
	entries, err := f.store.ListAudit(ctx, "c1", audit.Query{Action: audit.ActionDeniedAttempt})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one denied-attempt entry, got %d", len(entries))
	}
	if entries[0].Reason != string(ReasonSecurityNotBootstrapped) {
		t.Fatalf("reason = %q", entries[0].Reason)
	}
}

func TestMissingNativeCapabilityNotAudited(t *testing.T) {
	f := newFixture(t)
	v, err := f.gate.Authorize(context.Background(), Request{CommunityID: "c1", Actor: Actor{ID: "u1"}, Feature: features.TicketsUse})
	if err != nil || v != deny(ReasonMissingNativeCapability) {
		t.Fatalf("got %+v %v", v, err)
	}
	if got := f.store.actions(); len(got) != 0 {
		t.Fatalf("expected no audit entries, got %v", got)
	}
}

func TestStoreFailuresSurface(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failRead = errors.New("connection refused")
	if _, err := f.gate.Authorize(ctx, Request{CommunityID: "c1", Actor: Actor{ID: "u"}, Feature: features.ModBan}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Authorize: expected ErrStoreUnavailable, got %v", err)
	}
	f.store.failRead = nil
	f.store.failWrite = errors.New("disk full")
	if _, err := f.overrides.Allow(ctx, "c1", "a", features.ModBan, "g"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Allow: expected ErrStoreUnavailable, got %v", err)
	}
	if got := f.store.actions(); len(got) != 0 {
		t.Fatalf("failed write must not be audited: %v", got)
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.gate.Authorize(ctx, Request{Actor: Actor{ID: "u"}, Feature: features.ModBan}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.gate.Authorize(ctx, Request{CommunityID: "c", Actor: Actor{ID: "u"}, Feature: "mod.nuke"}); !errors.Is(err, ErrInvalidFeatureKey) {
		t.Fatalf("expected ErrInvalidFeatureKey, got %v", err)
	}
}
