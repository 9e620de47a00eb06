package perms

import (
	"context"

	"github.com/bredsky212/Logiq212/internal/features"
)

// OverrideStore persists overrides keyed by community and feature.
// Get and Delete return ErrNotFound for absent records.
type OverrideStore interface {
	GetOverride(ctx context.Context, communityID string, feature features.Key) (Override, error)
	PutOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, communityID string, feature features.Key) error
	ListOverrides(ctx context.Context, communityID string) ([]Override, error)
}

// SecurityStore persists one SecurityConfig per community.
// Get returns ErrNotFound before the first bootstrap.
type SecurityStore interface {
	GetSecurity(ctx context.Context, communityID string) (SecurityConfig, error)
	PutSecurity(ctx context.Context, cfg SecurityConfig) error
}

// Store is everything the perms services need.
type Store interface {
	OverrideStore
	SecurityStore
}
