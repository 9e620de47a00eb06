package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bredsky212/Logiq212/internal/features"
	"github.com/bredsky212/Logiq212/internal/perms"
)

var _ perms.Store = (*Store)(nil)

func (s *Store) GetOverride(ctx context.Context, communityID string, feature features.Key) (perms.Override, error) {
	if s.db == nil {
		return perms.Override{}, errNoDB
	}
	var (
		o           = perms.Override{CommunityID: communityID, Feature: feature}
		allow, deny []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select allow_groups, deny_groups, updated_at
		from feature_overrides
		where community_id = $1 and feature = $2
	`, communityID, string(feature)).Scan(&allow, &deny, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return perms.Override{}, perms.ErrNotFound
	}
	if err != nil {
		return perms.Override{}, err
	}
	if o.Allow, err = decodeSet(allow); err != nil {
		return perms.Override{}, err
	}
	if o.Deny, err = decodeSet(deny); err != nil {
		return perms.Override{}, err
	}
	return o, nil
}

func (s *Store) PutOverride(ctx context.Context, o perms.Override) error {
	if s.db == nil {
		return errNoDB
	}
	allow, err := encodeSet(o.Allow)
	if err != nil {
		return err
	}
	deny, err := encodeSet(o.Deny)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into feature_overrides (community_id, feature, allow_groups, deny_groups, updated_at)
		values ($1, $2, $3, $4, $5)
		on conflict (community_id, feature) do update
		set allow_groups = excluded.allow_groups,
			deny_groups = excluded.deny_groups,
			updated_at = excluded.updated_at
	`, o.CommunityID, string(o.Feature), allow, deny, o.UpdatedAt)
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, communityID string, feature features.Key) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		delete from feature_overrides where community_id = $1 and feature = $2
	`, communityID, string(feature))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return perms.ErrNotFound
	}
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, communityID string) ([]perms.Override, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select feature, allow_groups, deny_groups, updated_at
		from feature_overrides
		where community_id = $1
		order by feature
	`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []perms.Override
	for rows.Next() {
		var (
			o           = perms.Override{CommunityID: communityID}
			feature     string
			allow, deny []byte
		)
		if err := rows.Scan(&feature, &allow, &deny, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Feature = features.Key(feature)
		if o.Allow, err = decodeSet(allow); err != nil {
			return nil, err
		}
		if o.Deny, err = decodeSet(deny); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSecurity(ctx context.Context, communityID string) (perms.SecurityConfig, error) {
	if s.db == nil {
		return perms.SecurityConfig{}, errNoDB
	}
	var (
		cfg            = perms.SecurityConfig{CommunityID: communityID}
		groups, users  []byte
		bootstrappedAt sql.NullTime
		bootstrappedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select bootstrapped, protected_groups, protected_users, bootstrapped_at, bootstrapped_by, updated_at
		from security_configs
		where community_id = $1
	`, communityID).Scan(&cfg.Bootstrapped, &groups, &users, &bootstrappedAt, &bootstrappedBy, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return perms.SecurityConfig{}, perms.ErrNotFound
	}
	if err != nil {
		return perms.SecurityConfig{}, err
	}
	if cfg.ProtectedGroups, err = decodeSet(groups); err != nil {
		return perms.SecurityConfig{}, err
	}
	if cfg.ProtectedUsers, err = decodeSet(users); err != nil {
		return perms.SecurityConfig{}, err
	}
	cfg.BootstrappedAt = timePtr(bootstrappedAt)
	cfg.BootstrappedBy = bootstrappedBy.String
	return cfg, nil
}

// PutSecurity upserts the config. The bootstrapped flag never reverts once
// stored.
func (s *Store) PutSecurity(ctx context.Context, cfg perms.SecurityConfig) error {
	if s.db == nil {
		return errNoDB
	}
	groups, err := encodeSet(cfg.ProtectedGroups)
	if err != nil {
		return err
	}
	users, err := encodeSet(cfg.ProtectedUsers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into security_configs (community_id, bootstrapped, protected_groups, protected_users, bootstrapped_at, bootstrapped_by, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (community_id) do update
		set bootstrapped = security_configs.bootstrapped or excluded.bootstrapped,
			protected_groups = excluded.protected_groups,
			protected_users = excluded.protected_users,
			bootstrapped_at = coalesce(security_configs.bootstrapped_at, excluded.bootstrapped_at),
			bootstrapped_by = coalesce(security_configs.bootstrapped_by, excluded.bootstrapped_by),
			updated_at = excluded.updated_at
	`, cfg.CommunityID, cfg.Bootstrapped, groups, users, nullTime(cfg.BootstrappedAt), nullIfEmpty(cfg.BootstrappedBy), cfg.UpdatedAt)
	return err
}
