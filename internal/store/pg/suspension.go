package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bredsky212/Logiq212/internal/suspension"
)

var _ suspension.Store = (*Store)(nil)

const suspensionColumns = `id, community_id, user_id, active, started_at, duration_ms, reason, issuer_id, ended_at, end_reason, ended_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSuspension(row rowScanner) (suspension.Record, error) {
	var (
		r                          suspension.Record
		durationMS                 int64
		reason, endReason, endedBy sql.NullString
		endedAt                    sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.CommunityID, &r.UserID, &r.Active, &r.StartedAt, &durationMS,
		&reason, &r.IssuerID, &endedAt, &endReason, &endedBy); err != nil {
		return suspension.Record{}, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Reason = reason.String
	r.EndedAt = timePtr(endedAt)
	r.EndReason = suspension.EndReason(endReason.String)
	r.EndedBy = endedBy.String
	return r, nil
}

func (s *Store) GetActiveSuspension(ctx context.Context, communityID, userID string) (suspension.Record, error) {
	if s.db == nil {
		return suspension.Record{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		select `+suspensionColumns+`
		from suspensions
		where community_id = $1 and user_id = $2 and active
	`, communityID, userID)
	r, err := scanSuspension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return suspension.Record{}, suspension.ErrNotFound
	}
	return r, err
}

func (s *Store) PutSuspension(ctx context.Context, r suspension.Record) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into suspensions (`+suspensionColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		on conflict (id) do update
		set active = excluded.active,
			ended_at = excluded.ended_at,
			end_reason = excluded.end_reason,
			ended_by = excluded.ended_by
	`, r.ID, r.CommunityID, r.UserID, r.Active, r.StartedAt, r.Duration.Milliseconds(),
		nullIfEmpty(r.Reason), r.IssuerID, nullTime(r.EndedAt), nullIfEmpty(string(r.EndReason)), nullIfEmpty(r.EndedBy))
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("concurrent active suspension for %s/%s: %w", r.CommunityID, r.UserID, err)
	}
	return err
}

func (s *Store) ListSuspensions(ctx context.Context, communityID, userID string, limit int) ([]suspension.Record, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if limit <= 0 {
		limit = suspension.DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+suspensionColumns+`
		from suspensions
		where community_id = $1 and user_id = $2
		order by started_at desc, id desc
		limit $3
	`, communityID, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectSuspensions(rows)
}

func (s *Store) ListActiveSuspensions(ctx context.Context) ([]suspension.Record, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+suspensionColumns+`
		from suspensions
		where active
		order by started_at desc
	`)
	if err != nil {
		return nil, err
	}
	return collectSuspensions(rows)
}

func collectSuspensions(rows *sql.Rows) ([]suspension.Record, error) {
	defer rows.Close()
	var result []suspension.Record
	for rows.Next() {
		r, err := scanSuspension(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
