package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/features"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_entries (id, occurred_at, community_id, actor_id, feature, action, target_group, target_user, reason)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OccurredAt, e.CommunityID, e.ActorID, nullIfEmpty(string(e.Feature)), string(e.Action),
		nullIfEmpty(e.TargetGroup), nullIfEmpty(e.TargetUser), nullIfEmpty(e.Reason))
	return err
}

func (s *Store) ListAudit(ctx context.Context, communityID string, q audit.Query) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where = []string{"community_id = $1"}
		args  = []any{communityID}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("feature", string(q.Feature))
	add("action", string(q.Action))
	add("actor_id", q.ActorID)
	args = append(args, q.EffectiveLimit())

	query := fmt.Sprintf(`
		select id, occurred_at, actor_id, feature, action, target_group, target_user, reason
		from audit_entries
		where %s
		order by id desc
		limit $%d
	`, strings.Join(where, " and "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e                            = audit.Entry{CommunityID: communityID}
			action                       string
			feature, group, user, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &feature, &action, &group, &user, &reason); err != nil {
			return nil, err
		}
		e.Feature = features.Key(feature.String)
		e.Action = audit.Action(action)
		e.TargetGroup = group.String
		e.TargetUser = user.String
		e.Reason = reason.String
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
