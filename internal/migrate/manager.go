package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bredsky212/Logiq212/internal/obs"
)

const (
	defaultTable = "schema_migrations"
	upSuffix     = ".up.sql"
	downSuffix   = ".down.sql"
)

// ErrNothingApplied is returned by Down when the ledger table is empty.
var ErrNothingApplied = errors.New("no migrations applied")

// Manager applies the paired NNNN_name.up.sql / NNNN_name.down.sql scripts
// found under one directory of an fs.FS. Each script runs in the same
// transaction as its ledger row, so a failed script leaves no record.
type Manager struct {
	db    *sql.DB
	fsys  fs.FS
	dir   string
	table string
}

// Option configures Manager.
type Option func(*Manager)

// WithTable names the ledger table. Empty keeps schema_migrations.
func WithTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.table = name
		}
	}
}

// NewManager reads scripts from dir inside fsys.
func NewManager(db *sql.DB, fsys fs.FS, dir string, opts ...Option) *Manager {
	m := &Manager{db: db, fsys: fsys, dir: dir, table: defaultTable}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// step is one migration keyed by the base name of its up script.
type step struct {
	name string
	up   string
	down string
}

// Up applies every step missing from the ledger, lowest version first.
func (m *Manager) Up(ctx context.Context) error {
	pending, err := m.pendingSteps(ctx)
	if err != nil {
		return err
	}
	for _, s := range pending {
		err := m.inTx(ctx, s.up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.table),
				s.name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate up %s: %w", s.name, err)
		}
		obs.Logger().Info("migration applied", zap.String("name", s.name))
	}
	return nil
}

// Pending names the steps Up would apply, in order.
func (m *Manager) Pending(ctx context.Context) ([]string, error) {
	pending, err := m.pendingSteps(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pending))
	for _, s := range pending {
		names = append(names, s.name)
	}
	return names, nil
}

// Down reverts the most recently applied step.
func (m *Manager) Down(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNothingApplied
	}
	last := applied[len(applied)-1]
	steps, err := m.steps()
	if err != nil {
		return err
	}
	var target *step
	for i := range steps {
		if steps[i].name == last {
			target = &steps[i]
			break
		}
	}
	if target == nil || target.down == "" {
		return fmt.Errorf("migrate down %s: no down script", last)
	}
	err = m.inTx(ctx, target.down, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.table), last)
		return err
	})
	if err != nil {
		return fmt.Errorf("migrate down %s: %w", last, err)
	}
	obs.Logger().Info("migration rolled back", zap.String("name", last))
	return nil
}

// Status lists applied steps in the order they were applied.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var applied []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied = append(applied, name)
	}
	return applied, rows.Err()
}

func (m *Manager) pendingSteps(ctx context.Context) ([]step, error) {
	applied, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}
	steps, err := m.steps()
	if err != nil {
		return nil, err
	}
	var pending []step
	for _, s := range steps {
		if _, ok := done[s.name]; !ok {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

func (m *Manager) ensureLedger(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(
		`create table if not exists %s (name text primary key, applied_at timestamptz not null default now())`,
		m.table))
	return err
}

// inTx runs the statements of script and then record inside one transaction.
func (m *Manager) inTx(ctx context.Context, script string, record func(*sql.Tx) error) error {
	body, err := fs.ReadFile(m.fsys, script)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// steps pairs up and down scripts found directly under dir. A missing
// directory yields no steps.
func (m *Manager) steps() ([]step, error) {
	if m.fsys == nil || m.dir == "" {
		return nil, nil
	}
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	downs := make(map[string]string)
	var steps []step
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch n := e.Name(); {
		case strings.HasSuffix(n, upSuffix):
			steps = append(steps, step{name: n, up: path.Join(m.dir, n)})
		case strings.HasSuffix(n, downSuffix):
			downs[strings.TrimSuffix(n, downSuffix)] = path.Join(m.dir, n)
		}
	}
	for i := range steps {
		steps[i].down = downs[strings.TrimSuffix(steps[i].name, upSuffix)]
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].name < steps[j].name })
	return steps, nil
}

// splitStatements cuts a script on semicolons that sit outside single-quoted
// literals and drops blank fragments.
func splitStatements(script string) []string {
	var out []string
	quoted := false
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(script[start:end]); s != "" && s != ";" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(script); i++ {
		switch script[i] {
		case '\'':
			quoted = !quoted
		case ';':
			if !quoted {
				flush(i + 1)
			}
		}
	}
	flush(len(script))
	return out
}
