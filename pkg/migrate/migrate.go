// Package migrate runs the goose SQL migrations, either the set compiled into
// the binary or a directory on disk.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/chryzcode/ycsyh-site/pkg/logger"
)

// DefaultDir is where `create` writes new files, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir selects the migrations compiled into the binary.
const EmbeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrator wraps a goose.Provider bound to one database and one source.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func sourceFS(dir string) (fs.FS, error) {
	switch dir {
	case "":
		return nil, errors.New("migrations dir is required")
	case EmbeddedDir:
		return fs.Sub(embedded, EmbeddedDir)
	default:
		return os.DirFS(dir), nil
	}
}

func New(db *sql.DB, dir string, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := sourceFS(dir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("open migrations in %q: %w", dir, err)
	}
	return &Migrator{provider: p, logg: logg}, nil
}

// Run dispatches a cmd/migrate command. version is only read by "version".
func (m *Migrator) Run(ctx context.Context, command, version string) error {
	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		res, err := m.provider.Down(ctx)
		m.report(ctx, res)
		return wrap("down", err)
	case "redo":
		res, err := m.provider.Down(ctx)
		m.report(ctx, res)
		if err != nil {
			return wrap("redo down", err)
		}
		res, err = m.provider.UpByOne(ctx)
		m.report(ctx, res)
		return wrap("redo up", err)
	case "status":
		return m.Status(ctx)
	case "version":
		return m.To(ctx, version)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	return wrap("up", err)
}

// To moves the schema up or down until it sits at version (YYYYMMDDHHMMSS).
func (m *Migrator) To(ctx context.Context, version string) error {
	if version == "" {
		return errors.New("target version is required")
	}
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	default:
		results, err = m.provider.DownTo(ctx, target)
	}
	m.report(ctx, results...)
	return wrap(fmt.Sprintf("migrate %d -> %d", current, target), err)
}

// Status logs one line per known migration.
func (m *Migrator) Status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	if m.logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migrate.status")
	}
	return nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	if m.logg == nil {
		return
	}
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		m.logg.Info(m.logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		}), "migrate.applied")
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
