package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
	"github.com/teranos/pulse/sym"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded schema step, identified by its numeric prefix
type migration struct {
	version string
	file    string
}

// pendingMigrations lists the embedded migrations in version order
func pendingMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded migrations")
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", entry.Name())
		}
		out = append(out, migration{version: version, file: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// appliedVersions returns the recorded versions. A fresh database has no
// schema_migrations table yet and yields an empty set.
func appliedVersions(ctx context.Context, conn *sql.DB) (map[string]bool, error) {
	var tables int
	err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&tables)
	if err != nil {
		return nil, errors.Wrap(err, "failed to inspect schema")
	}

	applied := make(map[string]bool)
	if tables == 0 {
		return applied, nil
	}

	rows, err := conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan schema_migrations")
		}
		applied[v] = true
	}
	return applied, errors.Wrap(rows.Err(), "failed to read schema_migrations")
}

// Migrate brings the jobs schema up to date. Each step runs in its own
// transaction together with its schema_migrations row, so a failed step
// leaves the database at the previous version. log may be nil.
func Migrate(ctx context.Context, conn *sql.DB, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With(logger.FieldSymbol, sym.DB)

	steps, err := pendingMigrations()
	if err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	ran := 0
	for _, m := range steps {
		if applied[m.version] {
			log.Debugw("Migration already applied", logger.FieldFile, m.file)
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return err
		}
		log.Infow("Applied migration", logger.FieldFile, m.file, "version", m.version)
		ran++
	}

	log.Debugw("Schema up to date", logger.FieldCount, len(steps), "applied", ran)
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, m migration) (err error) {
	body, err := migrations.ReadFile(path.Join(migrationsDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "failed to read migration %s", m.file)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to begin migration %s", m.file)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.WithSecondaryError(err, rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return errors.Wrapf(err, "failed to execute migration %s", m.file)
	}
	// 000 creates schema_migrations, then records itself like every other step
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return errors.Wrapf(err, "failed to record migration %s", m.file)
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit migration %s", m.file)
	}
	return nil
}
