package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationPattern matches files such as 0001_init.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single schema migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// ReadMigrations returns the embedded migrations sorted by version.
func ReadMigrations() ([]Migration, error) {
	return readMigrations(migrationsFS, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("readMigrations: reading %s: %w", dir, err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("readMigrations: reading %s: %w", e.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies pending embedded migrations, each in its own transaction
// together with its schema_migrations row. It returns how many were applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT,
			applied_by TEXT
		)`); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	migrations, err := ReadMigrations()
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, m := range migrations {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				log.Warn().Int("version", m.Version).Str("name", m.Name).
					Msg("applied migration checksum differs from file")
			}
			log.Info().Msgf("  [SKIP] %04d_%s (already applied)", m.Version, m.Name)
			continue
		}

		log.Info().Msgf("  [RUN]  %04d_%s", m.Version, m.Name)
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("executing: %w", err)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO schema_migrations (version, name, checksum, applied_by)
				VALUES ($1, $2, $3, $4)`,
				m.Version, m.Name, m.Checksum, appliedBy,
			)
			if err != nil {
				return fmt.Errorf("recording: %w", err)
			}
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}
		log.Info().Msgf("  [OK]   %04d_%s", m.Version, m.Name)
		count++
	}

	return count, nil
}

// AppliedMigrations lists schema_migrations in version order.
func AppliedMigrations(ctx context.Context, pool *pgxpool.Pool) ([]AppliedMigration, error) {
	rows, err := pool.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: query: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scanning: %w", err)
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}
