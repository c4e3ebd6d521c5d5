package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/store/postgres"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
	appliedBy  = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	status     = flag.Bool("status", false, "List migrations and whether they are applied, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.URL == "" {
		log.Fatal().Msg("database.url (RECUR_DATABASE_URL or DATABASE_URL) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st, err := postgres.New(ctx, cfg.Database.URL, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer st.Close()

	if *status {
		migrations, err := postgres.ReadMigrations()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migrations")
		}
		applied, err := postgres.AppliedMigrations(ctx, st.Pool())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read schema_migrations (run without -status first)")
		}
		for _, line := range statusLines(migrations, applied) {
			fmt.Println(line)
		}
		return
	}

	n, err := postgres.Migrate(ctx, st.Pool(), *appliedBy)
	if err != nil {
		log.Error().Err(err).Int("applied", n).Msg("Migration failed")
		st.Close()
		os.Exit(1)
	}

	if n == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Msgf("Successfully applied %d migration(s)", n)
	}
}

// statusLines renders one line per known migration plus any applied version
// whose file no longer exists.
func statusLines(migrations []postgres.Migration, applied []postgres.AppliedMigration) []string {
	byVersion := make(map[int]postgres.AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	lines := make([]string, 0, len(migrations))
	seen := make(map[int]bool, len(migrations))
	for _, m := range migrations {
		seen[m.Version] = true
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("[PENDING] %04d_%s", m.Version, m.Name))
		case am.Checksum != "" && am.Checksum != m.Checksum:
			lines = append(lines, fmt.Sprintf("[CHANGED] %04d_%s (applied %s by %s)", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339), am.AppliedBy))
		default:
			lines = append(lines, fmt.Sprintf("[APPLIED] %04d_%s (applied %s by %s)", m.Version, m.Name, am.AppliedAt.Format(time.RFC3339), am.AppliedBy))
		}
	}
	for _, am := range applied {
		if !seen[am.Version] {
			lines = append(lines, fmt.Sprintf("[MISSING] %04d_%s (no migration file)", am.Version, am.Name))
		}
	}
	return lines
}
