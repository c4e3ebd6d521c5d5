package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/app"
	"github.com/dvloznov/txn-recurrence/internal/config"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/export"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	infraBQ "github.com/dvloznov/txn-recurrence/internal/infra/bigquery"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/notionsync"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = []command{
	{"create-user", "Create a user", runCreateUser},
	{"ingest", "Import a transaction feed (local path or gs:// URI) for a user", runIngest},
	{"seed", "Import a generated feed of recurring charges for a user", runSeed},
	{"upload", "Upload a feed file to GCS", runUpload},
	{"series", "List a user's recurring series", runSeries},
	{"export", "Export a user's recurring series to a spreadsheet and/or BigQuery", runExport},
	{"sync-notion", "Mirror a user's recurring series into a Notion database", runSyncNotion},
	{"delete-user", "Delete a user with all transactions and series", runDeleteUser},
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml if present)")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	name := flag.Arg(0)
	if name == "help" {
		printUsage()
		return
	}

	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to open store")
	}
	defer a.Close()

	if err := cmd.run(a.Context(ctx), a, flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		a.Log.Error().Err(err).Str("command", name).Msg("Command failed")
		a.Close()
		os.Exit(1)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage() {
	fmt.Println("Transaction Recurrence CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli [-config path] <command> [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-12s %s\n", c.name, c.summary)
	}
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runCreateUser(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "Email address (required)")
	username := fs.String("username", "", "Optional username")
	externalID := fs.String("external-id", "", "Aggregator user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !strings.Contains(*email, "@") {
		return errors.New("create-user: -email is required")
	}

	u, err := a.Store.CreateUser(ctx, &domain.User{Email: *email, Username: *username, ExternalID: *externalID})
	if err != nil {
		return fmt.Errorf("create-user: %w", err)
	}
	fmt.Fprintf(out, "Created user %d (%s)\n", u.ID, u.DisplayUsername())
	return nil
}

func runIngest(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	source := fs.String("source", "", "Feed location: local path or gs://bucket/object (required)")
	verbose := fs.Bool("v", false, "Print one line per record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || *source == "" {
		return errors.New("ingest: -user and -source are required")
	}

	log := logger.FromContext(ctx)
	log.Info().Int64("user_id", *userID).Str("source", *source).Msg("Starting import")

	report, err := a.Importer.ImportFeed(ctx, *userID, *source)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(out, "Imported %d records: %d created, %d existing, %d invalid, %d attached to series\n",
		report.Total, report.Created, report.Existing, report.Invalid, report.Attached)
	if *verbose {
		for _, r := range report.Results {
			line := fmt.Sprintf("  %-10s %s", r.Outcome, r.ExternalID)
			if r.SeriesID != 0 {
				line += fmt.Sprintf(" series=%d", r.SeriesID)
			}
			if r.Error != "" {
				line += " error=" + r.Error
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func runSeed(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	subs := fs.Int("subscriptions", 5, "Number of recurring charges")
	months := fs.Int("months", 6, "Months of history per charge")
	noise := fs.Int("noise", 20, "Number of one-off transactions")
	seed := fs.Int64("seed", time.Now().UnixNano(), "Random seed")
	start := fs.String("start", "", "First charge date, YYYY-MM-DD (default: months ago)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("seed: -user is required")
	}

	from := time.Now().UTC().AddDate(0, -*months, 0).Truncate(24 * time.Hour)
	if *start != "" {
		t, err := time.Parse("2006-01-02", *start)
		if err != nil {
			return fmt.Errorf("seed: -start: %w", err)
		}
		from = t
	}

	gen := feed.NewGenerator(*seed)
	records := gen.Feed(gen.Subscriptions(*subs), *months, *noise, from)

	report, err := a.Importer.ImportRecords(ctx, *userID, records)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Fprintf(out, "Seeded %d records (%d created, %d attached to series)\n", report.Total, report.Created, report.Attached)
	return nil
}

func runUpload(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	bucketName := fs.String("bucket", a.Config.GCS.Bucket, "GCS bucket name (default: gcs.bucket)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local feed file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucketName == "" || *filePath == "" {
		return errors.New("usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctxLog := logger.FromContext(ctx)
	ctxLog.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := a.Storage.UploadFile(ctx, *bucketName, *objectName, *filePath)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Fprintf(out, "Uploaded %s to %s\n", *filePath, uri)
	return nil
}

func runSeries(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("series", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	members := fs.Bool("members", false, "Print each series' transactions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("series: -user is required")
	}

	series, err := a.Matcher.ListRecurringSeries(ctx, *userID)
	if err != nil {
		return fmt.Errorf("series: %w", err)
	}

	fmt.Fprintf(out, "=== Recurring series (%d) ===\n", len(series))
	printSeries(out, series, *members)
	return nil
}

func printSeries(out io.Writer, series []*domain.RecurringTransaction, members bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION\tAMOUNT\tLAST DATE\tCOUNT")
	for _, s := range series {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n",
			s.ID, s.Description(), s.Amount().StringFixed(2), s.Date().Format("2006-01-02"), len(s.Members))
		if !members {
			continue
		}
		for _, m := range s.Members {
			fmt.Fprintf(tw, "\t  %s\t%s\t%s\t#%d\n", m.Description, m.Amount.StringFixed(2), m.Date.Format("2006-01-02"), m.ID)
		}
	}
	tw.Flush()
}

func runExport(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	xlsxPath := fs.String("xlsx", "", "Write an .xlsx workbook to this path")
	toBQ := fs.Bool("bigquery", false, "Append a snapshot to bigquery.project/bigquery.dataset")
	show := fs.Bool("show", false, "Print the latest BigQuery snapshot for the user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("export: -user is required")
	}
	if *xlsxPath == "" && !*toBQ && !*show {
		return errors.New("export: pick at least one of -xlsx, -bigquery or -show")
	}

	series, err := a.Matcher.ListRecurringSeries(ctx, *userID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if *xlsxPath != "" {
		if err := writeWorkbook(*xlsxPath, series); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(out, "Wrote %d series to %s\n", len(series), *xlsxPath)
	}

	if !*toBQ && !*show {
		return nil
	}

	if a.Config.BigQuery.Project == "" {
		return errors.New("export: bigquery.project (RECUR_BIGQUERY_PROJECT or GOOGLE_CLOUD_PROJECT) is required")
	}
	exporter, err := infraBQ.NewSeriesExporter(ctx, a.Config.BigQuery.Project, a.Config.BigQuery.Dataset)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer exporter.Close()

	if *toBQ {
		n, err := exporter.ExportRecurringSeries(ctx, *userID, series)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(out, "Exported %d series to BigQuery\n", n)
	}

	if *show {
		rows, err := exporter.LatestSeries(ctx, *userID)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(out, "=== Latest BigQuery snapshot (%d) ===\n", len(rows))
		for _, r := range rows {
			fmt.Fprintf(out, "%d  %s  %s  %s  %d  exported %s\n",
				r.SeriesID, r.Description, r.Amount.FloatString(2), r.LastDate, r.TransactionCount,
				r.ExportedTS.Format(time.RFC3339))
		}
	}
	return nil
}

func writeWorkbook(path string, series []*domain.RecurringTransaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := export.WriteSeriesWorkbook(f, series); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runSyncNotion(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sync-notion", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	dryRun := fs.Bool("dry-run", false, "Report what would change without writing to Notion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("sync-notion: -user is required")
	}
	if a.Config.Notion.Token == "" || a.Config.Notion.DatabaseID == "" {
		return errors.New("sync-notion: notion.token and notion.database_id are required")
	}

	client := notionsync.NewNotionClient(a.Config.Notion.Token)
	res, err := notionsync.SyncRecurringSeries(ctx, a.Matcher, client, a.Config.Notion.DatabaseID, *userID, *dryRun)
	if err != nil {
		return fmt.Errorf("sync-notion: %w", err)
	}

	prefix := ""
	if *dryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(out, "%sNotion sync: %d created, %d updated, %d archived, %d failed\n",
		prefix, res.Created, res.Updated, res.Archived, res.Failed)
	return nil
}

func runDeleteUser(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete-user", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "User ID (required)")
	purge := fs.Bool("purge-exports", false, "Also delete the user's rows from BigQuery")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("delete-user: -user is required")
	}

	if err := a.Store.DeleteUserCascade(ctx, *userID); err != nil {
		return fmt.Errorf("delete-user: %w", err)
	}
	fmt.Fprintf(out, "Deleted user %d\n", *userID)

	if !*purge {
		return nil
	}
	if a.Config.BigQuery.Project == "" {
		return errors.New("delete-user: bigquery.project is required for -purge-exports")
	}
	exporter, err := infraBQ.NewSeriesExporter(ctx, a.Config.BigQuery.Project, a.Config.BigQuery.Dataset)
	if err != nil {
		return fmt.Errorf("delete-user: %w", err)
	}
	defer exporter.Close()

	if err := exporter.DeleteUserExports(ctx, *userID); err != nil {
		return fmt.Errorf("delete-user: %w", err)
	}
	fmt.Fprintln(out, "Purged BigQuery exports")
	return nil
}
