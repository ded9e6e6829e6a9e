package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/academy-ledger/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz referral code files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "codes per insert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, batchSize); err != nil {
		slog.Error("referral import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("referral import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list input files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}
	if len(files) > maxFiles {
		return errors.Errorf("at most %d input files are supported, got %d", maxFiles, len(files))
	}

	rows, stats, err := collect(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}
	slog.Info("codes collected",
		slog.Int("unique", len(rows)),
		slog.Int("conflicts", stats.conflicts),
		slog.Int("invalid_lines", stats.invalid),
	)
	if len(rows) == 0 {
		slog.Info("no codes to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	imp := importer{
		codes:     postgres.NewReferralRepository(pool),
		users:     postgres.NewUserRepository(pool),
		settings:  postgres.NewSettingsRepository(pool),
		batchSize: batchSize,
	}
	inserted, err := imp.importRows(ctx, rows)
	if err != nil {
		return errors.Wrap(err, "import codes")
	}

	slog.Info("codes imported", slog.Int64("inserted", inserted), slog.Int("submitted", len(rows)))
	return nil
}
