// Command coupon-import bulk loads coupons from gzip-compressed CSV files.
// Codes appearing in more than one file are reported and the first file
// listed wins.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

const (
	bloomFPR         = 0.001
	defaultCapacity  = 1_000_000
	defaultBatchSize = 1000
)

func main() {
	var (
		databaseURL string
		capacity    uint
		batchSize   int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "capacity", defaultCapacity, "expected number of codes per file")
	flag.IntVar(&batchSize, "batch-size", defaultBatchSize, "coupons written per batch")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: coupon-import [flags] file.csv.gz [file.csv.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), capacity, batchSize); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, capacity uint, batchSize int) error {
	sources := make([]source, len(files))
	for i, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
		sources[i] = fileSource(f)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	im := &importer{
		store:     postgres.NewCouponRepository(pool),
		batchSize: max(batchSize, 1),
		capacity:  max(capacity, 1),
		fpr:       bloomFPR,
	}
	rep, err := im.run(ctx, sources)
	if err != nil {
		return err
	}

	for _, d := range rep.Duplicates {
		slog.Warn("duplicate code ignored",
			slog.String("code", d.Code),
			slog.String("file", d.File),
			slog.String("kept_from", d.Owner),
		)
	}
	slog.Info("import summary",
		slog.Int("read", rep.Read),
		slog.Int("invalid", rep.Invalid),
		slog.Int("duplicates", len(rep.Duplicates)),
		slog.Int("inserted", rep.Inserted),
	)
	return nil
}
