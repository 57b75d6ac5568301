package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/db"
	"github.com/xenking/tableorder/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "", "path to a seed JSON file, optionally gzipped (.gz); the built-in demo venue when empty")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedFile string) error {
	seed, err := readSeed(seedFile)
	if err != nil {
		return err
	}
	lg.Info("Seed loaded",
		zap.String("path", seedFile),
		zap.Int("restaurants", len(seed.Restaurants)),
		zap.Int("tables", len(seed.Tables)),
		zap.Int("foods", len(seed.Foods)),
		zap.Int("offers", len(seed.Offers)),
	)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	if err := postgres.ApplySeed(ctx, pool, seed); err != nil {
		return err
	}
	lg.Info("Rows upserted", zap.Int("rows", seed.Rows()))
	return nil
}

func readSeed(path string) (*postgres.Seed, error) {
	if path == "" {
		return decodeSeed(bytes.NewReader(db.DemoSeed), "demo seed")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return decodeSeed(r, path)
}

func decodeSeed(r io.Reader, name string) (*postgres.Seed, error) {
	var seed postgres.Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	return &seed, nil
}
