package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscrub/internal/blob"
	"github.com/sells-group/leadscrub/internal/job"
	"github.com/sells-group/leadscrub/internal/metrics"
	"github.com/sells-group/leadscrub/internal/store"
	"github.com/sells-group/leadscrub/pkg/blacklist"
)

// scrubEnv holds the collaborators needed by the scrub and serve commands.
type scrubEnv struct {
	Store   store.Store
	Blobs   blob.Store
	Runner  *job.Runner
	Metrics *metrics.Recorder
}

// Close releases resources held by the environment.
func (e *scrubEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScrub validates config for mode, opens and migrates the store, and
// builds the job runner. Callers should defer env.Close().
func initScrub(ctx context.Context, mode string) (*scrubEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := initBlobs()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rec := metrics.New()
	runner := job.NewRunner(job.Config{
		OutputBucket:    cfg.Blob.OutputBucket,
		UploadPrefix:    cfg.Blob.UploadPrefix,
		MaxPayloadBytes: cfg.Scrub.MaxPayloadBytes,
		Concurrency:     cfg.Scrub.Concurrency,
		IOTimeout:       cfg.Job.IOTimeout(),
		Defaults:        cfg.Scrub.ColumnDefaults(),
	}, st, blobs, initBlacklist(), rec)

	zap.L().Info("scrub environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("blob", cfg.Blob.Driver),
		zap.String("mode", cfg.Scrub.Mode),
		zap.Int("concurrency", cfg.Scrub.Concurrency),
	)

	return &scrubEnv{Store: st, Blobs: blobs, Runner: runner, Metrics: rec}, nil
}

// openStore opens the configured document store and migrates it.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadscrub.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBlobs() (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "local", "":
		return blob.NewLocalStore(cfg.Blob.Root), nil
	case "ftp":
		return blob.NewFTPStore(blob.FTPOptions{
			Addr:     cfg.Blob.FTP.Addr,
			User:     cfg.Blob.FTP.User,
			Password: cfg.Blob.FTP.Password,
			Timeout:  time.Duration(cfg.Blob.FTP.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, eris.Errorf("unsupported blob driver: %s", cfg.Blob.Driver)
	}
}

func initBlacklist() blacklist.Client {
	opts := []blacklist.Option{
		blacklist.WithBaseURL(cfg.Blacklist.BaseURL),
		blacklist.WithPaths(cfg.Blacklist.LookupPath, cfg.Blacklist.BulkPath),
		blacklist.WithVersion(cfg.Blacklist.Version),
		blacklist.WithTimeouts(
			time.Duration(cfg.Blacklist.TimeoutSecs)*time.Second,
			time.Duration(cfg.Blacklist.BulkTimeoutSecs)*time.Second,
		),
		blacklist.WithRateLimit(cfg.Blacklist.RatePerSec),
	}
	if len(cfg.Blacklist.BulkCategories) > 0 {
		opts = append(opts, blacklist.WithCategories(cfg.Blacklist.BulkCategories...))
	}
	return blacklist.NewClient(cfg.Blacklist.Key, opts...)
}
