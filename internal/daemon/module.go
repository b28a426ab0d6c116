// Package daemon wires the relay's components into an fx application.
package daemon

import (
	"context"
	"os"

	"github.com/pentacloud/warelay/internal/config"
	"github.com/pentacloud/warelay/internal/httpapi"
	"github.com/pentacloud/warelay/internal/ingest"
	"github.com/pentacloud/warelay/internal/ledger"
	"github.com/pentacloud/warelay/internal/live"
	"github.com/pentacloud/warelay/internal/lock"
	"github.com/pentacloud/warelay/internal/logging"
	"github.com/pentacloud/warelay/internal/outbox"
	"github.com/pentacloud/warelay/internal/store"
	"github.com/pentacloud/warelay/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			provideLive,
			provideLedger,
			provideClient,
			providePipeline,
			provideTracker,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLive() *live.Channel {
	return live.New()
}

func provideLedger(db *store.DB, lv *live.Channel, logger *zap.Logger) *ledger.Ledger {
	return ledger.New(db, lv, logger)
}

func provideClient(cfg *config.Config) *wa.Client {
	return wa.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.APIBaseURL)
}

func providePipeline(cfg *config.Config, l *ledger.Ledger, client *wa.Client, logger *zap.Logger) *ingest.Pipeline {
	// Read receipts need provider credentials.
	var marker ingest.ReadMarker
	if cfg.WhatsApp.AccessToken != "" {
		marker = client
	}
	return ingest.New(l, marker, logger)
}

func provideTracker(db *store.DB, l *ledger.Ledger, client *wa.Client, logger *zap.Logger) *outbox.Tracker {
	return outbox.NewTracker(db, l, client, logger)
}

func provideServer(cfg *config.Config, l *ledger.Ledger, p *ingest.Pipeline, tr *outbox.Tracker, lv *live.Channel, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(cfg.ListenAddr, cfg.WhatsApp, l, p, tr, lv, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *httpapi.Server, tracker *outbox.Tracker, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Start outbox drain loop; picks up rows queued before the
			// last shutdown.
			tracker.Start(context.Background())

			return nil
		},
		OnStop: func(ctx context.Context) error {
			tracker.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
