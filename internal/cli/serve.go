package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-wisp/anti-phishing/internal/api"
	"github.com/p-wisp/anti-phishing/internal/config"
	"github.com/p-wisp/anti-phishing/internal/engine"
	"github.com/p-wisp/anti-phishing/internal/metrics"
	"github.com/p-wisp/anti-phishing/internal/repository"
	"github.com/p-wisp/anti-phishing/internal/updater"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(version string) *cobra.Command {
	var noUpdate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scoring API and the feed updater",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := setupLogging(cmd, cfg)

			a, err := newApp(cfg, logger, version)
			if err != nil {
				return err
			}
			defer a.db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The store stays open until the updater has returned.
			updaterDone := make(chan struct{})
			if noUpdate {
				close(updaterDone)
			} else {
				go func() {
					defer close(updaterDone)
					a.updater.Run(ctx)
				}()
			}

			err = a.serve(ctx)
			stop()
			<-updaterDone
			return err
		},
	}
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "Serve the stored lists without downloading feeds")
	return cmd
}

// app is everything serve runs, wired from one config.
type app struct {
	db      *repository.ListDB
	engine  *engine.Engine
	metrics *metrics.Metrics
	updater *updater.Updater
	server  *api.Server
	logger  *slog.Logger
}

func openStore(cfg *config.Config) (*repository.ListDB, error) {
	db := &repository.ListDB{}
	if err := db.InitDB(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("could not initialize list store: %w", err)
	}
	if err := db.SyncUserRules(cfg.Lists.Whitelist, cfg.Lists.Blacklist); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not store configured lists: %w", err)
	}
	return db, nil
}

func newApp(cfg *config.Config, logger *slog.Logger, version string) (*app, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		db:      db,
		engine:  engine.New(nil),
		metrics: metrics.New(),
		logger:  logger,
	}
	if err := a.reloadLists(); err != nil {
		db.Close()
		return nil, err
	}

	a.updater = updater.New(db, cfg, logger)
	a.updater.OnSync = func(results []updater.Result) {
		a.metrics.ObserveFeedResults(results)
		if err := a.reloadLists(); err != nil {
			logger.Error("list reload failed, serving previous lists", "error", err)
		}
	}

	a.server = api.NewServer(cfg, a.engine, db, a.metrics, version)
	return a, nil
}

// reloadLists copies the stored lists into the engine and refreshes the gauges.
func (a *app) reloadLists() error {
	if err := a.engine.LoadLists(a.db); err != nil {
		return err
	}
	blocked, allowed := a.engine.ListSizes()
	a.metrics.SetListSizes(blocked, allowed)

	counts, err := a.db.SourceCounts()
	if err != nil {
		a.logger.Warn("could not count list entries", "error", err)
	} else {
		a.metrics.SetFeedEntries(counts)
	}

	a.logger.Info("lists loaded", "blocked", blocked, "allowed", allowed)
	return nil
}

// serve runs the HTTP server until ctx is done, then shuts it down.
func (a *app) serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("phishguard listening", "addr", a.server.Addr())
		errc <- a.server.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
