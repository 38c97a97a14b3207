// Package app provides the top-level application lifecycle for the
// simulator. It wires together all dependencies (market data source, ledger
// stores, status publishing, blob storage, and notifications), runs a single
// simulation, and finalizes the report.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/mmsim/internal/analyze"
	s3blob "github.com/quantfold/mmsim/internal/blob/s3"
	"github.com/quantfold/mmsim/internal/config"
	"github.com/quantfold/mmsim/internal/domain"
	"github.com/quantfold/mmsim/internal/engine"
	"github.com/quantfold/mmsim/internal/server"
)

const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, executes one
// simulation run, and finalizes the report (persist, publish, archive,
// notify). The returned error is non-nil when the run halted on a broken
// invariant or a dependency failed.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting run",
		slog.String("source_mode", a.cfg.Source.Mode),
		slog.String("fill_model", a.cfg.Fill.Model),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var status domain.StatusPublisher
	if deps.Status != nil {
		status = deps.Status
	}

	runner, err := engine.NewRunner(a.cfg.EngineConfig(), engine.Deps{
		Source:    deps.Source,
		Positions: deps.Positions,
		Recorder:  deps.Recorder,
		Runs:      deps.Runs,
		Status:    status,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: init engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// HTTP status server, shut down once the run finishes.
	if a.cfg.Server.Enabled {
		router := server.NewRouter(deps.Status, deps.Runs, a.logger)
		srv := server.New(a.cfg.Server.Addr, router)
		g.Go(func() error {
			a.logger.Info("status server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var (
		res    engine.Result
		runErr error
	)
	g.Go(func() error {
		res, runErr = runner.Run(gctx)
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	// Finalization must proceed even when the run halted or the parent
	// context was cancelled mid-run.
	finCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer done()

	if err := a.finalize(finCtx, deps, res); err != nil {
		a.logger.Error("report finalization failed", slog.String("error", err.Error()))
		if runErr == nil {
			return err
		}
	}

	return runErr
}

// finalize renders the run report, persists it, publishes it, archives it,
// and raises notifications. Publish and archive failures are logged but do
// not mask the report itself.
func (a *App) finalize(ctx context.Context, deps *Dependencies, res engine.Result) error {
	analyzer := analyze.New(deps.Executions, a.cfg.Thresholds(), a.logger)

	report, err := analyzer.Report(ctx, res)
	if err != nil {
		return fmt.Errorf("app: analyze run: %w", err)
	}
	report.GeneratedAt = time.Now().UTC()

	if err := deps.Runs.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("app: save report: %w", err)
	}

	if deps.Status != nil {
		if err := deps.Status.PublishReport(ctx, report); err != nil {
			a.logger.Warn("report publish failed", slog.String("error", err.Error()))
		}
	}

	if deps.Archiver != nil {
		if err := deps.Archiver.ArchiveReport(ctx, report); err != nil {
			a.logger.Warn("report archive failed", slog.String("error", err.Error()))
		}
		if res.State == domain.RunStateHalted {
			if err := a.archiveHaltBundle(ctx, deps, res); err != nil {
				a.logger.Warn("halt bundle archive failed", slog.String("error", err.Error()))
			}
		}
	}

	if err := deps.Notifier.NotifyReport(ctx, report); err != nil {
		a.logger.Warn("notification failed", slog.String("error", err.Error()))
	}

	a.logger.Info("run finalized",
		slog.String("run_id", report.RunID),
		slog.String("state", string(report.State)),
		slog.String("verdict", string(report.Verdict)),
	)
	return nil
}

// archiveHaltBundle snapshots the full ledger of a halted run for offline
// forensics.
func (a *App) archiveHaltBundle(ctx context.Context, deps *Dependencies, res engine.Result) error {
	positions, err := deps.Positions.ListByRun(ctx, res.RunID)
	if err != nil {
		return fmt.Errorf("app: list positions: %w", err)
	}
	executions, err := deps.Executions.ListByRun(ctx, res.RunID)
	if err != nil {
		return fmt.Errorf("app: list executions: %w", err)
	}
	return deps.Archiver.ArchiveHaltBundle(ctx, s3blob.HaltBundle{
		RunID:      res.RunID,
		HaltReason: res.HaltReason,
		HaltTick:   res.HaltTick,
		Positions:  positions,
		Executions: executions,
		CreatedAt:  time.Now().UTC(),
	})
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
