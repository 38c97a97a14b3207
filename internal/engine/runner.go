// Package engine drives the simulation: it owns the run state machine,
// the tick loop, and the wiring between trust gate, quoting strategy,
// exposure manager, fill model, accounting book and diagnostics.
//
// Execution is single-threaded and tick-synchronous. Quotes posted at
// tick T resolve against the snapshot that arrives at tick T+1 and never
// rest longer. Time limits and cancellation are honored at tick
// boundaries only; a tick that has mutated positions is committed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/mmsim/internal/diagnostics"
	"github.com/quantfold/mmsim/internal/domain"
	"github.com/quantfold/mmsim/internal/exposure"
	"github.com/quantfold/mmsim/internal/fill"
	"github.com/quantfold/mmsim/internal/pnl"
	"github.com/quantfold/mmsim/internal/quoting"
	"github.com/quantfold/mmsim/internal/trust"
)

// SuppressExposureCap marks a bid denied by the exposure gate.
const SuppressExposureCap = "exposure_cap"

// Deps are the engine's collaborators. Status may be nil for runs with no
// publisher wired.
type Deps struct {
	Source    domain.MarketDataSource
	Positions domain.PositionStore
	Recorder  *diagnostics.Recorder
	Runs      domain.RunStore
	Status    domain.StatusPublisher
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Result is what a finished run leaves behind for the analyzer, beyond
// what the ledger stores.
type Result struct {
	RunID     string
	State     domain.RunState
	Ticks     int
	FillCount int

	TrustOKEvals    int
	TrustTotalEvals int

	MaxTotalExposureUSD    float64
	MaxExposureByMarketUSD map[string]float64

	HaltReason string
	HaltTick   *int

	Book *pnl.Book
}

// Runner executes one run from INIT to a terminal state. It is not
// reusable; create a new Runner per run.
type Runner struct {
	cfg  Config
	deps Deps

	runID      string
	state      domain.RunState
	gate       trust.Gate
	strategy   *quoting.Strategy
	model      fill.Model
	exposure   *exposure.Manager
	book       *pnl.Book
	reconciler *pnl.Reconciler
	logger     *slog.Logger

	// pending holds the POSTED quotes from the previous tick, keyed by
	// market, awaiting resolution against the next snapshot.
	pending map[string][]domain.Quote
	done    map[string]bool

	ticks     int
	fillCount int
	trustOK   int
	trustAll  int

	// marketTime is the stream clock: the latest snapshot timestamp seen
	// across all markets. Staleness is judged against it, so replayed
	// recordings are evaluated on the recording's own timeline.
	marketTime time.Time

	haltReason string
	haltTick   *int
}

// NewRunner validates the config and assembles a run in INIT state.
func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := fill.New(cfg.FillModel, fill.Params{
		TickSize:      cfg.TickSize,
		Alpha:         cfg.FillAlpha,
		BaseLiquidity: cfg.FillBaseLiquidity,
		PMax:          cfg.FillPMax,
		Seed:          cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	runID := uuid.NewString()
	return &Runner{
		cfg:   cfg,
		deps:  deps,
		runID: runID,
		state: domain.RunStateInit,
		gate:  trust.NewGate(cfg.TrustStaleness, cfg.TrustMidTolerance),
		strategy: quoting.New(quoting.Config{
			TickSize:     cfg.TickSize,
			KTicks:       cfg.KTicks,
			SkewTicks:    cfg.SkewTicks,
			QuoteSizeUSD: cfg.QuoteSizeUSD,
			MaxSpreadPct: cfg.MaxSpreadPct,
		}),
		model:      model,
		exposure:   exposure.NewManager(cfg.MaxTotalExposureUSD, cfg.MaxPerMarketExposureUSD),
		book:       pnl.NewBook(runID, cfg.BankrollUSD),
		reconciler: pnl.NewReconciler(cfg.ReconcileEps),
		logger: deps.Logger.With(
			slog.String("component", "engine"),
			slog.String("run_id", runID),
		),
		pending: make(map[string][]domain.Quote),
		done:    make(map[string]bool),
	}, nil
}

// RunID returns the generated run identifier.
func (r *Runner) RunID() string { return r.runID }

// State returns the current run state.
func (r *Runner) State() domain.RunState { return r.state }

// Run executes the tick loop until the source is exhausted, max_runtime
// elapses, the context is cancelled, or an invariant breaks. The returned
// error is non-nil only for HALTED runs and infrastructure failures; a
// graceful COMPLETED run returns a nil error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	markets := r.deps.Source.Markets()
	if len(markets) == 0 {
		return Result{}, fmt.Errorf("engine: source exposes no markets")
	}

	started := r.deps.Clock()
	if err := r.deps.Runs.Create(ctx, domain.Run{
		ID:        r.runID,
		State:     domain.RunStateRunning,
		Seed:      r.cfg.Seed,
		FillModel: r.model.Name(),
		Markets:   len(markets),
		StartedAt: started,
	}); err != nil {
		return Result{}, fmt.Errorf("engine: create run: %w", err)
	}

	r.state = domain.RunStateRunning
	r.logger.Info("run started",
		slog.String("fill_model", r.model.Name()),
		slog.Int("markets", len(markets)),
		slog.Int64("seed", r.cfg.Seed),
	)

	var deadline time.Time
	if r.cfg.MaxRuntime > 0 {
		deadline = started.Add(r.cfg.MaxRuntime)
	}

	var haltErr error
loop:
	for tick := 0; ; tick++ {
		// Tick boundary: cancellation and max_runtime are checked here,
		// never mid-tick.
		if ctx.Err() != nil {
			r.logger.Info("cancelled at tick boundary", slog.Int("tick", tick))
			break
		}
		if !deadline.IsZero() && !r.deps.Clock().Before(deadline) {
			r.logger.Info("max runtime reached", slog.Int("tick", tick))
			break
		}

		exhausted := true
		for _, market := range markets {
			if r.done[market] {
				continue
			}
			exhausted = false

			if err := r.tickMarket(ctx, market, tick); err != nil {
				haltErr = r.halt(tick, err)
				break loop
			}
		}
		if exhausted {
			break
		}

		r.ticks = tick + 1
		if err := r.reconciler.Check(r.book, tick); err != nil {
			haltErr = r.halt(tick, err)
			break
		}
		r.publishTick(ctx, tick)
	}

	if r.state != domain.RunStateHalted {
		r.state = domain.RunStateCompleted
		r.expireAllPending()
	}

	reason := ""
	if haltErr != nil {
		reason = haltErr.Error()
	}
	if err := r.deps.Runs.Finish(ctx, r.runID, r.state, reason); err != nil {
		r.logger.Error("finish run row", slog.String("error", err.Error()))
	}

	res := r.result()
	r.logger.Info("run finished",
		slog.String("state", string(r.state)),
		slog.Int("ticks", res.Ticks),
		slog.Int("fills", res.FillCount),
		slog.Float64("cash_usd", r.book.CashUSD()),
	)
	return res, haltErr
}

// tickMarket processes one market for one tick: pull the snapshot, gate
// it, resolve last tick's quotes against it, re-mark the book, then quote.
// An untrusted snapshot touches nothing: pending quotes expire unfilled
// and the book keeps its previous mark.
func (r *Runner) tickMarket(ctx context.Context, market string, tick int) error {
	snap, err := r.nextSnapshot(ctx, market)
	switch {
	case errors.Is(err, domain.ErrEndOfStream):
		r.done[market] = true
		r.expirePending(market)
		return nil
	case errors.Is(err, domain.ErrSnapshotUnavailable) || errors.Is(err, context.DeadlineExceeded):
		// Missing snapshot for this market this tick. Last tick's quotes
		// have nothing to resolve against and expire.
		r.logger.Warn("snapshot unavailable",
			slog.String("market_id", market), slog.Int("tick", tick))
		r.expirePending(market)
		return nil
	case err != nil:
		return fmt.Errorf("engine: snapshot %s: %w", market, err)
	}

	if snap.Timestamp.After(r.marketTime) {
		r.marketTime = snap.Timestamp
	}

	verdict := r.gate.Evaluate(snap, r.marketTime)
	r.trustAll++
	if !verdict.Trusted {
		r.logger.Debug("snapshot untrusted",
			slog.String("market_id", market),
			slog.Int("tick", tick),
			slog.String("reason", string(verdict.Reason)),
		)
		r.expirePending(market)
		return nil
	}
	r.trustOK++

	if err := r.resolvePending(ctx, market, snap, tick); err != nil {
		return err
	}

	if ref := snap.ReferencePrice(); ref != nil {
		r.book.MarkPrice(market, *ref)
	}

	decision := r.strategy.Quote(snap, tick, quoting.Inventory{
		NetUSD: r.book.OpenCostBasisUSD(market),
	})
	if decision.PauseReason != "" {
		r.logger.Debug("quoting paused",
			slog.String("market_id", market),
			slog.Int("tick", tick),
			slog.String("reason", decision.PauseReason),
		)
		return nil
	}

	for _, q := range decision.Quotes {
		if q.Status == domain.QuotePosted && !r.exposure.Admit(q) {
			q.Status = domain.QuoteSuppressed
			q.SuppressReason = SuppressExposureCap
		}
		if q.Status == domain.QuotePosted {
			r.pending[market] = append(r.pending[market], q)
		}
	}
	return nil
}

// resolvePending settles the market's quotes from the previous tick
// against the fresh snapshot. Fills mutate the book, the exposure ledger
// and the durable stores together; unfilled quotes expire.
func (r *Runner) resolvePending(ctx context.Context, market string, snap domain.MarketSnapshot, tick int) error {
	quotes := r.pending[market]
	delete(r.pending, market)

	for _, q := range quotes {
		r.exposure.Settle(q)
		outcome := r.model.Resolve(q, snap, q.PostedAtTick)
		if outcome == nil {
			continue
		}
		if err := r.applyFill(ctx, q, *outcome, snap, tick); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) applyFill(ctx context.Context, q domain.Quote, outcome domain.FillOutcome, snap domain.MarketSnapshot, tick int) error {
	fees := r.cfg.feesFor(outcome.SizeUSD)
	now := r.deps.Clock()

	var pos *domain.Position
	switch q.Side {
	case domain.SideBid:
		opened, err := r.book.Open(q.MarketID, tick, outcome.Price, outcome.SizeUSD, fees)
		if err != nil {
			return err
		}
		// Exposure and position mutate together or not at all; a breach
		// here is fatal, not clamped.
		if err := r.exposure.ApplyOpen(q.MarketID, opened.CostBasisUSD); err != nil {
			return err
		}
		if err := r.deps.Positions.Append(ctx, *opened); err != nil {
			return fmt.Errorf("engine: persist position: %w", err)
		}
		pos = opened
	case domain.SideAsk:
		closed, err := r.book.CloseOldest(q.MarketID, tick, outcome.Price, fees)
		if errors.Is(err, domain.ErrNotFound) {
			// Inventory vanished between posting and resolution. The ask
			// simply expires.
			return nil
		}
		if err != nil {
			return err
		}
		r.exposure.Release(q.MarketID, closed.CostBasisUSD)
		if err := r.deps.Positions.MarkClosed(ctx, *closed); err != nil {
			return fmt.Errorf("engine: persist close: %w", err)
		}
		pos = closed
	}

	r.fillCount++
	if r.deps.Recorder != nil {
		_, err := r.deps.Recorder.Record(ctx, diagnostics.Fill{
			RunID:      r.runID,
			MarketID:   q.MarketID,
			Side:       q.Side,
			Tick:       tick,
			DecisionTS: snap.Timestamp,
			SendTS:     snap.Timestamp,
			AckTS:      now,
			FillTS:     now,
			Snapshot:   snap,
			QuotePrice: q.Price,
			Outcome:    outcome,
			Shares:     pos.Shares,
			FeesUSD:    fees,
		})
		if err != nil {
			return fmt.Errorf("engine: record fill: %w", err)
		}
	}
	return nil
}

func (r *Runner) nextSnapshot(ctx context.Context, market string) (domain.MarketSnapshot, error) {
	if r.cfg.SnapshotTimeout <= 0 {
		return r.deps.Source.Next(ctx, market)
	}
	tctx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
	defer cancel()
	return r.deps.Source.Next(tctx, market)
}

func (r *Runner) halt(tick int, err error) error {
	r.state = domain.RunStateHalted
	t := tick
	r.haltTick = &t
	r.haltReason = err.Error()
	r.expireAllPending()
	r.logger.Error("run halted",
		slog.Int("tick", tick),
		slog.String("reason", err.Error()),
	)
	return err
}

func (r *Runner) publishTick(ctx context.Context, tick int) {
	if r.deps.Status == nil {
		return
	}
	state := r.exposure.State()
	status := domain.TickStatus{
		RunID:            r.runID,
		Tick:             tick,
		TotalExposureUSD: state.TotalUSD,
		ExposureByMarket: state.PerMarketUSD,
		FillCount:        r.fillCount,
		Cash:             r.book.CashUSD(),
		At:               r.deps.Clock(),
	}
	// Publishing is observability, never control flow.
	if err := r.deps.Status.PublishTick(ctx, status); err != nil {
		r.logger.Warn("publish tick status", slog.String("error", err.Error()))
	}
}

func (r *Runner) expirePending(market string) {
	for i := range r.pending[market] {
		r.pending[market][i].Status = domain.QuoteExpired
		r.exposure.Settle(r.pending[market][i])
	}
	delete(r.pending, market)
}

func (r *Runner) expireAllPending() {
	for market := range r.pending {
		r.expirePending(market)
	}
}

func (r *Runner) result() Result {
	maxTotal, maxPer := r.exposure.MaxObserved()
	return Result{
		RunID:                  r.runID,
		State:                  r.state,
		Ticks:                  r.ticks,
		FillCount:              r.fillCount,
		TrustOKEvals:           r.trustOK,
		TrustTotalEvals:        r.trustAll,
		MaxTotalExposureUSD:    maxTotal,
		MaxExposureByMarketUSD: maxPer,
		HaltReason:             r.haltReason,
		HaltTick:               r.haltTick,
		Book:                   r.book,
	}
}
