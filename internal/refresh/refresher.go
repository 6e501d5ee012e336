// Package refresh periodically reads an owner's balances, records them as
// snapshots and publishes changes. Runs never overlap: a tick that arrives
// while the previous run is still in flight is skipped.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet/internal/balance"
	"solana-wallet/internal/domain"
	"solana-wallet/internal/events"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/storage"
	"solana-wallet/internal/units"
)

// NativeAsset is the snapshot asset name of the native balance.
const NativeAsset = "SOL"

// maxConcurrentReads bounds parallel balance reads within one run.
const maxConcurrentReads = 4

// ErrAlreadyRunning is returned by RunOnce while another run is in flight.
var ErrAlreadyRunning = errors.New("refresh already running")

// Options configures Refresher.
type Options struct {
	Network  domain.Network
	Owner    string
	Tokens   []domain.TokenDescriptor
	Interval time.Duration

	// Snapshots stores balance history. Optional.
	Snapshots storage.BalanceSnapshotStore
	// Events receives balance notifications. Optional.
	Events events.Publisher

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// RunResult summarises one refresh.
type RunResult struct {
	Snapshots []*domain.BalanceSnapshot
	Degraded  int
	Changed   int
	Duration  time.Duration
}

// Refresher runs balance refreshes on an interval.
type Refresher struct {
	agg       *balance.Aggregator
	network   domain.Network
	owner     string
	tokens    []domain.TokenDescriptor
	interval  time.Duration
	snapshots storage.BalanceSnapshotStore
	events    events.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	running bool
	runs    int
	lastRun time.Time
	last    map[string]string // asset -> last published amount
}

// New creates a Refresher.
func New(agg *balance.Aggregator, opts Options) *Refresher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Refresher{
		agg:       agg,
		network:   opts.Network,
		owner:     opts.Owner,
		tokens:    opts.Tokens,
		interval:  opts.Interval,
		snapshots: opts.Snapshots,
		events:    opts.Events,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		last:      make(map[string]string),
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("starting balance refresh",
		zap.String("owner", r.owner),
		zap.Int("tokens", len(r.tokens)),
		zap.Duration("interval", r.interval))

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			r.logger.Debug("refresh already running, skipping tick")
			return
		}
		if ctx.Err() == nil {
			r.logger.Warn("balance refresh failed", zap.Error(err))
		}
	}
}

// Runs returns how many refreshes completed and when the last one finished.
func (r *Refresher) Runs() (int, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastRun
}

// RunOnce performs a single refresh. Balance read failures are recorded as
// degraded zero snapshots; only a snapshot store failure is returned.
func (r *Refresher) RunOnce(ctx context.Context) (*RunResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	start := r.now()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.runs++
		r.lastRun = r.now()
		r.mu.Unlock()
	}()

	snaps := make([]*domain.BalanceSnapshot, len(r.tokens)+1)
	takenAt := start.UnixMilli()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	g.Go(func() error {
		bal, err := r.agg.NativeBalanceDetail(gctx, r.owner)
		snaps[0] = r.snapshot(NativeAsset, units.Format(bal, domain.NativeDecimals), domain.NativeDecimals, takenAt, err)
		return nil
	})
	for i, tok := range r.tokens {
		g.Go(func() error {
			bal, err := r.agg.TokenBalanceDetail(gctx, r.owner, tok.Mint)
			if err != nil {
				snaps[i+1] = r.snapshot(tok.Mint, "", tok.Decimals, takenAt, err)
				return nil
			}
			snaps[i+1] = r.snapshot(tok.Mint, bal.Formatted(), bal.Decimals, takenAt, nil)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RunResult{Snapshots: snaps}
	for _, s := range snaps {
		if s.Degraded {
			result.Degraded++
		}
	}
	result.Changed = r.publish(snaps)

	status := "success"
	if result.Degraded > 0 {
		status = "degraded"
	}

	if r.snapshots != nil {
		if err := r.snapshots.InsertBulk(ctx, snaps); err != nil {
			result.Duration = r.now().Sub(start)
			r.metrics.RecordRefresh("error", result.Duration.Seconds(), r.now().Unix())
			r.events.Publish(events.Event{
				Type:    events.TypeRefreshFailed,
				Network: r.network,
				Owner:   r.owner,
				Message: "Balance history could not be saved",
			})
			return result, err
		}
	}

	result.Duration = r.now().Sub(start)
	r.metrics.RecordRefresh(status, result.Duration.Seconds(), r.now().Unix())
	r.logger.Debug("balance refresh complete",
		zap.Int("assets", len(snaps)),
		zap.Int("degraded", result.Degraded),
		zap.Int("changed", result.Changed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (r *Refresher) snapshot(asset, amount string, decimals uint8, takenAt int64, err error) *domain.BalanceSnapshot {
	s := &domain.BalanceSnapshot{
		Network:   r.network,
		Owner:     r.owner,
		Asset:     asset,
		Amount:    amount,
		Decimals:  decimals,
		TakenAtMs: takenAt,
	}
	if err != nil {
		s.Amount = units.Format(decimal.Zero, decimals)
		s.Degraded = true
		r.logger.Warn("balance read failed during refresh",
			zap.String("asset", asset),
			zap.Error(err))
		r.metrics.RecordBalanceDegraded(string(r.network), asset)
	}
	return s
}

// publish emits an event per asset whose amount changed since the last
// healthy read, and one per degraded read. It returns the change count.
func (r *Refresher) publish(snaps []*domain.BalanceSnapshot) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, s := range snaps {
		if s.Degraded {
			r.events.Publish(events.Event{
				Type:    events.TypeBalanceDegraded,
				Network: s.Network,
				Owner:   s.Owner,
				Asset:   s.Asset,
				Message: "Balance temporarily unavailable",
			})
			continue
		}
		if prev, ok := r.last[s.Asset]; ok && prev == s.Amount {
			continue
		}
		r.last[s.Asset] = s.Amount
		changed++
		r.events.Publish(events.Event{
			Type:    events.TypeBalanceUpdated,
			Network: s.Network,
			Owner:   s.Owner,
			Asset:   s.Asset,
			Amount:  s.Amount,
		})
	}
	return changed
}
