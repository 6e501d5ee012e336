// Package balance reads native and token balances through the resilient
// ledger client. Reads are best-effort: display paths degrade to zero.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/units"
)

// Decimal source labels.
const (
	SourceStatic  = "static"
	SourceCache   = "cache"
	SourceLedger  = "ledger"
	SourceDefault = "default"
)

// ErrMintNotFound is returned when a mint account does not exist.
var ErrMintNotFound = errors.New("mint account not found")

// Options configures Aggregator.
type Options struct {
	Network domain.Network
	Tokens  *domain.TokenRegistry
	// DecimalsTTL bounds how long a ledger-resolved precision is cached.
	// Zero caches for the lifetime of the aggregator.
	DecimalsTTL time.Duration
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Aggregator computes native and token balances for an owner.
type Aggregator struct {
	client   *ledger.Client
	network  domain.Network
	tokens   *domain.TokenRegistry
	decimals *cache.Cache
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAggregator creates an Aggregator for one network.
func NewAggregator(client *ledger.Client, opts Options) *Aggregator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ttl := opts.DecimalsTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Aggregator{
		client:   client,
		network:  opts.Network,
		tokens:   opts.Tokens,
		decimals: cache.New(ttl, 10*time.Minute),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Network returns the network balances are read from.
func (a *Aggregator) Network() domain.Network {
	return a.network
}

// NativeBalanceDetail returns the owner's native balance or the ledger error.
func (a *Aggregator) NativeBalanceDetail(ctx context.Context, owner string) (decimal.Decimal, error) {
	if _, err := solana.DecodeAddress(owner); err != nil {
		return decimal.Zero, domain.NewError(domain.CodeInvalidAddress, "invalid wallet address", err)
	}

	lamports, err := ledger.Execute(ctx, a.client, a.network, "getBalance",
		func(ctx context.Context, rpc solana.RPCClient) (uint64, error) {
			return rpc.GetBalance(ctx, owner)
		})
	if err != nil {
		return decimal.Zero, err
	}
	return units.FromRaw(lamports, domain.NativeDecimals), nil
}

// NativeBalance returns the owner's native balance, or zero if it cannot be read.
func (a *Aggregator) NativeBalance(ctx context.Context, owner string) decimal.Decimal {
	bal, err := a.NativeBalanceDetail(ctx, owner)
	if err != nil {
		a.logger.Warn("native balance unavailable, reporting zero",
			zap.String("owner", owner),
			zap.Error(err))
		a.metrics.RecordBalanceDegraded(string(a.network), "native")
		return decimal.Zero
	}
	return bal
}

// ResolveDecimals returns the precision of mint: static configuration first,
// then the mint account on the ledger, then DefaultTokenDecimals. Ledger
// results are cached; the default is not, so a later call can still resolve.
func (a *Aggregator) ResolveDecimals(ctx context.Context, mint string) (uint8, string) {
	if desc, ok := a.tokens.ByMint(a.network, mint); ok {
		a.metrics.RecordDecimalsLookup(SourceStatic)
		return desc.Decimals, SourceStatic
	}

	key := string(a.network) + "|" + mint
	if v, ok := a.decimals.Get(key); ok {
		a.metrics.RecordDecimalsLookup(SourceCache)
		return v.(uint8), SourceCache
	}

	decimals, err := ledger.Execute(ctx, a.client, a.network, "getAccountInfo",
		func(ctx context.Context, rpc solana.RPCClient) (uint8, error) {
			info, err := rpc.GetAccountInfo(ctx, mint)
			if err != nil {
				return 0, err
			}
			if info == nil {
				return 0, ErrMintNotFound
			}
			return solana.ParseMintDecimals(info.Data)
		})
	if err != nil || decimals > units.MaxDecimals {
		a.logger.Warn("mint precision unavailable, using default",
			zap.String("mint", mint),
			zap.Uint8("default", domain.DefaultTokenDecimals),
			zap.Error(err))
		a.metrics.RecordDecimalsLookup(SourceDefault)
		return domain.DefaultTokenDecimals, SourceDefault
	}

	a.decimals.SetDefault(key, decimals)
	a.metrics.RecordDecimalsLookup(SourceLedger)
	return decimals, SourceLedger
}

// TokenBalanceDetail aggregates every token account the owner holds for mint.
// The canonical associated account and the full enumeration are read
// concurrently; records are deduplicated by account address before summing,
// each contributing at its own reported precision. It fails only when both
// reads fail; a failed enumeration yields a Partial balance.
func (a *Aggregator) TokenBalanceDetail(ctx context.Context, owner, mint string) (*domain.TokenBalance, error) {
	canonical, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, domain.NewError(domain.CodeInvalidAddress, "invalid wallet or token address", err)
	}

	resolved, _ := a.ResolveDecimals(ctx, mint)

	var (
		canonicalAmount *solana.TokenAmount
		canonicalErr    error
		enumerated      []domain.AccountBalanceRecord
		enumErr         error
	)

	// The reads are independent: neither failure cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		canonicalAmount, canonicalErr = a.readCanonical(ctx, canonical)
		return nil
	})
	g.Go(func() error {
		enumerated, enumErr = a.TokenAccounts(ctx, owner, mint)
		return nil
	})
	_ = g.Wait()

	if canonicalErr != nil && enumErr != nil {
		return nil, fmt.Errorf("read token accounts: %w", errors.Join(enumErr, canonicalErr))
	}
	if canonicalErr != nil {
		a.logger.Debug("canonical token account read failed",
			zap.String("account", canonical),
			zap.Error(canonicalErr))
	}
	if enumErr != nil {
		a.logger.Warn("token account enumeration failed, using canonical account only",
			zap.String("owner", owner),
			zap.String("mint", mint),
			zap.Error(enumErr))
	}

	records := make([]domain.AccountBalanceRecord, 0, len(enumerated)+1)
	seen := make(map[string]struct{}, len(enumerated)+1)
	if canonicalAmount != nil && canonicalAmount.Amount > 0 {
		seen[canonical] = struct{}{}
		records = append(records, domain.AccountBalanceRecord{
			Account:   canonical,
			Owner:     owner,
			Mint:      mint,
			Raw:       canonicalAmount.Amount,
			Decimals:  canonicalAmount.Decimals,
			Amount:    units.FromRaw(canonicalAmount.Amount, canonicalAmount.Decimals),
			Canonical: true,
		})
	}
	for _, rec := range enumerated {
		if _, dup := seen[rec.Account]; dup {
			continue
		}
		rec.Canonical = rec.Account == canonical
		seen[rec.Account] = struct{}{}
		records = append(records, rec)
	}

	amounts := make([]units.RawAmount, 0, len(records))
	precision := resolved
	for _, rec := range records {
		amounts = append(amounts, units.RawAmount{Raw: rec.Raw, Decimals: rec.Decimals})
		precision = rec.Decimals
	}

	return &domain.TokenBalance{
		Owner:    owner,
		Mint:     mint,
		Decimals: precision,
		Total:    units.SumRaw(amounts),
		Records:  records,
		Partial:  enumErr != nil,
	}, nil
}

// TokenBalance returns the formatted token balance, or zero at the default
// precision when it cannot be read.
func (a *Aggregator) TokenBalance(ctx context.Context, owner, mint string) string {
	bal, err := a.TokenBalanceDetail(ctx, owner, mint)
	if err != nil {
		a.logger.Warn("token balance unavailable, reporting zero",
			zap.String("owner", owner),
			zap.String("mint", mint),
			zap.Error(err))
		a.metrics.RecordBalanceDegraded(string(a.network), mint)
		return units.Format(decimal.Zero, domain.DefaultTokenDecimals)
	}
	return bal.Formatted()
}

// TokenAccounts enumerates the owner's token accounts for mint with one
// ledger query. Errors are returned, not degraded.
func (a *Aggregator) TokenAccounts(ctx context.Context, owner, mint string) ([]domain.AccountBalanceRecord, error) {
	accounts, err := ledger.Execute(ctx, a.client, a.network, "getTokenAccountsByOwner",
		func(ctx context.Context, rpc solana.RPCClient) ([]solana.TokenAccount, error) {
			return rpc.GetTokenAccountsByOwner(ctx, owner, solana.TokenAccountsFilter{Mint: mint})
		})
	if err != nil {
		return nil, err
	}

	records := make([]domain.AccountBalanceRecord, 0, len(accounts))
	for _, acct := range accounts {
		if acct.Mint != mint {
			continue
		}
		records = append(records, domain.AccountBalanceRecord{
			Account:  acct.Pubkey,
			Owner:    owner,
			Mint:     acct.Mint,
			Raw:      acct.Amount,
			Decimals: acct.Decimals,
			Amount:   units.FromRaw(acct.Amount, acct.Decimals),
		})
	}
	return records, nil
}

// readCanonical returns the canonical account balance, or nil if it does not exist.
func (a *Aggregator) readCanonical(ctx context.Context, account string) (*solana.TokenAmount, error) {
	return ledger.Execute(ctx, a.client, a.network, "getTokenAccountBalance",
		func(ctx context.Context, rpc solana.RPCClient) (*solana.TokenAmount, error) {
			amount, err := rpc.GetTokenAccountBalance(ctx, account)
			if errors.Is(err, solana.ErrAccountNotFound) {
				return nil, nil
			}
			return amount, err
		})
}
