package balance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger/ledgertest"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/solana/stub"
)

const (
	testOwner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	extraAcct = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

func newAggregator(t *testing.T, tokens *domain.TokenRegistry, stubs ...*stub.RPCClient) *Aggregator {
	t.Helper()
	client := ledgertest.NewClient(t, domain.Devnet, time.Second, stubs...)
	return NewAggregator(client, Options{Network: domain.Devnet, Tokens: tokens})
}

func canonicalAccount(t *testing.T) string {
	t.Helper()
	ata, err := solana.FindAssociatedTokenAddress(testOwner, testMint)
	require.NoError(t, err)
	return ata
}

func tokenAccount(pubkey string, raw uint64, decimals uint8) solana.TokenAccount {
	return solana.TokenAccount{
		Pubkey:      pubkey,
		Mint:        testMint,
		Owner:       testOwner,
		TokenAmount: solana.TokenAmount{Amount: raw, Decimals: decimals},
	}
}

func TestNativeBalance(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.Balances[testOwner] = 1_500_000_000

	agg := newAggregator(t, nil, rpc)
	got := agg.NativeBalance(context.Background(), testOwner)

	assert.True(t, decimal.RequireFromString("1.5").Equal(got), "got %s", got)
}

func TestNativeBalance_FreshAddressIsZero(t *testing.T) {
	agg := newAggregator(t, nil, stub.NewRPCClient("https://a"))
	assert.True(t, agg.NativeBalance(context.Background(), testOwner).IsZero())
}

func TestNativeBalance_DegradesToZero(t *testing.T) {
	a, b := stub.NewRPCClient("https://a"), stub.NewRPCClient("https://b")
	a.Err = &solana.HTTPStatusError{StatusCode: http.StatusForbidden}
	b.Err = errors.New("connection refused")

	agg := newAggregator(t, nil, a, b)
	assert.True(t, agg.NativeBalance(context.Background(), testOwner).IsZero())

	_, err := agg.NativeBalanceDetail(context.Background(), testOwner)
	assert.Error(t, err)
}

func TestNativeBalanceDetail_InvalidAddress(t *testing.T) {
	agg := newAggregator(t, nil, stub.NewRPCClient("https://a"))
	_, err := agg.NativeBalanceDetail(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestTokenBalance_SplitAccountsCountedOnce(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	canonical := canonicalAccount(t)
	// enumeration returns the canonical account as well
	rpc.AddTokenAccount(tokenAccount(canonical, 10_000_000, 6))
	rpc.AddTokenAccount(tokenAccount(extraAcct, 5_000_000, 6))

	agg := newAggregator(t, nil, rpc)
	assert.Equal(t, "15.000000", agg.TokenBalance(context.Background(), testOwner, testMint))

	detail, err := agg.TokenBalanceDetail(context.Background(), testOwner, testMint)
	require.NoError(t, err)
	require.Len(t, detail.Records, 2)
	assert.Equal(t, canonical, detail.Records[0].Account)
	assert.True(t, detail.Records[0].Canonical)
	assert.False(t, detail.Records[1].Canonical)
}

func TestTokenBalance_MixedPrecision(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(canonicalAccount(t), 10_000_000, 6))
	rpc.AddTokenAccount(tokenAccount(extraAcct, 5_000_000_001, 9))

	agg := newAggregator(t, nil, rpc)
	detail, err := agg.TokenBalanceDetail(context.Background(), testOwner, testMint)
	require.NoError(t, err)

	assert.Equal(t, uint8(9), detail.Decimals, "formats at the last record's precision")
	assert.Equal(t, "15.000000001", detail.Formatted())
}

func TestTokenBalance_CanonicalReadFailureUsesEnumeration(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(canonicalAccount(t), 10_000_000, 6))
	rpc.SetMethodErr("getTokenAccountBalance", errors.New("boom"))

	agg := newAggregator(t, nil, rpc)
	assert.Equal(t, "10.000000", agg.TokenBalance(context.Background(), testOwner, testMint))
}

func TestTokenBalance_NoAccountsFormatsAtResolvedPrecision(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	tokens := domain.NewTokenRegistry()
	tokens.Add(domain.Devnet, domain.TokenDescriptor{Symbol: "USDC", Mint: testMint, Decimals: 6})

	agg := newAggregator(t, tokens, rpc)
	assert.Equal(t, "0.000000", agg.TokenBalance(context.Background(), testOwner, testMint))
}

func TestTokenBalance_EnumerationFailureKeepsCanonical(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(canonicalAccount(t), 10_000_000, 6))
	rpc.SetMethodErr("getTokenAccountsByOwner", &solana.HTTPStatusError{StatusCode: http.StatusTooManyRequests})

	agg := newAggregator(t, nil, rpc)
	assert.Equal(t, "10.000000", agg.TokenBalance(context.Background(), testOwner, testMint))

	bal, err := agg.TokenBalanceDetail(context.Background(), testOwner, testMint)
	require.NoError(t, err)
	assert.True(t, bal.Partial)
	require.Len(t, bal.Records, 1)
	assert.True(t, bal.Records[0].Canonical)
	assert.Equal(t, canonicalAccount(t), bal.Records[0].Account)
	assert.Positive(t, rpc.CallCount("getTokenAccountBalance"))
}

func TestTokenBalance_BothReadsFailDegradesToZero(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(canonicalAccount(t), 10_000_000, 6))
	rpc.SetMethodErr("getTokenAccountsByOwner", &solana.HTTPStatusError{StatusCode: http.StatusTooManyRequests})
	rpc.SetMethodErr("getTokenAccountBalance", &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable})

	agg := newAggregator(t, nil, rpc)
	assert.Equal(t, "0.000000000", agg.TokenBalance(context.Background(), testOwner, testMint))

	_, err := agg.TokenBalanceDetail(context.Background(), testOwner, testMint)
	assert.Error(t, err)
}

func TestTokenBalance_CanonicalFailureUsesEnumeration(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(canonicalAccount(t), 10_000_000, 6))
	rpc.AddTokenAccount(tokenAccount(extraAcct, 2_500_000, 6))
	rpc.SetMethodErr("getTokenAccountBalance", &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable})

	agg := newAggregator(t, nil, rpc)
	bal, err := agg.TokenBalanceDetail(context.Background(), testOwner, testMint)
	require.NoError(t, err)
	assert.False(t, bal.Partial)
	assert.Equal(t, "12.500000", bal.Formatted())
}

func TestTokenBalance_InvalidMint(t *testing.T) {
	agg := newAggregator(t, nil, stub.NewRPCClient("https://a"))
	_, err := agg.TokenBalanceDetail(context.Background(), testOwner, "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestResolveDecimals(t *testing.T) {
	t.Run("static configuration wins", func(t *testing.T) {
		rpc := stub.NewRPCClient("https://a")
		rpc.AddMint(testMint, 9)
		tokens := domain.NewTokenRegistry()
		tokens.Add(domain.Devnet, domain.TokenDescriptor{Symbol: "USDC", Mint: testMint, Decimals: 6})

		agg := newAggregator(t, tokens, rpc)
		got, source := agg.ResolveDecimals(context.Background(), testMint)
		assert.Equal(t, uint8(6), got)
		assert.Equal(t, SourceStatic, source)
		assert.Equal(t, 0, rpc.TotalCalls())
	})

	t.Run("ledger result is cached", func(t *testing.T) {
		rpc := stub.NewRPCClient("https://a")
		rpc.AddMint(testMint, 2)

		agg := newAggregator(t, nil, rpc)
		got, source := agg.ResolveDecimals(context.Background(), testMint)
		assert.Equal(t, uint8(2), got)
		assert.Equal(t, SourceLedger, source)

		got, source = agg.ResolveDecimals(context.Background(), testMint)
		assert.Equal(t, uint8(2), got)
		assert.Equal(t, SourceCache, source)
		assert.Equal(t, 1, rpc.CallCount("getAccountInfo"))
	})

	t.Run("default is not cached", func(t *testing.T) {
		rpc := stub.NewRPCClient("https://a")

		agg := newAggregator(t, nil, rpc)
		got, source := agg.ResolveDecimals(context.Background(), testMint)
		assert.Equal(t, domain.DefaultTokenDecimals, got)
		assert.Equal(t, SourceDefault, source)

		rpc.AddMint(testMint, 6)
		got, source = agg.ResolveDecimals(context.Background(), testMint)
		assert.Equal(t, uint8(6), got)
		assert.Equal(t, SourceLedger, source)
	})
}

func TestTokenAccounts_FiltersMint(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AddTokenAccount(tokenAccount(extraAcct, 1, 6))
	other := tokenAccount(canonicalAccount(t), 5, 6)
	other.Mint = "So11111111111111111111111111111111111111112"
	rpc.AddTokenAccount(other)

	agg := newAggregator(t, nil, rpc)
	records, err := agg.TokenAccounts(context.Background(), testOwner, testMint)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, extraAcct, records[0].Account)
}
