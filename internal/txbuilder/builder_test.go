package txbuilder

import (
	"context"
	"net/http"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger/ledgertest"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/solana/stub"
)

const (
	usdcMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	recipient = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

var usdc = domain.TokenDescriptor{Symbol: "USDC", Mint: usdcMint, Decimals: 6}

func newBuilder(t *testing.T, stubs ...*stub.RPCClient) *Builder {
	t.Helper()
	client := ledgertest.NewClient(t, domain.Devnet, time.Second, stubs...)
	return NewBuilder(client, Options{Network: domain.Devnet})
}

func sender(t *testing.T) solanago.PublicKey {
	t.Helper()
	priv, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return priv.PublicKey()
}

func TestNativeTransfer(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	b := newBuilder(t, rpc)
	from := sender(t)

	tx, err := b.NativeTransfer(context.Background(), from, recipient, decimal.RequireFromString("1.5"))
	require.NoError(t, err)

	assert.Equal(t, KindNativeTransfer, tx.Kind)
	assert.Equal(t, uint64(1_500_000_000), tx.Raw)
	assert.True(t, tx.FeePayer.Equals(from))
	require.Len(t, tx.Instructions, 1)
	assert.True(t, tx.Instructions[0].ProgramID().Equals(solanago.SystemProgramID))
	assert.Equal(t, rpc.Blockhash.Blockhash, tx.Checkpoint.Blockhash)
	assert.Equal(t, rpc.Blockhash.LastValidBlockHeight, tx.Checkpoint.LastValidBlockHeight)

	compiled, err := tx.Compile()
	require.NoError(t, err)
	assert.True(t, compiled.Message.AccountKeys[0].Equals(from), "fee payer is the first account")
}

func TestNativeTransfer_InvalidRecipient(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	b := newBuilder(t, rpc)

	for _, to := range []string{"", "not-base58-0OIl", "abc"} {
		_, err := b.NativeTransfer(context.Background(), sender(t), to, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrInvalidAddress, "to=%q", to)
	}
	assert.Equal(t, 0, rpc.TotalCalls(), "validation precedes network reads")
}

func TestNativeTransfer_InvalidAmount(t *testing.T) {
	b := newBuilder(t, stub.NewRPCClient("https://a"))

	for _, amt := range []string{"0", "-1", "0.0000000001"} {
		_, err := b.NativeTransfer(context.Background(), sender(t), recipient, decimal.RequireFromString(amt))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount=%s", amt)
	}
}

func TestNativeTransfer_CheckpointFailurePropagates(t *testing.T) {
	a, b := stub.NewRPCClient("https://a"), stub.NewRPCClient("https://b")
	a.Err = &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
	b.Err = &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}

	builder := newBuilder(t, a, b)
	_, err := builder.NativeTransfer(context.Background(), sender(t), recipient, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
}

func TestTokenTransfer_CreatesMissingDestinationAccount(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	b := newBuilder(t, rpc)
	from := sender(t)

	tx, err := b.TokenTransfer(context.Background(), from, recipient, usdc, decimal.RequireFromString("2.5"))
	require.NoError(t, err)

	require.Len(t, tx.Instructions, 2)
	assert.True(t, tx.Instructions[0].ProgramID().Equals(solanago.SPLAssociatedTokenAccountProgramID),
		"account creation precedes the transfer")
	assert.True(t, tx.Instructions[1].ProgramID().Equals(solanago.TokenProgramID))
	assert.True(t, tx.CreatesDestinationAccount)
	assert.Equal(t, uint64(2_500_000), tx.Raw)

	// the creation is paid by the sender
	createAccounts := tx.Instructions[0].Accounts()
	require.NotEmpty(t, createAccounts)
	assert.True(t, createAccounts[0].PublicKey.Equals(from))
	assert.True(t, createAccounts[0].IsSigner)

	expected, _, err := solanago.FindAssociatedTokenAddress(solanago.MustPublicKeyFromBase58(recipient), solanago.MustPublicKeyFromBase58(usdcMint))
	require.NoError(t, err)
	assert.Equal(t, expected.String(), tx.DestinationAccount)

	_, err = tx.Compile()
	require.NoError(t, err)
}

func TestTokenTransfer_ExistingDestinationAccount(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	dest, err := solana.FindAssociatedTokenAddress(recipient, usdcMint)
	require.NoError(t, err)
	rpc.Accounts[dest] = &solana.AccountInfo{Owner: solana.TokenProgramID}

	b := newBuilder(t, rpc)
	tx, err := b.TokenTransfer(context.Background(), sender(t), recipient, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)

	require.Len(t, tx.Instructions, 1)
	assert.True(t, tx.Instructions[0].ProgramID().Equals(solanago.TokenProgramID))
	assert.False(t, tx.CreatesDestinationAccount)
}

func TestTokenTransfer_LookupFailureDoesNotAssumeMissing(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.SetMethodErr("getAccountInfo", &solana.HTTPStatusError{StatusCode: http.StatusForbidden})

	b := newBuilder(t, rpc)
	_, err := b.TokenTransfer(context.Background(), sender(t), recipient, usdc, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 0, rpc.CallCount("getLatestBlockhash"))
}

func TestTokenTransfer_TruncatesAmount(t *testing.T) {
	b := newBuilder(t, stub.NewRPCClient("https://a"))

	tx, err := b.TokenTransfer(context.Background(), sender(t), recipient, usdc, decimal.RequireFromString("1.2345679"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_234_567), tx.Raw)
}

func TestTokenTransfer_SourceOverride(t *testing.T) {
	b := newBuilder(t, stub.NewRPCClient("https://a"))
	source := "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

	tx, err := b.TokenTransfer(context.Background(), sender(t), recipient, usdc, decimal.NewFromInt(1), WithSourceAccount(source))
	require.NoError(t, err)
	assert.Equal(t, source, tx.SourceAccount)

	transfer := tx.Instructions[len(tx.Instructions)-1]
	assert.Equal(t, source, transfer.Accounts()[0].PublicKey.String())
}

func TestTokenTransfer_InvalidMint(t *testing.T) {
	b := newBuilder(t, stub.NewRPCClient("https://a"))
	bad := usdc
	bad.Mint = "nope"

	_, err := b.TokenTransfer(context.Background(), sender(t), recipient, bad, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}
