package wallet

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/events"
	"solana-wallet/internal/keys"
	"solana-wallet/internal/ledger/ledgertest"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/solana/stub"
	"solana-wallet/internal/storage"
	"solana-wallet/internal/storage/memory"
	"solana-wallet/internal/submit"
)

const (
	usdcMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	recipient = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	extraAcct = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

var usdc = domain.TokenDescriptor{Symbol: "USDC", Mint: usdcMint, Decimals: 6}

type testEnv struct {
	rpc     *stub.RPCClient
	svc     *Service
	key     *keys.KeyMaterial
	journal *memory.SubmissionStore
	secrets *memory.SecretStore
	events  []events.Event
}

func newEnv(t *testing.T, stubs ...*stub.RPCClient) *testEnv {
	t.Helper()
	if len(stubs) == 0 {
		stubs = []*stub.RPCClient{stub.NewRPCClient("https://a")}
	}
	client := ledgertest.NewClient(t, domain.Devnet, time.Second, stubs...)

	registry := domain.NewTokenRegistry()
	registry.Add(domain.Devnet, usdc)

	env := &testEnv{
		rpc:     stubs[0],
		journal: memory.NewSubmissionStore(),
		secrets: memory.NewSecretStore(),
	}
	bus := events.NewBus(nil)
	bus.Subscribe(func(e events.Event) { env.events = append(env.events, e) })

	env.svc = NewService(client, Options{
		Network: domain.Devnet,
		Tokens:  registry,
		Submit: submit.Options{
			Confirmer: submit.NewPollingConfirmer(client, domain.Devnet, 5*time.Millisecond, 200*time.Millisecond, nil),
			Journal:   env.journal,
		},
		Secrets: env.secrets,
		Events:  bus,
	})

	key, err := env.svc.CreateKeyMaterial()
	require.NoError(t, err)
	t.Cleanup(key.Zero)
	env.key = key
	return env
}

func (e *testEnv) canonical(t *testing.T) string {
	t.Helper()
	ata, err := solana.FindAssociatedTokenAddress(e.key.Address(), usdcMint)
	require.NoError(t, err)
	return ata
}

func (e *testEnv) fund(pubkey string, raw uint64) {
	e.rpc.AddTokenAccount(solana.TokenAccount{
		Pubkey:      pubkey,
		Mint:        usdcMint,
		Owner:       e.key.Address(),
		TokenAmount: solana.TokenAmount{Amount: raw, Decimals: 6},
	})
}

// buildCalls counts the ledger reads that only transaction building performs.
func (e *testEnv) buildCalls() int {
	return e.rpc.CallCount("getLatestBlockhash") + e.rpc.CallCount("getAccountInfo")
}

func TestCreateKeyMaterial_FreshAddressHasZeroBalance(t *testing.T) {
	env := newEnv(t)

	got := env.svc.GetNativeBalance(context.Background(), env.key.Address())
	assert.True(t, got.IsZero(), "got %s", got)
}

func TestImportKeyMaterial(t *testing.T) {
	env := newEnv(t)

	secret, err := env.key.Secret()
	require.NoError(t, err)
	imported, err := env.svc.ImportKeyMaterial(`[` + joinBytes(secret) + `]`)
	require.NoError(t, err)
	assert.Equal(t, env.key.Address(), imported.Address())
	assert.Equal(t, keys.FormatJSONArray, imported.Format())

	_, err = env.svc.ImportKeyMaterial("definitely not a key")
	assert.ErrorIs(t, err, domain.ErrInvalidSecretFormat)
}

func joinBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

func TestSaveAndLoadKey(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	_, err := env.svc.LoadKey(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, env.svc.SaveKey(ctx, env.key))
	assert.Equal(t, env.key.Address(), env.secrets.PublicID())

	loaded, err := env.svc.LoadKey(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(env.key))
}

func TestGetTokenBalance(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 10_000_000)
	env.fund(extraAcct, 5_000_000)

	got := env.svc.GetTokenBalance(context.Background(), env.key.Address(), usdcMint)
	assert.Equal(t, "15.000000", got)
}

func TestSendNative(t *testing.T) {
	env := newEnv(t)
	env.rpc.AutoConfirm = true

	result, err := env.svc.SendNative(context.Background(), env.key, recipient, decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, result.Status)
	assert.NotEmpty(t, result.Signature)

	require.Len(t, env.events, 1)
	assert.Equal(t, events.TypeTransferSubmitted, env.events[0].Type)
	assert.Equal(t, result.Signature, env.events[0].Signature)

	history, err := env.svc.History(context.Background(), env.key.Address(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.Signature, history[0].Signature)
}

func TestSendNative_KeyWipedAfterSigning(t *testing.T) {
	rpc := stub.NewRPCClient("https://a")
	rpc.AutoConfirm = true
	client := ledgertest.NewClient(t, domain.Devnet, time.Second, rpc)

	var published []events.Event
	bus := events.NewBus(nil)
	bus.Subscribe(func(e events.Event) { published = append(published, e) })

	svc := NewService(client, Options{
		Network: domain.Devnet,
		Submit: submit.Options{
			Confirmer:        submit.NewPollingConfirmer(client, domain.Devnet, 5*time.Millisecond, 200*time.Millisecond, nil),
			ZeroKeyAfterSign: true,
		},
		Events: bus,
	})
	key, err := svc.CreateKeyMaterial()
	require.NoError(t, err)
	t.Cleanup(key.Zero)

	var zeroedAtSend bool
	rpc.OnSend = func(tx []byte) (string, error) {
		zeroedAtSend = key.Zeroed()
		return stub.FirstSignature(tx), nil
	}

	result, err := svc.SendNative(context.Background(), key, recipient, decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, result.Status)
	assert.True(t, zeroedAtSend)
	assert.True(t, key.Zeroed())

	require.Len(t, published, 1)
	assert.Equal(t, key.Address(), published[0].Owner)
}

func TestSendNative_InvalidAmount(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.SendNative(context.Background(), env.key, recipient, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Zero(t, env.rpc.TotalCalls())
}

func TestSendToken_CreatesRecipientAccount(t *testing.T) {
	env := newEnv(t)
	env.rpc.AutoConfirm = true
	env.fund(env.canonical(t), 10_000_000)

	result, err := env.svc.SendToken(context.Background(), env.key, recipient, usdc, decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, result.Status)
	assert.Equal(t, usdcMint, result.Mint)
	assert.Equal(t, 1, env.rpc.SentCount())
}

func TestSendToken_InsufficientBalanceNeverBuilds(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 10_000_000)

	_, err := env.svc.SendToken(context.Background(), env.key, recipient, usdc, decimal.RequireFromString("20"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Contains(t, domain.UserMessage(err), "USDC")

	assert.Zero(t, env.buildCalls(), "transaction building must not start")
	assert.Zero(t, env.rpc.SentCount())
	assert.Empty(t, env.events)
}

func TestSendToken_PreflightClassification(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv)
		want  *domain.Error
		msg   string
	}{
		{
			name:  "no token account",
			setup: func(*testing.T, *testEnv) {},
			want:  domain.ErrNoTokenAccount,
			msg:   "You don't have a USDC account",
		},
		{
			name: "zero balance",
			setup: func(t *testing.T, env *testEnv) {
				env.fund(env.canonical(t), 0)
			},
			want: domain.ErrZeroBalance,
			msg:  "You have a USDC account but it has zero balance",
		},
		{
			name: "enumeration unavailable",
			setup: func(t *testing.T, env *testEnv) {
				env.rpc.SetMethodErr("getTokenAccountsByOwner", &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable})
			},
			want: domain.ErrBalanceCheckUnavailable,
			msg:  "Could not verify your USDC balance",
		},
		{
			name: "enumeration unavailable and canonical short",
			setup: func(t *testing.T, env *testEnv) {
				env.fund(env.canonical(t), 3_000_000)
				env.fund(extraAcct, 8_000_000)
				env.rpc.SetMethodErr("getTokenAccountsByOwner", &solana.HTTPStatusError{StatusCode: http.StatusServiceUnavailable})
			},
			want: domain.ErrBalanceCheckUnavailable,
			msg:  "Could not verify your USDC balance",
		},
		{
			name: "split across accounts",
			setup: func(t *testing.T, env *testEnv) {
				env.fund(env.canonical(t), 3_000_000)
				env.fund(extraAcct, 3_000_000)
			},
			want: domain.ErrInsufficientBalance,
			msg:  "split across 2 accounts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			tt.setup(t, env)

			_, err := env.svc.SendToken(context.Background(), env.key, recipient, usdc, decimal.RequireFromString("5"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, domain.UserMessage(err), tt.msg)
			assert.Zero(t, env.buildCalls())
			assert.Zero(t, env.rpc.SentCount())
		})
	}
}

func TestSendToken_EnumerationFailureUsesCanonical(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 10_000_000)
	env.rpc.SetMethodErr("getTokenAccountsByOwner", &solana.HTTPStatusError{StatusCode: http.StatusTooManyRequests})

	plan, err := env.svc.preflight(context.Background(), env.key.Address(), usdc, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.Equal(t, env.canonical(t), plan.source.Account)
	assert.True(t, plan.source.Canonical)
	assert.True(t, decimal.RequireFromString("10").Equal(plan.available))
}

func TestSendToken_UsesNonCanonicalSource(t *testing.T) {
	env := newEnv(t)
	env.rpc.AutoConfirm = true
	env.fund(env.canonical(t), 1_000_000)
	env.fund(extraAcct, 8_000_000)

	plan, err := env.svc.preflight(context.Background(), env.key.Address(), usdc, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.Equal(t, extraAcct, plan.source.Account)
	assert.True(t, decimal.RequireFromString("9").Equal(plan.available))

	result, err := env.svc.SendToken(context.Background(), env.key, recipient, usdc, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, result.Status)
}

func TestSendToken_PrefersCanonicalSource(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 6_000_000)
	env.fund(extraAcct, 8_000_000)

	plan, err := env.svc.preflight(context.Background(), env.key.Address(), usdc, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.True(t, plan.source.Canonical)
	assert.Equal(t, env.canonical(t), plan.source.Account)
}

func TestSendToken_LedgerPrecisionWins(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 10_000_000)

	wrong := usdc
	wrong.Decimals = 9
	plan, err := env.svc.preflight(context.Background(), env.key.Address(), wrong, decimal.RequireFromString("1"))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), plan.token.Decimals)
}

func TestSendToken_InvalidRecipient(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.SendToken(context.Background(), env.key, "nope", usdc, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.Zero(t, env.rpc.TotalCalls())
}

func TestSendToken_UnconfirmedStillReturnsSignature(t *testing.T) {
	env := newEnv(t)
	env.fund(env.canonical(t), 10_000_000)
	env.rpc.SetMethodErr("getSignatureStatuses", errors.New("connection reset"))

	result, err := env.svc.SendToken(context.Background(), env.key, recipient, usdc, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnconfirmedSent, result.Status)
	assert.NotEmpty(t, result.Signature)

	require.Len(t, env.events, 1)
	assert.Equal(t, domain.StatusUnconfirmedSent, env.events[0].Status)
}

func TestToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	tok, err := env.svc.Token(ctx, "usdc")
	require.NoError(t, err)
	assert.Equal(t, usdcMint, tok.Mint)

	const otherMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	env.rpc.AddMint(otherMint, 4)
	tok, err = env.svc.Token(ctx, otherMint)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), tok.Decimals)

	_, err = env.svc.Token(ctx, "DOGE")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}
