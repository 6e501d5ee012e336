// Package wallet is the public surface of the wallet subsystem: key
// creation and import, balance reads, and native/token sends with a
// pre-flight balance check.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet/internal/balance"
	"solana-wallet/internal/domain"
	"solana-wallet/internal/events"
	"solana-wallet/internal/keys"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/storage"
	"solana-wallet/internal/submit"
	"solana-wallet/internal/txbuilder"
)

// Options configures Service.
type Options struct {
	Network domain.Network
	Tokens  *domain.TokenRegistry

	// DecimalsTTL bounds caching of ledger-resolved token precision.
	DecimalsTTL time.Duration

	// Submit configures the submitter; Network, Logger and Metrics are
	// filled from this struct.
	Submit submit.Options

	// Secrets is the optional key store used by SaveKey/LoadKey.
	Secrets storage.SecretStore
	// Events receives transfer notifications. Optional.
	Events events.Publisher

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Service implements the wallet operations for one network.
type Service struct {
	network    domain.Network
	tokens     *domain.TokenRegistry
	aggregator *balance.Aggregator
	builder    *txbuilder.Builder
	submitter  *submit.Submitter
	journal    storage.SubmissionStore
	secrets    storage.SecretStore
	events     events.Publisher
	logger     *zap.Logger
}

// NewService wires the balance, builder and submitter components onto client.
func NewService(client *ledger.Client, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	logger := opts.Logger.With(zap.String("network", string(opts.Network)))

	subOpts := opts.Submit
	subOpts.Network = opts.Network
	subOpts.Logger = logger
	subOpts.Metrics = opts.Metrics

	return &Service{
		network: opts.Network,
		tokens:  opts.Tokens,
		aggregator: balance.NewAggregator(client, balance.Options{
			Network:     opts.Network,
			Tokens:      opts.Tokens,
			DecimalsTTL: opts.DecimalsTTL,
			Logger:      logger,
			Metrics:     opts.Metrics,
		}),
		builder:   txbuilder.NewBuilder(client, txbuilder.Options{Network: opts.Network, Logger: logger}),
		submitter: submit.NewSubmitter(client, subOpts),
		journal:   subOpts.Journal,
		secrets:   opts.Secrets,
		events:    opts.Events,
		logger:    logger,
	}
}

// Network returns the network the service operates on.
func (s *Service) Network() domain.Network {
	return s.network
}

// Aggregator exposes the balance aggregator for background refresh.
func (s *Service) Aggregator() *balance.Aggregator {
	return s.aggregator
}

// CreateKeyMaterial generates a fresh keypair. It is not persisted.
func (s *Service) CreateKeyMaterial() (*keys.KeyMaterial, error) {
	key, err := keys.Generate()
	if err != nil {
		return nil, err
	}
	s.logger.Info("key material created", zap.Object("key", key))
	return key, nil
}

// ImportKeyMaterial decodes an encoded secret or a legacy 12-word phrase.
func (s *Service) ImportKeyMaterial(encoded string) (*keys.KeyMaterial, error) {
	key, err := keys.Import(encoded)
	if err != nil {
		return nil, err
	}
	if key.Format() == keys.FormatLegacyPhrase {
		s.logger.Warn("imported legacy phrase; this key is not recoverable by BIP-39 wallets",
			zap.Object("key", key))
	} else {
		s.logger.Info("key material imported", zap.Object("key", key))
	}
	return key, nil
}

// SaveKey hands the key's secret to the configured key store.
func (s *Service) SaveKey(ctx context.Context, key *keys.KeyMaterial) error {
	if s.secrets == nil {
		return errors.New("no key store configured")
	}
	secret, err := key.Secret()
	if err != nil {
		return err
	}
	defer wipe(secret)
	return s.secrets.StoreSecret(ctx, secret, key.Address())
}

// LoadKey reconstructs the stored key. Returns storage.ErrNotFound if none is stored.
func (s *Service) LoadKey(ctx context.Context) (*keys.KeyMaterial, error) {
	if s.secrets == nil {
		return nil, errors.New("no key store configured")
	}
	secret, err := s.secrets.LoadSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer wipe(secret)
	return keys.FromSecret(secret)
}

// GetNativeBalance returns the native balance; zero when unreadable.
func (s *Service) GetNativeBalance(ctx context.Context, address string) decimal.Decimal {
	return s.aggregator.NativeBalance(ctx, address)
}

// GetTokenBalance returns the formatted token balance; zero when unreadable.
func (s *Service) GetTokenBalance(ctx context.Context, address, mint string) string {
	return s.aggregator.TokenBalance(ctx, address, mint)
}

// Token resolves a symbol or mint to a descriptor. Unknown mints get their
// precision from the ledger.
func (s *Service) Token(ctx context.Context, symbolOrMint string) (domain.TokenDescriptor, error) {
	if tok, ok := s.tokens.BySymbol(s.network, symbolOrMint); ok {
		return tok, nil
	}
	if tok, ok := s.tokens.ByMint(s.network, symbolOrMint); ok {
		return tok, nil
	}
	if _, err := solanago.PublicKeyFromBase58(symbolOrMint); err != nil {
		return domain.TokenDescriptor{}, domain.Errorf(domain.CodeInvalidAddress,
			"%q is neither a known token symbol nor a valid mint address", symbolOrMint)
	}
	decimals, _ := s.aggregator.ResolveDecimals(ctx, symbolOrMint)
	return domain.TokenDescriptor{Mint: symbolOrMint, Decimals: decimals}, nil
}

// SendNative transfers amount native units. The result is non-nil whenever
// a transaction was built; err is non-nil exactly when it is Failed or was
// never sent.
func (s *Service) SendNative(ctx context.Context, from *keys.KeyMaterial, to string, amount decimal.Decimal) (*domain.SubmissionResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	unsigned, err := s.builder.NativeTransfer(ctx, from.PublicKey(), to, amount)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, unsigned, from, "SOL")
}

// SendToken transfers amount of tok after confirming the sender holds enough.
// An insufficient or unverifiable balance fails before anything is built.
func (s *Service) SendToken(ctx context.Context, from *keys.KeyMaterial, to string, tok domain.TokenDescriptor, amount decimal.Decimal) (*domain.SubmissionResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := solanago.PublicKeyFromBase58(to); err != nil {
		return nil, domain.NewError(domain.CodeInvalidAddress, fmt.Sprintf("%q is not a valid recipient address", to), err)
	}

	plan, err := s.preflight(ctx, from.Address(), tok, amount)
	if err != nil {
		s.logger.Info("token send rejected by balance check",
			zap.String("mint", tok.Mint),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	var opts []txbuilder.TransferOption
	if !plan.source.Canonical {
		opts = append(opts, txbuilder.WithSourceAccount(plan.source.Account))
	}
	unsigned, err := s.builder.TokenTransfer(ctx, from.PublicKey(), to, plan.token, amount, opts...)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, unsigned, from, tok.Mint)
}

// History returns the owner's journaled submissions, newest first.
func (s *Service) History(ctx context.Context, owner string, limit int) ([]*domain.SubmissionResult, error) {
	if s.journal == nil {
		return nil, errors.New("no submission journal configured")
	}
	return s.journal.ListByOwner(ctx, owner, limit)
}

func (s *Service) submit(ctx context.Context, unsigned *txbuilder.UnsignedTransaction, from *keys.KeyMaterial, asset string) (*domain.SubmissionResult, error) {
	result, err := s.submitter.Submit(ctx, unsigned, from)

	ev := events.Event{
		Type:      events.TypeTransferSubmitted,
		Network:   s.network,
		Owner:     from.Address(),
		Asset:     asset,
		Amount:    result.Amount,
		Signature: result.Signature,
		Status:    result.Status,
	}
	switch result.Status {
	case domain.StatusConfirmed:
		ev.Message = "Transfer confirmed"
	case domain.StatusUnconfirmedSent:
		ev.Message = "Transfer sent; confirmation pending, check the signature later"
	default:
		ev.Type = events.TypeTransferFailed
		ev.Message = domain.UserMessage(err)
	}
	s.events.Publish(ev)

	return result, err
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.Errorf(domain.CodeInvalidAmount, "amount must be greater than zero")
	}
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// label is the token's display name for messages.
func label(tok domain.TokenDescriptor) string {
	if tok.Symbol != "" {
		return tok.Symbol
	}
	if len(tok.Mint) > 8 {
		return tok.Mint[:4] + ".." + tok.Mint[len(tok.Mint)-4:]
	}
	return tok.Mint
}
