// Package txbuilder constructs unsigned native and token transfer
// transactions against a fresh ledger checkpoint. It only reads from the
// ledger; nothing is broadcast.
package txbuilder

import (
	"context"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/units"
)

// Kind names the transfer a transaction performs.
type Kind string

const (
	KindNativeTransfer Kind = "native_transfer"
	KindTokenTransfer  Kind = "token_transfer"
)

// UnsignedTransaction is an ordered instruction list with its fee payer and
// checkpoint, ready for signing.
type UnsignedTransaction struct {
	Kind         Kind
	Instructions []solanago.Instruction
	FeePayer     solanago.PublicKey
	Checkpoint   domain.Checkpoint

	From     string
	To       string
	Mint     string // empty for native transfers
	Amount   decimal.Decimal
	Raw      uint64
	Decimals uint8

	SourceAccount             string // token transfers only
	DestinationAccount        string // token transfers only
	CreatesDestinationAccount bool
}

// Compile assembles the wire transaction for signing.
func (u *UnsignedTransaction) Compile() (*solanago.Transaction, error) {
	hash, err := solanago.HashFromBase58(u.Checkpoint.Blockhash)
	if err != nil {
		return nil, domain.NewError(domain.CodeLedgerUnavailable, "ledger returned a malformed blockhash", err)
	}
	return solanago.NewTransaction(u.Instructions, hash, solanago.TransactionPayer(u.FeePayer))
}

// Options configures Builder.
type Options struct {
	Network domain.Network
	Logger  *zap.Logger
	Now     func() time.Time
}

// Builder constructs transfer transactions.
type Builder struct {
	client  *ledger.Client
	network domain.Network
	logger  *zap.Logger
	now     func() time.Time
}

// NewBuilder creates a Builder for one network.
func NewBuilder(client *ledger.Client, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{client: client, network: opts.Network, logger: opts.Logger, now: opts.Now}
}

// TransferOption adjusts a token transfer.
type TransferOption func(*transferConfig)

type transferConfig struct {
	source string
}

// WithSourceAccount debits the given token account instead of the sender's
// canonical account.
func WithSourceAccount(account string) TransferOption {
	return func(c *transferConfig) {
		c.source = account
	}
}

// NativeTransfer builds a transfer of amount native units from from to to.
func (b *Builder) NativeTransfer(ctx context.Context, from solanago.PublicKey, to string, amount decimal.Decimal) (*UnsignedTransaction, error) {
	recipient, err := parseAddress(to, "recipient")
	if err != nil {
		return nil, err
	}
	lamports, err := rawAmount(amount, domain.NativeDecimals)
	if err != nil {
		return nil, err
	}

	checkpoint, err := b.checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		Kind: KindNativeTransfer,
		Instructions: []solanago.Instruction{
			system.NewTransferInstruction(lamports, from, recipient).Build(),
		},
		FeePayer:   from,
		Checkpoint: checkpoint,
		From:       from.String(),
		To:         recipient.String(),
		Amount:     amount,
		Raw:        lamports,
		Decimals:   domain.NativeDecimals,
	}, nil
}

// TokenTransfer builds a TransferChecked of amount tokens to the recipient's
// canonical account, prepending its creation (paid by from) when the ledger
// reports it does not exist.
func (b *Builder) TokenTransfer(ctx context.Context, from solanago.PublicKey, to string, tok domain.TokenDescriptor, amount decimal.Decimal, opts ...TransferOption) (*UnsignedTransaction, error) {
	var cfg transferConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	recipient, err := parseAddress(to, "recipient")
	if err != nil {
		return nil, err
	}
	mint, err := parseAddress(tok.Mint, "token mint")
	if err != nil {
		return nil, err
	}
	raw, err := rawAmount(amount, tok.Decimals)
	if err != nil {
		return nil, err
	}

	source := cfg.source
	if source == "" {
		source, err = solana.FindAssociatedTokenAddress(from.String(), mint.String())
		if err != nil {
			return nil, domain.NewError(domain.CodeInvalidAddress, "cannot derive sender token account", err)
		}
	}
	sourceKey, err := parseAddress(source, "source token account")
	if err != nil {
		return nil, err
	}

	destination, err := solana.FindAssociatedTokenAddress(recipient.String(), mint.String())
	if err != nil {
		return nil, domain.NewError(domain.CodeInvalidAddress, "cannot derive recipient token account", err)
	}
	destinationKey := solanago.MustPublicKeyFromBase58(destination)

	exists, err := b.accountExists(ctx, destination)
	if err != nil {
		return nil, err
	}

	instructions := make([]solanago.Instruction, 0, 2)
	if !exists {
		b.logger.Info("recipient token account missing, adding create instruction",
			zap.String("recipient", recipient.String()),
			zap.String("account", destination),
			zap.String("mint", mint.String()))
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(from, recipient, mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(raw, tok.Decimals, sourceKey, mint, destinationKey, from, []solanago.PublicKey{}).Build())

	checkpoint, err := b.checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		Kind:                      KindTokenTransfer,
		Instructions:              instructions,
		FeePayer:                  from,
		Checkpoint:                checkpoint,
		From:                      from.String(),
		To:                        recipient.String(),
		Mint:                      mint.String(),
		Amount:                    amount,
		Raw:                       raw,
		Decimals:                  tok.Decimals,
		SourceAccount:             source,
		DestinationAccount:        destination,
		CreatesDestinationAccount: !exists,
	}, nil
}

// accountExists looks up an account. Only an explicit "does not exist" answer
// is false; a failed lookup is an error.
func (b *Builder) accountExists(ctx context.Context, address string) (bool, error) {
	info, err := ledger.Execute(ctx, b.client, b.network, "getAccountInfo",
		func(ctx context.Context, rpc solana.RPCClient) (*solana.AccountInfo, error) {
			return rpc.GetAccountInfo(ctx, address)
		})
	if err != nil {
		return false, ledger.ToDomainError(err)
	}
	return info != nil, nil
}

// checkpoint fetches the latest blockhash and its validity bound.
func (b *Builder) checkpoint(ctx context.Context) (domain.Checkpoint, error) {
	bh, err := ledger.Execute(ctx, b.client, b.network, "getLatestBlockhash",
		func(ctx context.Context, rpc solana.RPCClient) (*solana.LatestBlockhash, error) {
			return rpc.GetLatestBlockhash(ctx)
		})
	if err != nil {
		return domain.Checkpoint{}, ledger.ToDomainError(err)
	}
	return domain.Checkpoint{
		Blockhash:            bh.Blockhash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
		FetchedAt:            b.now(),
	}, nil
}

func parseAddress(address, what string) (solanago.PublicKey, error) {
	if _, err := solana.DecodeAddress(address); err != nil {
		return solanago.PublicKey{}, domain.NewError(domain.CodeInvalidAddress,
			what+" address is not a valid account", err)
	}
	return solanago.MustPublicKeyFromBase58(address), nil
}

// rawAmount converts amount, rejecting values that truncate to zero.
func rawAmount(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if !amount.IsPositive() {
		return 0, domain.Errorf(domain.CodeInvalidAmount, "amount must be greater than zero")
	}
	raw, err := units.ToRaw(amount, decimals)
	if err != nil {
		return 0, err
	}
	if raw == 0 {
		return 0, domain.Errorf(domain.CodeInvalidAmount,
			"amount %s is below the smallest unit (%d decimals)", amount.String(), decimals)
	}
	return raw, nil
}
