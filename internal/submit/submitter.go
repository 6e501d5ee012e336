// Package submit signs, broadcasts and confirms transactions.
//
// A submission moves Built → Signed → Broadcast → {Confirmed | UnconfirmedSent
// | Failed}. Once the ledger has returned a signature it is never discarded:
// an inconclusive confirmation yields UnconfirmedSent, not Failed.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/keys"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/solana"
	"solana-wallet/internal/storage"
	"solana-wallet/internal/txbuilder"
)

// Defaults.
const (
	DefaultBroadcastMaxRetries = 3
	DefaultPollInterval        = 1 * time.Second
	DefaultConfirmTimeout      = 60 * time.Second
)

// Options configures Submitter.
type Options struct {
	Network domain.Network
	// BroadcastMaxRetries is passed to the node as sendTransaction maxRetries.
	BroadcastMaxRetries uint
	// Confirmer defaults to polling through the resilient client.
	Confirmer Confirmer
	// Journal records every broadcast submission. Optional.
	Journal storage.SubmissionStore
	// ZeroKeyAfterSign wipes the signing key inside Submit as soon as the
	// transaction is signed, before broadcast and confirmation.
	ZeroKeyAfterSign bool
	Logger           *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// Submitter drives a built transaction to a SubmissionResult.
type Submitter struct {
	client     *ledger.Client
	network    domain.Network
	maxRetries uint
	confirmer  Confirmer
	journal    storage.SubmissionStore
	zeroKey    bool
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewSubmitter creates a Submitter.
func NewSubmitter(client *ledger.Client, opts Options) *Submitter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BroadcastMaxRetries == 0 {
		opts.BroadcastMaxRetries = DefaultBroadcastMaxRetries
	}
	if opts.Confirmer == nil {
		opts.Confirmer = NewPollingConfirmer(client, opts.Network, DefaultPollInterval, DefaultConfirmTimeout, opts.Logger)
	}
	return &Submitter{
		client:     client,
		network:    opts.Network,
		maxRetries: opts.BroadcastMaxRetries,
		confirmer:  opts.Confirmer,
		journal:    opts.Journal,
		zeroKey:    opts.ZeroKeyAfterSign,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// SignedTransaction is a compiled, signed transaction and its wire bytes.
type SignedTransaction struct {
	Unsigned  *txbuilder.UnsignedTransaction
	Tx        *solanago.Transaction
	Signature string
	Wire      []byte
}

// Sign compiles and signs the transaction with key. No network access.
func (s *Submitter) Sign(unsigned *txbuilder.UnsignedTransaction, key *keys.KeyMaterial) (*SignedTransaction, error) {
	if key.Zeroed() {
		return nil, keys.ErrZeroed
	}
	if !key.PublicKey().Equals(unsigned.FeePayer) {
		return nil, fmt.Errorf("signing key %s is not the fee payer %s", key.Address(), unsigned.FeePayer)
	}

	tx, err := unsigned.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}
	if _, err := tx.Sign(key.PrivateKeyFor); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	return &SignedTransaction{
		Unsigned:  unsigned,
		Tx:        tx,
		Signature: tx.Signatures[0].String(),
		Wire:      wire,
	}, nil
}

// Broadcast submits the signed bytes with preflight simulation. The same
// bytes are safe to resend to every endpoint; the ledger deduplicates by
// signature.
func (s *Submitter) Broadcast(ctx context.Context, signed *SignedTransaction) (string, error) {
	if err := s.checkExpiry(ctx, signed.Unsigned.Checkpoint); err != nil {
		return "", err
	}

	retries := s.maxRetries
	opts := solana.SendOptions{
		SkipPreflight:       false,
		PreflightCommitment: solana.CommitmentConfirmed,
		MaxRetries:          &retries,
	}

	signature, err := ledger.Execute(ctx, s.client, s.network, "sendTransaction",
		func(ctx context.Context, rpc solana.RPCClient) (string, error) {
			return rpc.SendTransaction(ctx, signed.Wire, opts)
		})
	if err != nil {
		return "", classifyBroadcast(err)
	}

	if signature != signed.Signature {
		s.logger.Warn("ledger returned a different signature",
			zap.String("expected", signed.Signature),
			zap.String("returned", signature))
	}
	return signature, nil
}

// checkExpiry fails when the checkpoint's validity window has already passed.
// An unreadable block height is not treated as expiry; preflight catches it.
func (s *Submitter) checkExpiry(ctx context.Context, cp domain.Checkpoint) error {
	if cp.LastValidBlockHeight == 0 {
		return nil
	}
	height, err := ledger.Execute(ctx, s.client, s.network, "getBlockHeight",
		func(ctx context.Context, rpc solana.RPCClient) (uint64, error) {
			return rpc.GetBlockHeight(ctx)
		})
	if err != nil {
		s.logger.Debug("block height unavailable, skipping expiry check", zap.Error(err))
		return nil
	}
	if height > cp.LastValidBlockHeight {
		return domain.Errorf(domain.CodeTransactionExpired,
			"transaction expired before broadcast (block height %d > %d), please retry", height, cp.LastValidBlockHeight)
	}
	return nil
}

// classifyBroadcast maps a broadcast failure to the error taxonomy.
func classifyBroadcast(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if solana.IsBlockhashNotFound(err) {
		return domain.NewError(domain.CodeTransactionExpired, "transaction expired before it was accepted, please retry", err)
	}
	switch ledger.Classify(err) {
	case ledger.KindForbidden, ledger.KindRateLimited:
		return domain.NewError(domain.CodeRateLimited, ledger.MsgRateLimited, err)
	case ledger.KindNetwork, ledger.KindTimeout:
		return domain.NewError(domain.CodeLedgerUnavailable, ledger.MsgNetwork, err)
	}

	msg := "broadcast failed"
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		msg = "broadcast failed: " + rpcErr.Message
	}
	return domain.NewError(domain.CodeBroadcastFailed, msg, err)
}

// Confirm settles a broadcast signature. It never returns Failed for an
// inconclusive check.
func (s *Submitter) Confirm(ctx context.Context, signature string, cp domain.Checkpoint) (domain.SubmissionStatus, error) {
	status, err := s.confirmer.Confirm(ctx, signature, cp.LastValidBlockHeight)
	switch {
	case errors.Is(err, ErrBlockhashExpired):
		return domain.StatusFailed, domain.NewError(domain.CodeTransactionExpired,
			"transaction was not included before its blockhash expired", err)
	case err != nil:
		return domain.StatusUnconfirmedSent, domain.NewError(domain.CodeConfirmationUnknown,
			"transaction sent but confirmation could not be checked; verify it by signature", err)
	case status.Err != nil:
		return domain.StatusFailed, domain.NewError(domain.CodeBroadcastFailed,
			fmt.Sprintf("transaction failed on ledger: %v", status.Err), nil)
	default:
		return domain.StatusConfirmed, nil
	}
}

// Submit signs, broadcasts and confirms unsigned. The returned error is
// non-nil exactly when the result is Failed; the result is never nil. A
// Failed result carries a signature when the broadcast outcome is unknown.
func (s *Submitter) Submit(ctx context.Context, unsigned *txbuilder.UnsignedTransaction, key *keys.KeyMaterial) (*domain.SubmissionResult, error) {
	result := &domain.SubmissionResult{
		Network:     s.network,
		From:        unsigned.From,
		To:          unsigned.To,
		Mint:        unsigned.Mint,
		Amount:      unsigned.Amount.String(),
		SubmittedAt: s.now(),
	}
	fail := func(err error) (*domain.SubmissionResult, error) {
		result.Status = domain.StatusFailed
		result.Err = err
		result.UpdatedAt = s.now()
		s.metrics.RecordSubmission(string(s.network), string(result.Status))
		return result, err
	}

	signed, err := s.Sign(unsigned, key)
	if s.zeroKey {
		key.Zero()
	}
	if err != nil {
		return fail(err)
	}

	signature, err := s.Broadcast(ctx, signed)
	if err != nil {
		s.logger.Warn("broadcast failed",
			zap.String("signature", signed.Signature),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		// A timed-out or dropped send may still have reached the ledger;
		// the caller needs the signature to check before sending again.
		if domain.CodeOf(err) == domain.CodeLedgerUnavailable {
			result.Signature = signed.Signature
		}
		return fail(err)
	}

	result.Signature = signature
	result.Status = domain.StatusUnconfirmedSent
	result.UpdatedAt = s.now()
	s.journalInsert(ctx, result)
	s.logger.Info("transaction broadcast",
		zap.String("signature", signature),
		zap.String("kind", string(unsigned.Kind)),
		zap.String("to", unsigned.To))

	status, cerr := s.Confirm(ctx, signature, unsigned.Checkpoint)
	result.Status = status
	result.Err = cerr
	result.UpdatedAt = s.now()
	s.journalUpdate(ctx, result)
	s.metrics.RecordSubmission(string(s.network), string(status))

	if status == domain.StatusFailed {
		s.logger.Warn("transaction failed after broadcast", zap.String("signature", signature), zap.Error(cerr))
		return result, cerr
	}
	if status == domain.StatusUnconfirmedSent {
		s.logger.Warn("transaction sent, confirmation unknown", zap.String("signature", signature), zap.Error(cerr))
	}
	return result, nil
}

func (s *Submitter) journalInsert(ctx context.Context, r *domain.SubmissionResult) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Insert(ctx, r); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.logger.Warn("journal insert failed", zap.String("signature", r.Signature), zap.Error(err))
	}
}

func (s *Submitter) journalUpdate(ctx context.Context, r *domain.SubmissionResult) {
	if s.journal == nil {
		return
	}
	// the caller's context may already be done; the outcome must still be recorded
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.journal.UpdateStatus(ctx, r.Signature, r.Status, r.Err, r.UpdatedAt); err != nil {
		s.logger.Warn("journal update failed", zap.String("signature", r.Signature), zap.Error(err))
	}
}
