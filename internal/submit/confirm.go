package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/ledger"
	"solana-wallet/internal/solana"
)

// ErrBlockhashExpired is returned when the checkpoint's validity window
// passed without the signature landing; the transaction can no longer execute.
var ErrBlockhashExpired = errors.New("blockhash expired before the transaction landed")

// ErrConfirmTimeout is returned when confirmation did not settle in time.
var ErrConfirmTimeout = errors.New("confirmation timed out")

// Confirmer waits for a broadcast signature to settle.
//
// A returned status has reached confirmed commitment; its Err is the
// on-ledger execution error, if any. A returned error means the outcome is
// unknown, except ErrBlockhashExpired which means it will never land.
type Confirmer interface {
	Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*domain.SignatureStatus, error)
}

// PollingConfirmer polls getSignatureStatuses through the resilient client.
type PollingConfirmer struct {
	client   *ledger.Client
	network  domain.Network
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPollingConfirmer creates a PollingConfirmer.
func NewPollingConfirmer(client *ledger.Client, network domain.Network, interval, timeout time.Duration, logger *zap.Logger) *PollingConfirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingConfirmer{client: client, network: network, interval: interval, timeout: timeout, logger: logger}
}

// Confirm polls until the signature lands, fails on ledger, expires, or the
// confirm timeout elapses. Failed polls are retried on the next tick; the
// last failure is reported if the timeout is reached.
func (p *PollingConfirmer) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*domain.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := p.poll(ctx, signature)
		switch {
		case err != nil:
			lastErr = err
			p.logger.Debug("confirmation poll failed", zap.String("signature", signature), zap.Error(err))
		case status != nil && (status.Err != nil || status.Landed()):
			return status, nil
		default:
			lastErr = nil
			if lastValidBlockHeight > 0 && p.expired(ctx, lastValidBlockHeight) {
				// one last look: it may have landed right at the boundary
				if status, err := p.poll(ctx, signature); err == nil && status != nil && (status.Err != nil || status.Landed()) {
					return status, nil
				}
				return nil, ErrBlockhashExpired
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfirmTimeout, lastErr)
			}
			return nil, ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}

func (p *PollingConfirmer) poll(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	statuses, err := ledger.Execute(ctx, p.client, p.network, "getSignatureStatuses",
		func(ctx context.Context, rpc solana.RPCClient) ([]*solana.SignatureStatus, error) {
			return rpc.GetSignatureStatuses(ctx, []string{signature})
		})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, nil
	}
	st := statuses[0]
	return &domain.SignatureStatus{Slot: st.Slot, ConfirmationStatus: st.ConfirmationStatus, Err: st.Err}, nil
}

// expired reports whether the current block height is past the validity
// bound. A failed height read is treated as not expired.
func (p *PollingConfirmer) expired(ctx context.Context, lastValidBlockHeight uint64) bool {
	height, err := ledger.Execute(ctx, p.client, p.network, "getBlockHeight",
		func(ctx context.Context, rpc solana.RPCClient) (uint64, error) {
			return rpc.GetBlockHeight(ctx)
		})
	return err == nil && height > lastValidBlockHeight
}

// WSDialer opens a subscription client.
type WSDialer func(ctx context.Context, url string) (solana.WSClient, error)

// DefaultWSDialer dials with the gorilla websocket client.
func DefaultWSDialer(logger *zap.Logger) WSDialer {
	return func(ctx context.Context, url string) (solana.WSClient, error) {
		cfg := solana.DefaultWSConfig()
		cfg.Logger = logger
		return solana.NewWSClient(ctx, url, &cfg)
	}
}

// SubscriptionConfirmer waits on signatureSubscribe and falls back to its
// polling confirmer on any subscription failure or when Wait elapses.
type SubscriptionConfirmer struct {
	url      string
	dial     WSDialer
	wait     time.Duration
	fallback Confirmer
	logger   *zap.Logger
}

// NewSubscriptionConfirmer creates a SubscriptionConfirmer for the websocket url.
func NewSubscriptionConfirmer(url string, dial WSDialer, wait time.Duration, fallback Confirmer, logger *zap.Logger) *SubscriptionConfirmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = DefaultWSDialer(logger)
	}
	if wait <= 0 {
		wait = DefaultConfirmTimeout / 2
	}
	return &SubscriptionConfirmer{url: url, dial: dial, wait: wait, fallback: fallback, logger: logger}
}

// Confirm implements Confirmer.
func (s *SubscriptionConfirmer) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*domain.SignatureStatus, error) {
	status, err := s.subscribe(ctx, signature)
	if err == nil {
		return status, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.logger.Debug("subscription confirmation unavailable, polling",
		zap.String("signature", signature),
		zap.Error(err))
	return s.fallback.Confirm(ctx, signature, lastValidBlockHeight)
}

func (s *SubscriptionConfirmer) subscribe(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	ws, err := s.dial(ctx, s.url)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	ch, err := ws.SignatureSubscribe(ctx, signature)
	if err != nil {
		return nil, err
	}

	select {
	case notif, ok := <-ch:
		if !ok {
			return nil, solana.ErrWSClosed
		}
		return &domain.SignatureStatus{
			Slot:               notif.Slot,
			ConfirmationStatus: solana.CommitmentConfirmed,
			Err:                notif.Err,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
