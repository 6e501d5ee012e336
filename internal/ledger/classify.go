package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/solana"
)

// ErrAllEndpointsFailed matches any ExhaustedError.
var ErrAllEndpointsFailed = errors.New("all endpoints failed")

// ErrAttemptTimeout is the failure recorded when an attempt outlives its timeout.
var ErrAttemptTimeout = errors.New("attempt timed out")

// Kind is the failure class of a single endpoint attempt.
type Kind int

const (
	KindOther Kind = iota
	KindForbidden
	KindRateLimited
	KindNetwork
	KindTimeout
	KindRPC
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRPC:
		return "rpc"
	default:
		return "other"
	}
}

// EndpointLevel reports whether the failure belongs to the endpoint rather
// than to the operation.
func (k Kind) EndpointLevel() bool {
	switch k {
	case KindForbidden, KindRateLimited, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// Classify determines the failure class of err.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var statusErr *solana.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusForbidden:
			return KindForbidden
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimited
		default:
			return KindNetwork
		}
	}

	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
			return KindRateLimited
		}
		return KindRPC
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}

	return KindOther
}

// ExhaustedError is returned when every endpoint of a network failed.
type ExhaustedError struct {
	Op       string
	Network  domain.Network
	Attempts int
	// Last is the last observed error; nil when no endpoint was attempted.
	Last error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Network, ErrAllEndpointsFailed)
	}
	return fmt.Sprintf("%s on %s: %v after %d attempts: %v", e.Op, e.Network, ErrAllEndpointsFailed, e.Attempts, e.Last)
}

// Unwrap exposes both ErrAllEndpointsFailed and the last error.
func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAllEndpointsFailed}
	}
	return []error{ErrAllEndpointsFailed, e.Last}
}

// LastKind returns the failure class of the last observed error.
func (e *ExhaustedError) LastKind() Kind {
	return Classify(e.Last)
}

// User-facing messages for exhausted endpoints.
const (
	MsgRateLimited = "endpoints rate-limited, configure a dedicated provider"
	MsgNetwork     = "network error, check connection"
	MsgUnavailable = "ledger unavailable, all endpoints failed"
)

// ToDomainError maps a ledger failure to the wallet error taxonomy.
// Errors that already carry a domain code are returned unchanged.
func ToDomainError(err error) error {
	if err == nil {
		return nil
	}
	if domain.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch Classify(err) {
	case KindForbidden, KindRateLimited:
		return domain.NewError(domain.CodeRateLimited, MsgRateLimited, err)
	case KindNetwork, KindTimeout:
		return domain.NewError(domain.CodeLedgerUnavailable, MsgNetwork, err)
	default:
		return domain.NewError(domain.CodeLedgerUnavailable, MsgUnavailable, err)
	}
}
