package domain

import "time"

// Checkpoint is a recent blockhash together with its validity bound.
type Checkpoint struct {
	Blockhash            string
	LastValidBlockHeight uint64
	FetchedAt            time.Time
}

// SubmissionStatus is the terminal state of a submitted transfer.
type SubmissionStatus string

const (
	StatusConfirmed       SubmissionStatus = "confirmed"
	StatusUnconfirmedSent SubmissionStatus = "unconfirmed_sent"
	StatusFailed          SubmissionStatus = "failed"
)

// SubmissionResult is returned for every send attempt.
// Signature is non-empty for Confirmed and UnconfirmedSent.
type SubmissionResult struct {
	Signature string
	Status    SubmissionStatus
	Err       error // optional detail; for UnconfirmedSent carries ConfirmationUnknown

	Network     Network
	From        string
	To          string
	Mint        string // empty for native transfers
	Amount      string
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// Sent reports whether the ledger accepted the transaction.
func (r *SubmissionResult) Sent() bool {
	return r.Signature != "" && r.Status != StatusFailed
}

// ErrorDetail returns the error text or an empty string.
func (r *SubmissionResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// SignatureStatus is the ledger-reported state of a signature.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string // processed | confirmed | finalized
	Err                interface{}
}

// Landed reports whether the status has reached at least confirmed commitment.
func (s *SignatureStatus) Landed() bool {
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// BalanceSnapshot is one point of an owner's balance history.
type BalanceSnapshot struct {
	Network   Network
	Owner     string
	Asset     string // "SOL" or mint address
	Amount    string
	Decimals  uint8
	Degraded  bool // the read failed and Amount is the best-effort zero
	TakenAtMs int64
}
