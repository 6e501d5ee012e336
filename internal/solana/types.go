package solana

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// TokenAmount is a raw token balance with its precision.
type TokenAmount struct {
	Amount         uint64
	Decimals       uint8
	UIAmountString string
}

// TokenAccount is a parsed SPL token account.
type TokenAccount struct {
	Pubkey string
	Mint   string
	Owner  string
	TokenAmount
}

// TokenAccountsFilter selects accounts for getTokenAccountsByOwner.
// Exactly one of Mint or ProgramID should be set.
type TokenAccountsFilter struct {
	Mint      string
	ProgramID string
}

// LatestBlockhash from getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
	Slot                 uint64
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus string
}
