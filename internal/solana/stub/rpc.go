// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"solana-wallet/internal/solana"
)

// ErrNotFound is returned when a requested record is not in the stub store.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing. Zero values are usable
// after NewRPCClient; exported maps may be filled directly.
type RPCClient struct {
	mu sync.Mutex

	URL           string
	Balances      map[string]uint64
	Accounts      map[string]*solana.AccountInfo
	TokenAccounts map[string][]solana.TokenAccount // keyed by owner
	TokenBalances map[string]*solana.TokenAmount   // keyed by token account
	Statuses      map[string]*solana.SignatureStatus
	Blockhash     solana.LatestBlockhash
	BlockHeight   uint64

	// AutoConfirm marks every sent transaction as confirmed.
	AutoConfirm bool
	// OnSend overrides signature assignment for SendTransaction.
	OnSend func(tx []byte) (string, error)

	// Err is returned by every method when set; MethodErrs by individual methods.
	Err        error
	MethodErrs map[string]error
	// Delay is slept (honouring ctx) before each call.
	Delay time.Duration

	Sent  [][]byte
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		URL:           url,
		Balances:      make(map[string]uint64),
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenAccounts: make(map[string][]solana.TokenAccount),
		TokenBalances: make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		MethodErrs:    make(map[string]error),
		Calls:         make(map[string]int),
		Blockhash: solana.LatestBlockhash{
			Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 1150,
			Slot:                 1000,
		},
		BlockHeight: 1000,
	}
}

// begin records a call and returns the injected error, if any.
func (c *RPCClient) begin(ctx context.Context, method string) error {
	c.mu.Lock()
	c.Calls[method]++
	delay := c.Delay
	err := c.Err
	if e, ok := c.MethodErrs[method]; ok && e != nil {
		err = e
	}
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// CallCount returns how many times method was invoked.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (c *RPCClient) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.Calls {
		n += v
	}
	return n
}

// SetMethodErr injects err for method.
func (c *RPCClient) SetMethodErr(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MethodErrs[method] = err
}

// AddTokenAccount registers a token account under its owner.
func (c *RPCClient) AddTokenAccount(acct solana.TokenAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenAccounts[acct.Owner] = append(c.TokenAccounts[acct.Owner], acct)
	amount := acct.TokenAmount
	c.TokenBalances[acct.Pubkey] = &amount
	c.Accounts[acct.Pubkey] = &solana.AccountInfo{Owner: solana.TokenProgramID, Lamports: 2039280}
}

// AddMint registers a mint account with the given precision.
func (c *RPCClient) AddMint(mint string, decimals uint8) {
	data := make([]byte, 82)
	data[44] = decimals
	data[45] = 1
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[mint] = &solana.AccountInfo{
		Owner:    solana.TokenProgramID,
		Lamports: 1461600,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// SentCount returns how many transactions were submitted.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// Endpoint returns the stub URL.
func (c *RPCClient) Endpoint() string {
	return c.URL
}

// GetBalance returns the stored lamport balance, zero if unknown.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	if err := c.begin(ctx, "getBalance"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[address], nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (*solana.AccountInfo, error) {
	if err := c.begin(ctx, "getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.Accounts[address]
	if !ok {
		return nil, nil
	}
	infoCopy := *info
	return &infoCopy, nil
}

// GetTokenAccountBalance returns the stored token balance.
func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, account string) (*solana.TokenAmount, error) {
	if err := c.begin(ctx, "getTokenAccountBalance"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.TokenBalances[account]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	amountCopy := *amount
	return &amountCopy, nil
}

// GetTokenAccountsByOwner returns the owner's stored accounts matching filter.
func (c *RPCClient) GetTokenAccountsByOwner(ctx context.Context, owner string, filter solana.TokenAccountsFilter) ([]solana.TokenAccount, error) {
	if err := c.begin(ctx, "getTokenAccountsByOwner"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []solana.TokenAccount
	for _, acct := range c.TokenAccounts[owner] {
		if filter.Mint != "" && acct.Mint != filter.Mint {
			continue
		}
		out = append(out, acct)
	}
	return out, nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (*solana.LatestBlockhash, error) {
	if err := c.begin(ctx, "getLatestBlockhash"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	bh := c.Blockhash
	return &bh, nil
}

// GetBlockHeight returns the configured block height.
func (c *RPCClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	if err := c.begin(ctx, "getBlockHeight"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BlockHeight, nil
}

// SendTransaction records tx and returns its first signature.
func (c *RPCClient) SendTransaction(ctx context.Context, tx []byte, _ solana.SendOptions) (string, error) {
	if err := c.begin(ctx, "sendTransaction"); err != nil {
		return "", err
	}

	var sig string
	if c.OnSend != nil {
		s, err := c.OnSend(tx)
		if err != nil {
			return "", err
		}
		sig = s
	} else {
		sig = FirstSignature(tx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	if c.AutoConfirm {
		c.Statuses[sig] = &solana.SignatureStatus{Slot: c.Blockhash.Slot + 1, ConfirmationStatus: solana.CommitmentConfirmed}
	}
	return sig, nil
}

// GetSignatureStatuses returns stored statuses.
func (c *RPCClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	if err := c.begin(ctx, "getSignatureStatuses"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			stCopy := *st
			out[i] = &stCopy
		}
	}
	return out, nil
}

// FirstSignature returns the base58 first signature of a wire-format
// transaction (compact-u16 count followed by 64-byte signatures).
func FirstSignature(tx []byte) string {
	if len(tx) < 65 || tx[0] == 0 {
		return ""
	}
	return base58.Encode(tx[1:65])
}

var _ solana.RPCClient = (*RPCClient)(nil)
