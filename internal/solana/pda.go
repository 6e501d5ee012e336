package solana

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program IDs.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbd2wQ2NwNxoqDvTFxB4wDcnrnXAKznBD5AP"
)

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodeAddress decodes a base58 account address and checks its length.
func DecodeAddress(address string) ([]byte, error) {
	b, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", address, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("address %q has %d bytes, want 32", address, len(b))
	}
	return b, nil
}

// FindProgramAddress derives a program derived address: the first bump,
// searching down from 255, whose sha256(seeds | bump | programID |
// "ProgramDerivedAddress") lies off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID []byte) (string, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}

	return "", 0, ErrNoViableBump
}

// FindAssociatedTokenAddress derives the canonical token account for (owner, mint).
func FindAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerBytes, err := DecodeAddress(owner)
	if err != nil {
		return "", err
	}
	mintBytes, err := DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	tokenProgram, _ := base58.Decode(TokenProgramID)
	ataProgram, _ := base58.Decode(AssociatedTokenProgramID)

	addr, _, err := FindProgramAddress([][]byte{ownerBytes, tokenProgram, mintBytes}, ataProgram)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// Mint account layout offsets:
// mintAuthority option(36) | supply u64(8) | decimals u8(1) | isInitialized(1) | freezeAuthority option(36)
const (
	mintAccountSize    = 82
	mintDecimalsOffset = 44
)

// ParseMintDecimals extracts the decimal precision from base64 mint account data.
func ParseMintDecimals(data string) (uint8, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return 0, fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < mintAccountSize {
		return 0, fmt.Errorf("mint data too short: %d", len(decoded))
	}
	return decoded[mintDecimalsOffset], nil
}

// ParsedTokenAccount is the fixed prefix of an SPL token account.
type ParsedTokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
}

// ParseTokenAccount parses base64 SPL token account data.
// Token account layout: mint(32) | owner(32) | amount(8) | ...
func ParseTokenAccount(data string) (*ParsedTokenAccount, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode token account data: %w", err)
	}
	if len(decoded) < 72 {
		return nil, fmt.Errorf("token account data too short: %d", len(decoded))
	}
	return &ParsedTokenAccount{
		Mint:   base58.Encode(decoded[:32]),
		Owner:  base58.Encode(decoded[32:64]),
		Amount: binary.LittleEndian.Uint64(decoded[64:72]),
	}, nil
}
