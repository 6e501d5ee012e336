// Package keys holds account keypairs and decodes stored secrets.
//
// KeyMaterial never persists itself; callers hand the secret bytes to a
// storage.SecretStore. Secrets are never included in String output or logs.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap/zapcore"

	"solana-wallet/internal/domain"
)

// Format names the encoding a secret was recovered from.
type Format string

const (
	FormatGenerated Format = "generated"
	FormatBase58    Format = "base58"
	FormatHex       Format = "hex"
	FormatBase64    Format = "base64"
	FormatJSONArray Format = "json_array"

	// FormatLegacyPhrase is a 12-word phrase hashed directly into a seed.
	// It is NOT BIP-39; keys imported this way cannot be recovered by
	// standards-compliant wallets from the same words.
	FormatLegacyPhrase Format = "legacy_phrase"
)

// ErrZeroed is returned when a wiped KeyMaterial is used.
var ErrZeroed = errors.New("key material has been zeroed")

// KeyMaterial is an ed25519 account keypair.
type KeyMaterial struct {
	priv   solana.PrivateKey
	pub    solana.PublicKey
	format Format
	zeroed bool
}

// Generate creates a fresh random keypair.
func Generate() (*KeyMaterial, error) {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeyMaterial{priv: priv, pub: priv.PublicKey(), format: FormatGenerated}, nil
}

// FromSecret reconstructs a keypair from raw secret bytes: either a 64-byte
// ed25519 private key (seed | public key) or a 32-byte seed. The input is copied.
func FromSecret(secret []byte) (*KeyMaterial, error) {
	return fromSecret(secret, FormatGenerated)
}

func fromSecret(secret []byte, format Format) (*KeyMaterial, error) {
	var priv ed25519.PrivateKey
	switch len(secret) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secret)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		// The stored public half must be derivable from the seed.
		if !bytes.Equal(priv[ed25519.SeedSize:], secret[ed25519.SeedSize:]) {
			wipe(priv)
			return nil, domain.Errorf(domain.CodeInvalidSecretFormat,
				"secret key does not match its public key")
		}
	default:
		return nil, domain.Errorf(domain.CodeInvalidSecretFormat,
			"secret key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
	}

	sk := solana.PrivateKey(priv)
	return &KeyMaterial{priv: sk, pub: sk.PublicKey(), format: format}, nil
}

// PublicKey returns the account public key.
func (k *KeyMaterial) PublicKey() solana.PublicKey {
	return k.pub
}

// Address returns the base58 account address.
func (k *KeyMaterial) Address() string {
	return k.pub.String()
}

// Format returns the encoding the key was recovered from.
func (k *KeyMaterial) Format() Format {
	return k.format
}

// Secret returns a copy of the 64-byte secret key for handing to a key store.
func (k *KeyMaterial) Secret() ([]byte, error) {
	if k.zeroed {
		return nil, ErrZeroed
	}
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out, nil
}

// Sign signs message with the secret key.
func (k *KeyMaterial) Sign(message []byte) (solana.Signature, error) {
	if k.zeroed {
		return solana.Signature{}, ErrZeroed
	}
	return k.priv.Sign(message)
}

// PrivateKeyFor returns the signing key when pub is this keypair's public key.
// It matches the signer lookup used by solana.Transaction.Sign.
func (k *KeyMaterial) PrivateKeyFor(pub solana.PublicKey) *solana.PrivateKey {
	if k.zeroed || !k.pub.Equals(pub) {
		return nil
	}
	return &k.priv
}

// Equal reports whether both keypairs hold the same secret.
func (k *KeyMaterial) Equal(other *KeyMaterial) bool {
	if k == nil || other == nil || k.zeroed || other.zeroed {
		return false
	}
	return subtle.ConstantTimeCompare(k.priv, other.priv) == 1
}

// Zero overwrites the secret bytes. The public key stays readable.
func (k *KeyMaterial) Zero() {
	if k == nil || k.zeroed {
		return
	}
	wipe(k.priv)
	k.zeroed = true
}

// Zeroed reports whether Zero has been called.
func (k *KeyMaterial) Zeroed() bool {
	return k.zeroed
}

// String never includes secret bytes.
func (k *KeyMaterial) String() string {
	return fmt.Sprintf("KeyMaterial(%s)", k.pub)
}

// MarshalLogObject implements zapcore.ObjectMarshaler with the public key only.
func (k *KeyMaterial) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("address", k.pub.String())
	enc.AddString("format", string(k.format))
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
