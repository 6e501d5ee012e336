package keys

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/mr-tron/base58"

	"solana-wallet/internal/domain"
)

// LegacyPhraseWords is the word count recognised as a legacy phrase.
const LegacyPhraseWords = 12

// Import decodes an encoded secret. Accepted encodings, tried in order:
// a 12-word legacy phrase, a JSON byte array (Solana CLI keypair file),
// hex, base58 and base64 of either a 64-byte secret key or a 32-byte seed.
func Import(encoded string) (*KeyMaterial, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, domain.Errorf(domain.CodeInvalidSecretFormat, "secret is empty")
	}

	if words := strings.Fields(s); len(words) > 1 {
		if len(words) != LegacyPhraseWords {
			return nil, domain.Errorf(domain.CodeInvalidSecretFormat,
				"recovery phrase must have %d words, got %d", LegacyPhraseWords, len(words))
		}
		return FromLegacyPhrase(s)
	}

	if strings.HasPrefix(s, "[") {
		// []byte unmarshals from base64 strings, so decode via []int.
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, domain.NewError(domain.CodeInvalidSecretFormat, "secret key array is malformed", err)
		}
		arr := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, domain.Errorf(domain.CodeInvalidSecretFormat, "secret key array has out-of-range value %d", v)
			}
			arr[i] = byte(v)
		}
		defer wipe(arr)
		return fromSecret(arr, FormatJSONArray)
	}

	if isHexSecret(s) {
		raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err == nil {
			defer wipe(raw)
			return fromSecret(raw, FormatHex)
		}
	}

	if raw, err := base58.Decode(s); err == nil && validSecretLen(len(raw)) {
		defer wipe(raw)
		return fromSecret(raw, FormatBase58)
	}

	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && validSecretLen(len(raw)) {
		defer wipe(raw)
		return fromSecret(raw, FormatBase64)
	}

	return nil, domain.Errorf(domain.CodeInvalidSecretFormat,
		"secret is not a recognised key format (base58, base64, hex, key array or recovery phrase)")
}

// FromLegacyPhrase derives a keypair from the sha256 of the normalised phrase
// (lower-cased words joined by single spaces). This derivation is not BIP-39.
func FromLegacyPhrase(phrase string) (*KeyMaterial, error) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) != LegacyPhraseWords {
		return nil, domain.Errorf(domain.CodeInvalidSecretFormat,
			"recovery phrase must have %d words, got %d", LegacyPhraseWords, len(words))
	}
	seed := sha256.Sum256([]byte(strings.Join(words, " ")))
	defer wipe(seed[:])
	return fromSecret(seed[:], FormatLegacyPhrase)
}

func isHexSecret(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 && len(s) != 128 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

func validSecretLen(n int) bool {
	return n == 32 || n == 64
}
