package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

// LoadKeypair resolves the backend evolution-authority keypair, preferring
// the base58-encoded secret over the keypair file.
func LoadKeypair(base58Secret, file string) (ed25519.PrivateKey, error) {
	if base58Secret != "" {
		raw, err := base58.Decode(base58Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base58 keypair: %w", err)
		}
		return privateKeyFromBytes(raw)
	}

	if strings.HasPrefix(file, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		file = filepath.Join(home, file[2:])
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("missing keypair: set SYMBIOTE_KEYPAIR_BASE58 or SYMBIOTE_KEYPAIR_FILE: %w", err)
	}

	// Solana keypair files hold a JSON array of byte values.
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid keypair file at %s: %w", file, err)
	}
	secret := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid keypair file at %s: byte value %d out of range", file, v)
		}
		secret[i] = byte(v)
	}
	return privateKeyFromBytes(secret)
}

func privateKeyFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("keypair must be %d or %d bytes, got %d", ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}

// KeypairAddress returns the base58 public key of a private key.
func KeypairAddress(key ed25519.PrivateKey) string {
	pub := key.Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}
