// Package solana holds the thin ledger collaborators: a JSON-RPC client for
// confirmed transaction lookups and the symbiote pet program client used to
// read and evolve on-chain pet state.
package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known addresses consumed by the service.
const (
	JupiterProgramID       = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	TokenMetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	SOLMint                = "So11111111111111111111111111111111111111112"
	USDCMint               = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type PublicKey [32]byte

func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid base58 public key: %w", err)
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("public key must be 32 bytes, got %d", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// IsValidSignature reports whether s decodes to a 64-byte base58 signature.
func IsValidSignature(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 64
}

// FindProgramAddress derives the program address for the given seeds,
// walking the bump down from 255 until the candidate falls off the ed25519
// curve.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(programID[:])
		h.Write([]byte("ProgramDerivedAddress"))

		var candidate PublicKey
		copy(candidate[:], h.Sum(nil))
		if !isOnCurve(candidate[:]) {
			return candidate, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, fmt.Errorf("unable to find a viable program address bump")
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
