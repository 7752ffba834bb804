// Package trade settles externally confirmed swaps: each signature is
// validated against the ledger, turned into a volume estimate and applied to
// the symbiote exactly once. The trades.signature unique constraint is the
// real idempotency guarantee; the pre-check only short-circuits the common
// case.
package trade

import (
	"context"
	"fmt"
	"math"

	"symbiote/internal/apperr"
	"symbiote/internal/database"
	"symbiote/internal/inference"
	"symbiote/internal/solana"
)

// DefaultVolumeUSD is used when a transaction carries no usable token
// balance deltas.
const DefaultVolumeUSD = 5

// Store is the persistence surface settlement needs.
type Store interface {
	HasTrade(signature string) (bool, error)
	GetUser(walletAddress string) (*database.User, error)
	CreateTrade(walletAddress, signature string, volumeUSD float64, personality string) error
	CreateMemory(walletAddress, role, content string) error
}

// Ledger fetches confirmed transactions.
type Ledger interface {
	GetTransaction(ctx context.Context, signature string) (*solana.ConfirmedTransaction, error)
}

// Evolver reads and writes symbiote state on chain.
type Evolver interface {
	FetchState(ctx context.Context, mint string) (*solana.SymbioteState, error)
	ApplyEvolution(ctx context.Context, mint string, stats solana.Stats) (string, error)
}

// Inferrer derives the post-trade personality.
type Inferrer interface {
	InferPersonality(ctx context.Context, walletAddress string, volumeUSD float64, currentPersonality string) (inference.Personality, error)
}

type Settlement struct {
	store     Store
	ledger    Ledger
	evolver   Evolver
	inferrer  Inferrer
	minVolume float64

	// isUniqueViolation distinguishes the lost insert race from a storage
	// failure; defaults to the Postgres check.
	isUniqueViolation func(error) bool
}

func NewSettlement(store Store, ledger Ledger, evolver Evolver, inferrer Inferrer, minVolume float64) *Settlement {
	return &Settlement{
		store:             store,
		ledger:            ledger,
		evolver:           evolver,
		inferrer:          inferrer,
		minVolume:         minVolume,
		isUniqueViolation: database.IsUniqueViolation,
	}
}

// EvolvedState is the symbiote after a settled trade.
type EvolvedState struct {
	Mint        string `json:"mint"`
	Level       int    `json:"level"`
	XP          int64  `json:"xp"`
	Personality string `json:"personality"`
	URI         string `json:"uri,omitempty"`
	XPDelta     int64  `json:"xpDelta"`
}

// Result is the settlement outcome returned to the caller.
type Result struct {
	Signature string       `json:"signature"`
	VolumeUSD float64      `json:"tradeVolumeUsd"`
	Evolved   EvolvedState `json:"evolvedState"`
}

// Confirm settles one claimed swap signature for the wallet.
func (s *Settlement) Confirm(ctx context.Context, walletAddress, signature string) (*Result, error) {
	processed, err := s.store.HasTrade(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to check trade signature: %w", err)
	}
	if processed {
		return nil, apperr.Conflictf(apperr.CodeAlreadyProcessed, "trade signature already processed")
	}

	user, err := s.store.GetUser(walletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.SymbioteMint == "" {
		return nil, apperr.Validationf(apperr.CodeNoLinkedSymbiote, "wallet is not connected to a symbiote mint")
	}

	tx, err := s.ledger.GetTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	if !tx.Succeeded {
		return nil, apperr.Validationf(apperr.CodeOnChainFailure, "transaction failed on-chain")
	}
	if !tx.HasSigner(walletAddress) {
		return nil, apperr.Validationf(apperr.CodeSignerMismatch, "swap signer does not match authenticated wallet")
	}
	if !tx.InvokesProgram(solana.JupiterProgramID) {
		return nil, apperr.Validationf(apperr.CodeNotASwap, "not a Jupiter swap transaction")
	}

	volume := EstimateVolume(tx.PreTokenBalances, tx.PostTokenBalances)
	if volume < s.minVolume {
		return nil, apperr.Validationf(apperr.CodeBelowMinimumVolume, "trade volume below minimum threshold (%v)", s.minVolume)
	}

	// A symbiote that has never evolved may have no readable prior state.
	prior, err := s.evolver.FetchState(ctx, user.SymbioteMint)
	if err != nil && !apperr.HasCode(err, apperr.CodeUnknownSymbiote) {
		return nil, err
	}

	priorPersonality := "Neutral"
	var priorXP int64
	if prior != nil {
		priorPersonality = prior.Personality
		priorXP = prior.XP
	}

	personality, err := s.inferrer.InferPersonality(ctx, walletAddress, volume, priorPersonality)
	if err != nil {
		return nil, err
	}

	xpDelta := int64(math.Max(1, math.Round(volume)))
	newXP := priorXP + xpDelta
	newLevel := int(newXP/1000) + 1

	if _, err := s.evolver.ApplyEvolution(ctx, user.SymbioteMint, solana.Stats{
		Level:       uint16(newLevel),
		XP:          uint64(newXP),
		Personality: personality.Personality,
	}); err != nil {
		return nil, err
	}

	evolved := EvolvedState{
		Mint:        user.SymbioteMint,
		Level:       newLevel,
		XP:          newXP,
		Personality: personality.Personality,
		XPDelta:     xpDelta,
	}
	// Best-effort refetch so the response reflects the written account.
	if fresh, err := s.evolver.FetchState(ctx, user.SymbioteMint); err == nil && fresh != nil {
		evolved.Level = fresh.Level
		evolved.XP = fresh.XP
		evolved.Personality = fresh.Personality
		evolved.URI = fresh.URI
	}

	// Last step: the unique constraint converts a concurrent settlement of
	// the same signature into a conflict instead of a double evolution
	// record.
	if err := s.store.CreateTrade(walletAddress, signature, volume, personality.Personality); err != nil {
		if s.isUniqueViolation(err) {
			return nil, apperr.Conflictf(apperr.CodeAlreadyProcessed, "trade signature already processed")
		}
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	if err := s.store.CreateMemory(walletAddress, "system",
		fmt.Sprintf("Evolved symbiote to level %d, xp %d, personality %s", evolved.Level, evolved.XP, evolved.Personality)); err != nil {
		return nil, fmt.Errorf("failed to record memory: %w", err)
	}

	return &Result{
		Signature: signature,
		VolumeUSD: volume,
		Evolved:   evolved,
	}, nil
}

// EstimateVolume proxies trade size as the largest absolute balance change
// across the transaction's token accounts, keyed by (accountIndex, mint).
// Transactions without usable balance entries settle at the default volume.
func EstimateVolume(pre, post []solana.TokenBalance) float64 {
	if len(pre) == 0 || len(post) == 0 {
		return DefaultVolumeUSD
	}

	type balanceKey struct {
		accountIndex int
		mint         string
	}

	preAmounts := make(map[balanceKey]float64, len(pre))
	for _, b := range pre {
		preAmounts[balanceKey{b.AccountIndex, b.Mint}] = b.Amount()
	}

	var maxDelta float64
	for _, b := range post {
		delta := math.Abs(b.Amount() - preAmounts[balanceKey{b.AccountIndex, b.Mint}])
		if delta > maxDelta {
			maxDelta = delta
		}
	}

	if maxDelta == 0 {
		return DefaultVolumeUSD
	}
	return maxDelta
}
