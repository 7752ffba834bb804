// Package game runs symbiote turns: wallet context in, one inferred move
// plus a profile update and an action log entry out. The same engine serves
// user-triggered turns and unattended autoplay ticks.
package game

import (
	"context"
	"encoding/json"
	"fmt"

	"symbiote/internal/apperr"
	"symbiote/internal/database"
	"symbiote/internal/inference"
	"symbiote/internal/jupiter"
	"symbiote/internal/solana"
)

const (
	historyLimit = 20
	memoryLimit  = 20
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetUser(walletAddress string) (*database.User, error)
	RecentMemory(walletAddress string, limit int) ([]database.MemoryEntry, error)
	CreateMemory(walletAddress, role, content string) error
	CreateSuggestion(walletAddress, riskProfile, personality, reaction, recommendation, quoteJSON string) error
	UpsertGameProfile(walletAddress string, patch database.ProfilePatch) (*database.GameProfile, error)
	CreateGameAction(action *database.GameAction) error
}

// Ledger provides wallet transaction history.
type Ledger interface {
	TradeHistory(ctx context.Context, walletAddress string, limit int) ([]solana.HistoryEntry, error)
}

// StateReader reads on-chain symbiote state.
type StateReader interface {
	FetchState(ctx context.Context, mint string) (*solana.SymbioteState, error)
}

// Inferrer is the model collaborator.
type Inferrer interface {
	InferTurn(ctx context.Context, walletAddress string, symbiote *solana.SymbioteState, history []solana.HistoryEntry, memory any) (inference.Turn, error)
	InferReading(ctx context.Context, history []solana.HistoryEntry, memory any) (inference.Reading, error)
}

// SwapBuilder assembles unsigned swap transactions.
type SwapBuilder interface {
	BuildSwapPlan(ctx context.Context, userPublicKey, inputMint, outputMint, amount string) (*jupiter.SwapPlan, error)
}

type Engine struct {
	store    Store
	ledger   Ledger
	reader   StateReader
	inferrer Inferrer
	swaps    SwapBuilder
}

func NewEngine(store Store, ledger Ledger, reader StateReader, inferrer Inferrer, swaps SwapBuilder) *Engine {
	return &Engine{
		store:    store,
		ledger:   ledger,
		reader:   reader,
		inferrer: inferrer,
		swaps:    swaps,
	}
}

// TurnResult is the outcome of one played turn.
type TurnResult struct {
	WalletAddress string                `json:"walletAddress"`
	SymbioteMint  string                `json:"symbioteMint"`
	Turn          inference.Turn        `json:"turn"`
	Profile       *database.GameProfile `json:"gameProfile"`
	SwapPlan      *jupiter.SwapPlan     `json:"swapPlan,omitempty"`
}

// RunTurn plays one turn for the wallet. When buildSwap is false (autoplay),
// no swap transaction is assembled even if the turn calls for a trade, so an
// unattended tick can never produce something waiting for a human signature.
func (e *Engine) RunTurn(ctx context.Context, walletAddress string, buildSwap bool) (*TurnResult, error) {
	user, err := e.store.GetUser(walletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.SymbioteMint == "" {
		return nil, apperr.Validationf(apperr.CodeNoLinkedSymbiote, "wallet is not connected to a symbiote mint")
	}

	history, err := e.ledger.TradeHistory(ctx, walletAddress, historyLimit)
	if err != nil {
		return nil, err
	}
	memory, err := e.store.RecentMemory(walletAddress, memoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}

	// The symbiote may not have on-chain state yet; the turn still plays.
	symbiote, err := e.reader.FetchState(ctx, user.SymbioteMint)
	if err != nil && !apperr.HasCode(err, apperr.CodeUnknownSymbiote) {
		return nil, err
	}

	turn, err := e.inferrer.InferTurn(ctx, walletAddress, symbiote, history, memory)
	if err != nil {
		return nil, err
	}

	var swapPlan *jupiter.SwapPlan
	if buildSwap && turn.RequiresTrade {
		swapPlan, err = e.swaps.BuildSwapPlan(ctx, walletAddress, turn.Trade.InputMint, turn.Trade.OutputMint, turn.Trade.Amount)
		if err != nil {
			return nil, err
		}
	}

	before, err := e.store.UpsertGameProfile(walletAddress, database.ProfilePatch{})
	if err != nil {
		return nil, fmt.Errorf("failed to load game profile: %w", err)
	}

	energyDelta := 3
	if turn.RequiresTrade {
		energyDelta = -8
	}
	nextEnergy := clamp(before.Energy+energyDelta, 0, 100)
	nextStreak := before.Streak + 1

	after, err := e.store.UpsertGameProfile(walletAddress, database.ProfilePatch{
		Archetype: &turn.Archetype,
		Streak:    &nextStreak,
		Energy:    &nextEnergy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update game profile: %w", err)
	}

	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn: %w", err)
	}
	if err := e.store.CreateMemory(walletAddress, "assistant", "GAME_TURN "+string(turnJSON)); err != nil {
		return nil, fmt.Errorf("failed to record memory: %w", err)
	}

	action := &database.GameAction{
		WalletAddress: walletAddress,
		SymbioteMint:  user.SymbioteMint,
		GameName:      turn.GameName,
		Objective:     turn.Objective,
		MoveText:      turn.MoveText,
		OutcomeText:   turn.OutcomeText,
	}
	if swapPlan != nil {
		action.TxBase64 = swapPlan.SwapTransactionBase64
	}
	if err := e.store.CreateGameAction(action); err != nil {
		return nil, fmt.Errorf("failed to record game action: %w", err)
	}

	return &TurnResult{
		WalletAddress: walletAddress,
		SymbioteMint:  user.SymbioteMint,
		Turn:          turn,
		Profile:       after,
		SwapPlan:      swapPlan,
	}, nil
}

// Suggestion is a behavior reading plus a ready-to-sign swap plan.
type Suggestion struct {
	WalletAddress string            `json:"walletAddress"`
	Reading       inference.Reading `json:"reading"`
	SwapPlan      *jupiter.SwapPlan `json:"swapPlan"`
}

// SuggestTrade reads the wallet's behavior and builds the recommended swap.
func (e *Engine) SuggestTrade(ctx context.Context, walletAddress string) (*Suggestion, error) {
	history, err := e.ledger.TradeHistory(ctx, walletAddress, historyLimit)
	if err != nil {
		return nil, err
	}
	memory, err := e.store.RecentMemory(walletAddress, 15)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}

	reading, err := e.inferrer.InferReading(ctx, history, memory)
	if err != nil {
		return nil, err
	}

	swapPlan, err := e.swaps.BuildSwapPlan(ctx, walletAddress,
		reading.Recommendation.InputMint, reading.Recommendation.OutputMint, reading.Recommendation.Amount)
	if err != nil {
		return nil, err
	}

	readingJSON, err := json.Marshal(reading)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading: %w", err)
	}
	if err := e.store.CreateMemory(walletAddress, "assistant", string(readingJSON)); err != nil {
		return nil, fmt.Errorf("failed to record memory: %w", err)
	}
	if err := e.store.CreateSuggestion(walletAddress, reading.RiskProfile, reading.Personality,
		reading.Reaction, reading.Recommendation.Text, string(swapPlan.Quote)); err != nil {
		return nil, fmt.Errorf("failed to record suggestion: %w", err)
	}

	return &Suggestion{
		WalletAddress: walletAddress,
		Reading:       reading,
		SwapPlan:      swapPlan,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
