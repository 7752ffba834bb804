package game

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"symbiote/internal/apperr"
	"symbiote/internal/database"
	"symbiote/internal/inference"
	"symbiote/internal/jupiter"
	"symbiote/internal/solana"
)

const (
	testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testMint   = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

type fakeEngineStore struct {
	user        *database.User
	profile     *database.GameProfile
	memories    []database.MemoryEntry
	suggestions int
	actions     []*database.GameAction
}

func newFakeEngineStore() *fakeEngineStore {
	return &fakeEngineStore{
		user: &database.User{WalletAddress: testWallet, SymbioteMint: testMint},
	}
}

func (s *fakeEngineStore) GetUser(walletAddress string) (*database.User, error) {
	return s.user, nil
}

func (s *fakeEngineStore) RecentMemory(walletAddress string, limit int) ([]database.MemoryEntry, error) {
	return s.memories, nil
}

func (s *fakeEngineStore) CreateMemory(walletAddress, role, content string) error {
	s.memories = append(s.memories, database.MemoryEntry{
		WalletAddress: walletAddress,
		Role:          role,
		Content:       content,
	})
	return nil
}

func (s *fakeEngineStore) CreateSuggestion(walletAddress, riskProfile, personality, reaction, recommendation, quoteJSON string) error {
	s.suggestions++
	return nil
}

func (s *fakeEngineStore) UpsertGameProfile(walletAddress string, patch database.ProfilePatch) (*database.GameProfile, error) {
	if s.profile == nil {
		s.profile = &database.GameProfile{
			WalletAddress:   walletAddress,
			Mode:            "Agentic",
			Archetype:       "Explorer",
			Energy:          100,
			TickIntervalSec: 300,
		}
	}
	if patch.Mode != nil {
		s.profile.Mode = *patch.Mode
	}
	if patch.Archetype != nil {
		s.profile.Archetype = *patch.Archetype
	}
	if patch.Streak != nil {
		s.profile.Streak = *patch.Streak
	}
	if patch.Energy != nil {
		s.profile.Energy = *patch.Energy
	}
	if patch.AutoPlay != nil {
		s.profile.AutoPlay = *patch.AutoPlay
	}
	if patch.TickIntervalSec != nil {
		s.profile.TickIntervalSec = *patch.TickIntervalSec
	}
	snapshot := *s.profile
	return &snapshot, nil
}

func (s *fakeEngineStore) CreateGameAction(action *database.GameAction) error {
	s.actions = append(s.actions, action)
	return nil
}

type fakeHistoryLedger struct {
	history []solana.HistoryEntry
}

func (l *fakeHistoryLedger) TradeHistory(ctx context.Context, walletAddress string, limit int) ([]solana.HistoryEntry, error) {
	return l.history, nil
}

type fakeStateReader struct {
	state *solana.SymbioteState
	err   error
}

func (r *fakeStateReader) FetchState(ctx context.Context, mint string) (*solana.SymbioteState, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.state, nil
}

type fakeTurnInferrer struct {
	turn    inference.Turn
	reading inference.Reading
}

func (i *fakeTurnInferrer) InferTurn(ctx context.Context, walletAddress string, symbiote *solana.SymbioteState, history []solana.HistoryEntry, memory any) (inference.Turn, error) {
	return i.turn, nil
}

func (i *fakeTurnInferrer) InferReading(ctx context.Context, history []solana.HistoryEntry, memory any) (inference.Reading, error) {
	return i.reading, nil
}

type fakeSwapBuilder struct {
	calls int
	plan  *jupiter.SwapPlan
}

func (b *fakeSwapBuilder) BuildSwapPlan(ctx context.Context, userPublicKey, inputMint, outputMint, amount string) (*jupiter.SwapPlan, error) {
	b.calls++
	return b.plan, nil
}

func tradingTurn() inference.Turn {
	return inference.Turn{
		GameName:      "Liquidity Maze",
		Objective:     "Escape the drawdown",
		MoveText:      "Swaps into stables",
		OutcomeText:   "Made it through",
		Archetype:     "Strategist",
		RequiresTrade: true,
		Trade: inference.TradeIntent{
			Text:       "Rotate into USDC",
			InputMint:  solana.SOLMint,
			OutputMint: solana.USDCMint,
			Amount:     "10000000",
		},
	}
}

func newTestEngine(store *fakeEngineStore, inferrer *fakeTurnInferrer, swaps *fakeSwapBuilder) *Engine {
	return NewEngine(store, &fakeHistoryLedger{}, &fakeStateReader{}, inferrer, swaps)
}

func TestRunTurnWithSwap(t *testing.T) {
	store := newFakeEngineStore()
	swaps := &fakeSwapBuilder{plan: &jupiter.SwapPlan{
		Quote:                 json.RawMessage(`{"inAmount":"10000000"}`),
		SwapTransactionBase64: "c3dhcA==",
	}}
	engine := newTestEngine(store, &fakeTurnInferrer{turn: tradingTurn()}, swaps)

	result, err := engine.RunTurn(context.Background(), testWallet, true)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if result.SwapPlan == nil {
		t.Fatal("trading turn should carry a swap plan")
	}
	if swaps.calls != 1 {
		t.Errorf("swap builder calls = %d, want 1", swaps.calls)
	}
	if result.Profile.Archetype != "Strategist" {
		t.Errorf("archetype = %q, want Strategist", result.Profile.Archetype)
	}
	if result.Profile.Streak != 1 {
		t.Errorf("streak = %d, want 1", result.Profile.Streak)
	}
	// Trading turns cost energy.
	if result.Profile.Energy != 92 {
		t.Errorf("energy = %d, want 92", result.Profile.Energy)
	}
	if len(store.actions) != 1 {
		t.Fatalf("game actions = %d, want 1", len(store.actions))
	}
	if store.actions[0].TxBase64 != "c3dhcA==" {
		t.Errorf("action tx = %q, want the built swap", store.actions[0].TxBase64)
	}
}

func TestRunTurnUnattendedNeverBuildsSwap(t *testing.T) {
	store := newFakeEngineStore()
	swaps := &fakeSwapBuilder{}
	engine := newTestEngine(store, &fakeTurnInferrer{turn: tradingTurn()}, swaps)

	result, err := engine.RunTurn(context.Background(), testWallet, false)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if swaps.calls != 0 {
		t.Errorf("swap builder calls = %d, want 0 for an unattended turn", swaps.calls)
	}
	if result.SwapPlan != nil {
		t.Error("unattended turn must not return a swap plan")
	}
	if len(store.actions) != 1 || store.actions[0].TxBase64 != "" {
		t.Error("unattended action must carry no transaction")
	}
}

func TestRunTurnRestfulTurnGainsEnergy(t *testing.T) {
	store := newFakeEngineStore()
	turn := tradingTurn()
	turn.RequiresTrade = false
	engine := newTestEngine(store, &fakeTurnInferrer{turn: turn}, &fakeSwapBuilder{})

	result, err := engine.RunTurn(context.Background(), testWallet, true)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	// Already at the cap, so the gain clamps.
	if result.Profile.Energy != 100 {
		t.Errorf("energy = %d, want 100", result.Profile.Energy)
	}
}

func TestRunTurnEnergyNeverGoesNegative(t *testing.T) {
	store := newFakeEngineStore()
	store.profile = &database.GameProfile{WalletAddress: testWallet, Energy: 3}
	engine := newTestEngine(store, &fakeTurnInferrer{turn: tradingTurn()}, &fakeSwapBuilder{plan: &jupiter.SwapPlan{SwapTransactionBase64: "c3dhcA=="}})

	result, err := engine.RunTurn(context.Background(), testWallet, true)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if result.Profile.Energy != 0 {
		t.Errorf("energy = %d, want 0", result.Profile.Energy)
	}
}

func TestRunTurnRequiresLinkedSymbiote(t *testing.T) {
	store := newFakeEngineStore()
	store.user = &database.User{WalletAddress: testWallet}
	engine := newTestEngine(store, &fakeTurnInferrer{}, &fakeSwapBuilder{})

	_, err := engine.RunTurn(context.Background(), testWallet, true)
	if !apperr.HasCode(err, apperr.CodeNoLinkedSymbiote) {
		t.Errorf("expected no_linked_symbiote, got %v", err)
	}
}

func TestRunTurnToleratesMissingOnChainState(t *testing.T) {
	store := newFakeEngineStore()
	reader := &fakeStateReader{err: apperr.NotFoundf(apperr.CodeUnknownSymbiote, "symbiote not found")}
	turn := tradingTurn()
	turn.RequiresTrade = false
	engine := NewEngine(store, &fakeHistoryLedger{}, reader, &fakeTurnInferrer{turn: turn}, &fakeSwapBuilder{})

	if _, err := engine.RunTurn(context.Background(), testWallet, true); err != nil {
		t.Fatalf("RunTurn should play without on-chain state: %v", err)
	}
}

func TestRunTurnRecordsMemory(t *testing.T) {
	store := newFakeEngineStore()
	turn := tradingTurn()
	turn.RequiresTrade = false
	engine := newTestEngine(store, &fakeTurnInferrer{turn: turn}, &fakeSwapBuilder{})

	if _, err := engine.RunTurn(context.Background(), testWallet, true); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(store.memories) != 1 {
		t.Fatalf("memory rows = %d, want 1", len(store.memories))
	}
	if !strings.HasPrefix(store.memories[0].Content, "GAME_TURN ") {
		t.Errorf("memory content = %q, want GAME_TURN prefix", store.memories[0].Content)
	}
}

func TestSuggestTrade(t *testing.T) {
	store := newFakeEngineStore()
	inferrer := &fakeTurnInferrer{reading: inference.Reading{
		RiskProfile: "Aggressive",
		Personality: "Momentum Hunter",
		Reaction:    "Your tempo is picking up.",
		Recommendation: inference.TradeIntent{
			Text:       "Ride the trend",
			InputMint:  solana.USDCMint,
			OutputMint: solana.SOLMint,
			Amount:     "25000000",
		},
	}}
	swaps := &fakeSwapBuilder{plan: &jupiter.SwapPlan{
		Quote:                 json.RawMessage(`{"inAmount":"25000000"}`),
		SwapTransactionBase64: "c3dhcA==",
	}}
	engine := newTestEngine(store, inferrer, swaps)

	suggestion, err := engine.SuggestTrade(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("SuggestTrade: %v", err)
	}

	if suggestion.Reading.RiskProfile != "Aggressive" {
		t.Errorf("risk profile = %q, want Aggressive", suggestion.Reading.RiskProfile)
	}
	if suggestion.SwapPlan == nil || suggestion.SwapPlan.SwapTransactionBase64 == "" {
		t.Error("suggestion should carry a built swap plan")
	}
	if store.suggestions != 1 {
		t.Errorf("suggestion rows = %d, want 1", store.suggestions)
	}
	if len(store.memories) != 1 {
		t.Errorf("memory rows = %d, want 1", len(store.memories))
	}
}
