package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"symbiote/internal/apperr"
	"symbiote/internal/auth"
	"symbiote/internal/autoplay"
	"symbiote/internal/config"
	"symbiote/internal/database"
	"symbiote/internal/game"
	"symbiote/internal/solana"
	"symbiote/internal/trade"

	"github.com/gorilla/mux"
)

type Handler struct {
	cfg        *config.Config
	db         *database.DB
	auth       *auth.Service
	engine     *game.Engine
	scheduler  *autoplay.Scheduler
	settlement *trade.Settlement
	program    *solana.Program
}

func NewHandler(cfg *config.Config, db *database.DB, authService *auth.Service, engine *game.Engine,
	scheduler *autoplay.Scheduler, settlement *trade.Settlement, program *solana.Program) *Handler {
	return &Handler{
		cfg:        cfg,
		db:         db,
		auth:       authService,
		engine:     engine,
		scheduler:  scheduler,
		settlement: settlement,
		program:    program,
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type challengeRequest struct {
	WalletAddress string `json:"walletAddress"`
}

func (h *Handler) ChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress is required"))
		return
	}

	challenge, err := h.auth.IssueChallenge(req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, challenge)
}

type verifyRequest struct {
	WalletAddress   string `json:"walletAddress"`
	SignatureBase64 string `json:"signatureBase64"`
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" || req.SignatureBase64 == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress and signatureBase64 are required"))
		return
	}

	session, err := h.auth.Verify(req.WalletAddress, req.SignatureBase64)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"walletAddress": session.WalletAddress,
		"token":         session.Token,
		"expiresAt":     session.ExpiresAt,
	})
}

type connectRequest struct {
	WalletAddress string `json:"walletAddress"`
	SymbioteMint  string `json:"symbioteMint"`
}

func (h *Handler) ConnectWalletHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress is required"))
		return
	}
	if err := auth.RequireWalletMatch(walletFromContext(r), req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}
	if req.SymbioteMint != "" {
		if _, err := solana.PublicKeyFromBase58(req.SymbioteMint); err != nil {
			writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "invalid symbiote mint: %v", err))
			return
		}
	}

	if err := h.db.UpsertUser(req.WalletAddress, req.SymbioteMint); err != nil {
		writeError(w, fmt.Errorf("failed to upsert user: %w", err))
		return
	}
	if _, err := h.db.UpsertGameProfile(req.WalletAddress, database.ProfilePatch{}); err != nil {
		writeError(w, fmt.Errorf("failed to upsert game profile: %w", err))
		return
	}
	if err := h.scheduler.Reconcile(req.WalletAddress); err != nil {
		writeError(w, fmt.Errorf("failed to reconcile autoplay: %w", err))
		return
	}

	user, err := h.db.GetUser(req.WalletAddress)
	if err != nil {
		writeError(w, fmt.Errorf("failed to load user: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "connected",
		"walletAddress":  user.WalletAddress,
		"symbioteMint":   user.SymbioteMint,
		"autoPlayActive": h.scheduler.Active(req.WalletAddress),
	})
}

func (h *Handler) SymbioteStateHandler(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]

	state, err := h.program.FetchState(r.Context(), mint)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) MetadataHandler(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]

	state, err := h.program.FetchState(r.Context(), mint)
	if err != nil {
		writeError(w, err)
		return
	}

	image := fmt.Sprintf("%s?seed=%s-%d-%s", h.cfg.MetadataImageBaseURL,
		state.Mint, state.Level, url.QueryEscape(state.Personality))

	writeJSON(w, http.StatusOK, map[string]any{
		"name":        fmt.Sprintf("Symbiote Pet #%s", shortMint(state.Mint)),
		"symbol":      "SYMB",
		"description": "Autonomous financial pet evolving from wallet behavior.",
		"image":       image,
		"attributes": []map[string]any{
			{"trait_type": "Level", "value": state.Level},
			{"trait_type": "XP", "value": state.XP},
			{"trait_type": "Personality", "value": state.Personality},
		},
		"properties": map[string]any{
			"category": "image",
			"files":    []map[string]string{{"uri": image, "type": "image/svg+xml"}},
		},
	})
}

type walletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

func (h *Handler) SuggestTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress is required"))
		return
	}
	if err := auth.RequireWalletMatch(walletFromContext(r), req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}

	suggestion, err := h.engine.SuggestTrade(r.Context(), req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletAddress":              suggestion.WalletAddress,
		"riskProfile":                suggestion.Reading.RiskProfile,
		"symbioteReaction":           suggestion.Reading.Reaction,
		"personality":                suggestion.Reading.Personality,
		"recommendation":             suggestion.Reading.Recommendation,
		"jupiterQuote":               suggestion.SwapPlan.Quote,
		"readyToSignSwapTransaction": suggestion.SwapPlan.SwapTransactionBase64,
		"referralFeeAccount":         h.cfg.JupiterReferralFeeAccount,
	})
}

func (h *Handler) PlayTurnHandler(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress is required"))
		return
	}
	if err := auth.RequireWalletMatch(walletFromContext(r), req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.RunTurn(r.Context(), req.WalletAddress, true)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) AgentStateHandler(w http.ResponseWriter, r *http.Request) {
	walletAddress := mux.Vars(r)["walletAddress"]
	if err := auth.RequireWalletMatch(walletFromContext(r), walletAddress); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.db.GetGameProfile(walletAddress)
	if err != nil {
		writeError(w, fmt.Errorf("failed to load game profile: %w", err))
		return
	}
	actions, err := h.db.RecentGameActions(walletAddress, 12)
	if err != nil {
		writeError(w, fmt.Errorf("failed to load game actions: %w", err))
		return
	}
	user, err := h.db.GetUser(walletAddress)
	if err != nil {
		writeError(w, fmt.Errorf("failed to load user: %w", err))
		return
	}

	var symbiote *solana.SymbioteState
	if user != nil && user.SymbioteMint != "" {
		symbiote, err = h.program.FetchState(r.Context(), user.SymbioteMint)
		if err != nil && !apperr.HasCode(err, apperr.CodeUnknownSymbiote) {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletAddress":  walletAddress,
		"profile":        profile,
		"symbiote":       symbiote,
		"recentActions":  actions,
		"autoPlayActive": h.scheduler.Active(walletAddress),
	})
}

type autoPlayRequest struct {
	WalletAddress string `json:"walletAddress"`
	Enabled       *bool  `json:"enabled"`
	IntervalSec   int    `json:"intervalSec"`
}

func (h *Handler) AutoPlayHandler(w http.ResponseWriter, r *http.Request) {
	var req autoPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" || req.Enabled == nil {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress and enabled are required"))
		return
	}
	if err := auth.RequireWalletMatch(walletFromContext(r), req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}

	intervalSec := req.IntervalSec
	if intervalSec <= 0 {
		intervalSec = h.cfg.GameTickSeconds
	}
	if intervalSec < int(autoplay.MinInterval.Seconds()) {
		intervalSec = int(autoplay.MinInterval.Seconds())
	}

	mode := "Agentic"
	if _, err := h.db.UpsertGameProfile(req.WalletAddress, database.ProfilePatch{
		Mode:            &mode,
		AutoPlay:        req.Enabled,
		TickIntervalSec: &intervalSec,
	}); err != nil {
		writeError(w, fmt.Errorf("failed to update game profile: %w", err))
		return
	}
	if err := h.scheduler.Reconcile(req.WalletAddress); err != nil {
		writeError(w, fmt.Errorf("failed to reconcile autoplay: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"walletAddress":  req.WalletAddress,
		"enabled":        *req.Enabled,
		"intervalSec":    intervalSec,
		"autoPlayActive": h.scheduler.Active(req.WalletAddress),
	})
}

type confirmTradeRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
}

func (h *Handler) ConfirmTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req confirmTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" || req.Signature == "" {
		writeError(w, apperr.Validationf(apperr.CodeMalformedInput, "walletAddress and signature are required"))
		return
	}
	if err := auth.RequireWalletMatch(walletFromContext(r), req.WalletAddress); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.settlement.Confirm(r.Context(), req.WalletAddress, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"confirmed":      true,
		"signature":      result.Signature,
		"tradeVolumeUsd": result.VolumeUSD,
		"evolvedState":   result.Evolved,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status = appErr.Status()
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func shortMint(mint string) string {
	if len(mint) > 6 {
		return mint[:6]
	}
	return mint
}
