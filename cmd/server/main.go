package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"symbiote/internal/auth"
	"symbiote/internal/autoplay"
	"symbiote/internal/config"
	"symbiote/internal/database"
	"symbiote/internal/game"
	"symbiote/internal/handlers"
	"symbiote/internal/inference"
	"symbiote/internal/jupiter"
	"symbiote/internal/solana"
	"symbiote/internal/trade"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	keypair, err := solana.LoadKeypair(cfg.KeypairBase58, cfg.KeypairFile)
	if err != nil {
		log.Fatalf("Failed to load backend keypair: %v", err)
	}

	rpcClient := solana.NewClient(cfg.SolanaRPCURL)
	program, err := solana.NewProgram(rpcClient, cfg.SymbioteProgramID, keypair)
	if err != nil {
		log.Fatalf("Failed to initialize symbiote program client: %v", err)
	}

	inferenceClient := inference.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	jupiterClient := jupiter.NewClient(cfg.JupiterAPIBase, cfg.JupiterFeeBps, cfg.JupiterReferralFeeAccount)

	authService := auth.NewService(db,
		time.Duration(cfg.ChallengeTTLSeconds)*time.Second,
		time.Duration(cfg.SessionTTLSeconds)*time.Second)
	engine := game.NewEngine(db, rpcClient, program, inferenceClient, jupiterClient)
	scheduler := autoplay.NewScheduler(db, engine)
	settlement := trade.NewSettlement(db, rpcClient, program, inferenceClient, cfg.MinConfirmVolumeUSD)

	handler := handlers.NewHandler(cfg, db, authService, engine, scheduler, settlement, program)

	router := mux.NewRouter()
	router.HandleFunc("/health", handler.HealthHandler).Methods("GET")

	authLimiter := rate.NewLimiter(
		rate.Every(time.Duration(cfg.AuthRateLimitWindowMins)*time.Minute/time.Duration(cfg.AuthRateLimitRequests)),
		cfg.AuthRateLimitRequests,
	)
	authRoutes := router.PathPrefix("/auth").Subrouter()
	authRoutes.Use(rateLimitMiddleware(authLimiter))
	authRoutes.HandleFunc("/challenge", handler.ChallengeHandler).Methods("POST")
	authRoutes.HandleFunc("/verify", handler.VerifyHandler).Methods("POST")

	router.HandleFunc("/metadata/{mint}/state.json", handler.MetadataHandler).Methods("GET")

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(handler.RequireSession)
	protected.HandleFunc("/symbiote/{mint}", handler.SymbioteStateHandler).Methods("GET")
	protected.HandleFunc("/connect-wallet", handler.ConnectWalletHandler).Methods("POST")
	protected.HandleFunc("/suggest-trade", handler.SuggestTradeHandler).Methods("POST")
	protected.HandleFunc("/agent/play-turn", handler.PlayTurnHandler).Methods("POST")
	protected.HandleFunc("/agent/state/{walletAddress}", handler.AgentStateHandler).Methods("GET")
	protected.HandleFunc("/agent/auto-play", handler.AutoPlayHandler).Methods("POST")
	protected.HandleFunc("/confirm-trade", handler.ConfirmTradeHandler).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.APICORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	globalLimiter := rate.NewLimiter(
		rate.Every(time.Duration(cfg.APIRateLimitWindowMins)*time.Minute/time.Duration(cfg.APIRateLimitRequests)),
		cfg.APIRateLimitRequests,
	)

	finalHandler := rateLimitMiddleware(globalLimiter)(c.Handler(router))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go startCleanupRoutine(db, cfg)

	log.Printf("Symbiote backend starting on %s:%s", cfg.ServerHost, cfg.ServerPort)
	log.Printf("Database: %s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	log.Printf("Program: %s, evolution authority: %s", cfg.SymbioteProgramID, solana.KeypairAddress(keypair))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func startCleanupRoutine(db *database.DB, cfg *config.Config) {
	ticker := time.NewTicker(time.Duration(cfg.CleanupIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		if err := db.CleanupExpiredChallenges(); err != nil {
			log.Printf("Failed to cleanup expired challenges: %v", err)
		}
		if err := db.CleanupExpiredSessions(); err != nil {
			log.Printf("Failed to cleanup expired sessions: %v", err)
		}
	}
}
