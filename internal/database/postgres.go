package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"symbiote/internal/config"

	"github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
	cfg  *config.Config
}

func NewDB(cfg *config.Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			wallet_address VARCHAR(64) PRIMARY KEY,
			symbiote_mint VARCHAR(64),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS auth_challenges (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			nonce VARCHAR(255) NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token VARCHAR(255) PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS game_profiles (
			wallet_address VARCHAR(64) PRIMARY KEY,
			mode VARCHAR(32) NOT NULL DEFAULT 'Agentic',
			archetype VARCHAR(64) NOT NULL DEFAULT 'Explorer',
			streak INTEGER NOT NULL DEFAULT 0,
			energy INTEGER NOT NULL DEFAULT 100,
			auto_play BOOLEAN NOT NULL DEFAULT FALSE,
			tick_interval_sec INTEGER NOT NULL DEFAULT 300,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			signature VARCHAR(128) NOT NULL UNIQUE,
			volume_usd DOUBLE PRECISION NOT NULL,
			personality VARCHAR(64) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS memory (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS suggestions (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			risk_profile VARCHAR(32) NOT NULL,
			personality VARCHAR(64) NOT NULL,
			reaction TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			quote_json TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS game_actions (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(64) NOT NULL,
			symbiote_mint VARCHAR(64),
			game_name TEXT NOT NULL,
			objective TEXT NOT NULL,
			move_text TEXT NOT NULL,
			outcome_text TEXT NOT NULL,
			tx_base64 TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_challenges_wallet ON auth_challenges(wallet_address, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet_address)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_wallet ON memory(wallet_address, id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_actions_wallet ON game_actions(wallet_address, id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Trade settlement relies on this to tell a lost insert race
// apart from a storage failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (db *DB) CreateChallenge(walletAddress, nonce string, expiresAt time.Time) error {
	query := `INSERT INTO auth_challenges (wallet_address, nonce, expires_at) VALUES ($1, $2, $3)`
	_, err := db.conn.Exec(query, walletAddress, nonce, expiresAt)
	return err
}

// LatestValidChallenge returns the most recently issued unexpired challenge
// for the wallet, or nil when none exists. Older unexpired challenges are
// never returned.
func (db *DB) LatestValidChallenge(walletAddress string, now time.Time) (*Challenge, error) {
	query := `SELECT id, wallet_address, nonce, expires_at, created_at
			  FROM auth_challenges
			  WHERE wallet_address = $1 AND expires_at > $2
			  ORDER BY id DESC LIMIT 1`

	challenge := &Challenge{}
	err := db.conn.QueryRow(query, walletAddress, now).Scan(
		&challenge.ID, &challenge.WalletAddress, &challenge.Nonce,
		&challenge.ExpiresAt, &challenge.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return challenge, err
}

func (db *DB) DeleteChallenges(walletAddress string) error {
	query := `DELETE FROM auth_challenges WHERE wallet_address = $1`
	_, err := db.conn.Exec(query, walletAddress)
	return err
}

func (db *DB) CleanupExpiredChallenges() error {
	query := `DELETE FROM auth_challenges WHERE expires_at <= NOW()`
	_, err := db.conn.Exec(query)
	return err
}

func (db *DB) CreateSession(token, walletAddress string, expiresAt time.Time) error {
	query := `INSERT INTO sessions (token, wallet_address, expires_at) VALUES ($1, $2, $3)`
	_, err := db.conn.Exec(query, token, walletAddress, expiresAt)
	return err
}

func (db *DB) GetSession(token string) (*Session, error) {
	query := `SELECT token, wallet_address, expires_at, created_at FROM sessions WHERE token = $1`

	session := &Session{}
	err := db.conn.QueryRow(query, token).Scan(
		&session.Token, &session.WalletAddress, &session.ExpiresAt, &session.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return session, err
}

func (db *DB) DeleteSession(token string) error {
	query := `DELETE FROM sessions WHERE token = $1`
	_, err := db.conn.Exec(query, token)
	return err
}

func (db *DB) CleanupExpiredSessions() error {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`
	_, err := db.conn.Exec(query)
	return err
}

// UpsertUser creates the user row if missing. An empty symbioteMint never
// clears an already linked mint.
func (db *DB) UpsertUser(walletAddress, symbioteMint string) error {
	query := `INSERT INTO users (wallet_address, symbiote_mint)
			  VALUES ($1, NULLIF($2, ''))
			  ON CONFLICT (wallet_address)
			  DO UPDATE SET symbiote_mint = COALESCE(NULLIF($2, ''), users.symbiote_mint)`
	_, err := db.conn.Exec(query, walletAddress, symbioteMint)
	return err
}

func (db *DB) GetUser(walletAddress string) (*User, error) {
	query := `SELECT wallet_address, COALESCE(symbiote_mint, ''), created_at FROM users WHERE wallet_address = $1`

	user := &User{}
	err := db.conn.QueryRow(query, walletAddress).Scan(
		&user.WalletAddress, &user.SymbioteMint, &user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return user, err
}

func (db *DB) HasTrade(signature string) (bool, error) {
	query := `SELECT 1 FROM trades WHERE signature = $1 LIMIT 1`

	var found int
	err := db.conn.QueryRow(query, signature).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *DB) CreateTrade(walletAddress, signature string, volumeUSD float64, personality string) error {
	query := `INSERT INTO trades (wallet_address, signature, volume_usd, personality) VALUES ($1, $2, $3, $4)`
	_, err := db.conn.Exec(query, walletAddress, signature, volumeUSD, personality)
	return err
}

func (db *DB) CreateMemory(walletAddress, role, content string) error {
	query := `INSERT INTO memory (wallet_address, role, content) VALUES ($1, $2, $3)`
	_, err := db.conn.Exec(query, walletAddress, role, content)
	return err
}

// RecentMemory returns up to limit entries, oldest first.
func (db *DB) RecentMemory(walletAddress string, limit int) ([]MemoryEntry, error) {
	query := `SELECT id, wallet_address, role, content, created_at
			  FROM memory WHERE wallet_address = $1 ORDER BY id DESC LIMIT $2`

	rows, err := db.conn.Query(query, walletAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		var entry MemoryEntry
		if err := rows.Scan(&entry.ID, &entry.WalletAddress, &entry.Role, &entry.Content, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func (db *DB) CreateSuggestion(walletAddress, riskProfile, personality, reaction, recommendation, quoteJSON string) error {
	query := `INSERT INTO suggestions (wallet_address, risk_profile, personality, reaction, recommendation, quote_json)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := db.conn.Exec(query, walletAddress, riskProfile, personality, reaction, recommendation, quoteJSON)
	return err
}

func (db *DB) GetGameProfile(walletAddress string) (*GameProfile, error) {
	query := `SELECT wallet_address, mode, archetype, streak, energy, auto_play, tick_interval_sec, updated_at
			  FROM game_profiles WHERE wallet_address = $1`

	profile := &GameProfile{}
	err := db.conn.QueryRow(query, walletAddress).Scan(
		&profile.WalletAddress, &profile.Mode, &profile.Archetype, &profile.Streak,
		&profile.Energy, &profile.AutoPlay, &profile.TickIntervalSec, &profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return profile, err
}

// UpsertGameProfile applies patch over the current row (or the defaults when
// the wallet has no profile yet) and returns the stored profile.
func (db *DB) UpsertGameProfile(walletAddress string, patch ProfilePatch) (*GameProfile, error) {
	current, err := db.GetGameProfile(walletAddress)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = &GameProfile{
			WalletAddress:   walletAddress,
			Mode:            "Agentic",
			Archetype:       "Explorer",
			Streak:          0,
			Energy:          100,
			AutoPlay:        false,
			TickIntervalSec: db.cfg.GameTickSeconds,
		}
	}

	if patch.Mode != nil {
		current.Mode = *patch.Mode
	}
	if patch.Archetype != nil {
		current.Archetype = *patch.Archetype
	}
	if patch.Streak != nil {
		current.Streak = *patch.Streak
	}
	if patch.Energy != nil {
		current.Energy = *patch.Energy
	}
	if patch.AutoPlay != nil {
		current.AutoPlay = *patch.AutoPlay
	}
	if patch.TickIntervalSec != nil {
		current.TickIntervalSec = *patch.TickIntervalSec
	}

	query := `INSERT INTO game_profiles (wallet_address, mode, archetype, streak, energy, auto_play, tick_interval_sec, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			  ON CONFLICT (wallet_address) DO UPDATE SET
				mode = excluded.mode,
				archetype = excluded.archetype,
				streak = excluded.streak,
				energy = excluded.energy,
				auto_play = excluded.auto_play,
				tick_interval_sec = excluded.tick_interval_sec,
				updated_at = excluded.updated_at`
	_, err = db.conn.Exec(query, current.WalletAddress, current.Mode, current.Archetype,
		current.Streak, current.Energy, current.AutoPlay, current.TickIntervalSec)
	if err != nil {
		return nil, err
	}

	return db.GetGameProfile(walletAddress)
}

func (db *DB) CreateGameAction(action *GameAction) error {
	query := `INSERT INTO game_actions (wallet_address, symbiote_mint, game_name, objective, move_text, outcome_text, tx_base64)
			  VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''))`
	_, err := db.conn.Exec(query, action.WalletAddress, action.SymbioteMint, action.GameName,
		action.Objective, action.MoveText, action.OutcomeText, action.TxBase64)
	return err
}

func (db *DB) RecentGameActions(walletAddress string, limit int) ([]GameAction, error) {
	query := `SELECT id, wallet_address, COALESCE(symbiote_mint, ''), game_name, objective, move_text, outcome_text, COALESCE(tx_base64, ''), created_at
			  FROM game_actions WHERE wallet_address = $1 ORDER BY id DESC LIMIT $2`

	rows, err := db.conn.Query(query, walletAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []GameAction
	for rows.Next() {
		var action GameAction
		if err := rows.Scan(&action.ID, &action.WalletAddress, &action.SymbioteMint,
			&action.GameName, &action.Objective, &action.MoveText, &action.OutcomeText,
			&action.TxBase64, &action.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}
