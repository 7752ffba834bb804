package database

import (
	"time"
)

type User struct {
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	SymbioteMint  string    `db:"symbiote_mint" json:"symbioteMint,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type Challenge struct {
	ID            int64     `db:"id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	Nonce         string    `db:"nonce" json:"nonce"`
	ExpiresAt     time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type Session struct {
	Token         string    `db:"token" json:"token"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	ExpiresAt     time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type GameProfile struct {
	WalletAddress   string    `db:"wallet_address" json:"walletAddress"`
	Mode            string    `db:"mode" json:"mode"`
	Archetype       string    `db:"archetype" json:"archetype"`
	Streak          int       `db:"streak" json:"streak"`
	Energy          int       `db:"energy" json:"energy"`
	AutoPlay        bool      `db:"auto_play" json:"autoPlay"`
	TickIntervalSec int       `db:"tick_interval_sec" json:"tickIntervalSec"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// ProfilePatch carries the fields an update wants to change; nil fields keep
// their current (or default) value.
type ProfilePatch struct {
	Mode            *string
	Archetype       *string
	Streak          *int
	Energy          *int
	AutoPlay        *bool
	TickIntervalSec *int
}

type Trade struct {
	ID            int64     `db:"id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	Signature     string    `db:"signature" json:"signature"`
	VolumeUSD     float64   `db:"volume_usd" json:"volumeUsd"`
	Personality   string    `db:"personality" json:"personality"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type MemoryEntry struct {
	ID            int64     `db:"id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	Role          string    `db:"role" json:"role"`
	Content       string    `db:"content" json:"content"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

type GameAction struct {
	ID            int64     `db:"id" json:"-"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	SymbioteMint  string    `db:"symbiote_mint" json:"symbioteMint,omitempty"`
	GameName      string    `db:"game_name" json:"gameName"`
	Objective     string    `db:"objective" json:"objective"`
	MoveText      string    `db:"move_text" json:"moveText"`
	OutcomeText   string    `db:"outcome_text" json:"outcomeText"`
	TxBase64      string    `db:"tx_base64" json:"txBase64,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
