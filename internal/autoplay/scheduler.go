// Package autoplay owns the per-wallet recurring game loops. The registry of
// live loops is mutated only through Reconcile, Cancel and StopAll, which
// keeps at most one loop alive per wallet at all times.
package autoplay

import (
	"context"
	"log"
	"sync"
	"time"

	"symbiote/internal/database"
	"symbiote/internal/game"
)

// MinInterval is the floor applied to configured tick intervals.
const MinInterval = 60 * time.Second

// ProfileStore reads autoplay configuration.
type ProfileStore interface {
	GetGameProfile(walletAddress string) (*database.GameProfile, error)
}

// Runner advances game state for one wallet.
type Runner interface {
	RunTurn(ctx context.Context, walletAddress string, buildSwap bool) (*game.TurnResult, error)
}

type loop struct {
	stop     chan struct{}
	interval time.Duration
}

type Scheduler struct {
	store       ProfileStore
	runner      Runner
	minInterval time.Duration

	mu    sync.Mutex
	loops map[string]*loop
}

func NewScheduler(store ProfileStore, runner Runner) *Scheduler {
	return &Scheduler{
		store:       store,
		runner:      runner,
		minInterval: MinInterval,
		loops:       make(map[string]*loop),
	}
}

// Reconcile brings the wallet's loop in line with its stored profile. Any
// existing loop is torn down first, so repeated reconfiguration can never
// leave two loops running.
func (s *Scheduler) Reconcile(walletAddress string) error {
	s.mu.Lock()
	s.stopLocked(walletAddress)
	s.mu.Unlock()

	profile, err := s.store.GetGameProfile(walletAddress)
	if err != nil {
		return err
	}
	if profile == nil || !profile.AutoPlay {
		return nil
	}

	interval := time.Duration(profile.TickIntervalSec) * time.Second
	if interval < s.minInterval {
		interval = s.minInterval
	}

	l := &loop{
		stop:     make(chan struct{}),
		interval: interval,
	}

	s.mu.Lock()
	// A concurrent Reconcile may have started a loop while the profile was
	// loading; replace it.
	s.stopLocked(walletAddress)
	s.loops[walletAddress] = l
	s.mu.Unlock()

	go s.run(walletAddress, l)
	return nil
}

func (s *Scheduler) run(walletAddress string, l *loop) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			// Each tick runs in its own goroutine so a slow turn never
			// delays the schedule; overlapping turns for one wallet are
			// tolerated, persisted state stays consistent through storage
			// constraints.
			go func() {
				if _, err := s.runner.RunTurn(context.Background(), walletAddress, false); err != nil {
					log.Printf("auto play turn failed for %s: %v", walletAddress, err)
				}
			}()
		}
	}
}

// Cancel stops the wallet's loop if one is live.
func (s *Scheduler) Cancel(walletAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(walletAddress)
}

// StopAll tears down every live loop. Called on shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for walletAddress := range s.loops {
		s.stopLocked(walletAddress)
	}
}

// Active reports whether the wallet currently has a live loop.
func (s *Scheduler) Active(walletAddress string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[walletAddress]
	return ok
}

func (s *Scheduler) stopLocked(walletAddress string) {
	if l, ok := s.loops[walletAddress]; ok {
		close(l.stop)
		delete(s.loops, walletAddress)
	}
}
