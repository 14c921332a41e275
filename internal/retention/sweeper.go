package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Store defines what the sweeper needs from the persistence layer.
type Store interface {
	Sweep(ctx context.Context, commandsBefore time.Time) (SweepResult, error)
}

type Config struct {
	Interval      time.Duration
	CommandMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		CommandMaxAge: 30 * 24 * time.Hour,
	}
}

// Sweeper periodically reclaims storage held by fully-dequeued bundles and
// old processed commands.
type Sweeper struct {
	store  Store
	clock  clockwork.Clock
	config Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(store Store, clock clockwork.Clock, cfg Config) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clock,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Dur("interval", s.config.Interval).Msg("retention sweeper started")
	return nil
}

func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention sweeper not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	log.Info().Msg("retention sweeper stopped")
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.Cleanup(ctx)
		}
	}
}

// Cleanup runs one sweep pass.
func (s *Sweeper) Cleanup(ctx context.Context) {
	horizon := s.clock.Now().Add(-s.config.CommandMaxAge)
	result, err := s.store.Sweep(ctx, horizon)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if result.Bundles > 0 || result.Commands > 0 {
		log.Info().
			Int64("bundles", result.Bundles).
			Int64("messages", result.Messages).
			Int64("documents", result.Documents).
			Int64("commands", result.Commands).
			Msg("retention sweep completed")
	}
}
