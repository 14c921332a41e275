package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/models"
	"github.com/rs/zerolog/log"
)

// CommandStore defines what the scheduler needs from the persistence layer.
// ProcessDue must guarantee that rows claimed by one caller stay invisible to
// concurrent callers until their outcome is committed.
type CommandStore interface {
	ProcessDue(ctx context.Context, now time.Time, limit int32, fn func(ctx context.Context, cmd models.InternalCommand) error) (int, error)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	}
}

// Scheduler polls the command outbox and executes due commands through the
// handler registry. Several scheduler instances may poll the same store
// concurrently; claim disjointness is the store's responsibility.
type Scheduler struct {
	store    CommandStore
	registry *Registry
	clock    clockwork.Clock
	config   Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(store CommandStore, registry *Registry, clock clockwork.Clock, cfg Config) *Scheduler {
	return &Scheduler{
		store:    store,
		registry: registry,
		clock:    clock,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("command scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().
		Dur("poll_interval", s.config.PollInterval).
		Int32("batch_size", s.config.BatchSize).
		Msg("command scheduler started")

	return nil
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("command scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	log.Info().Msg("command scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	s.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending runs one poll cycle: claim due commands and execute each at
// most once. A handler failure is recorded on the command and never blocks the
// rest of the batch, except for Transient failures, which release the claim so
// the command is retried on a later cycle.
func (s *Scheduler) ProcessPending(ctx context.Context) {
	processed, err := s.store.ProcessDue(ctx, s.clock.Now(), s.config.BatchSize, s.execute)
	if err != nil {
		log.Error().Err(err).Msg("failed to process pending commands")
		return
	}
	if processed > 0 {
		log.Info().Int("count", processed).Msg("processed internal commands")
	}
}

func (s *Scheduler) execute(ctx context.Context, cmd models.InternalCommand) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command handler panicked: %v", r)
		}
		if err != nil {
			log.Error().
				Err(err).
				Str("command_id", cmd.ID.String()).
				Str("kind", string(cmd.Kind)).
				Msg("command handler failed")
		}
	}()

	handler, err := s.registry.Resolve(cmd.Kind)
	if err != nil {
		return err
	}
	return handler(ctx, cmd.Payload)
}
