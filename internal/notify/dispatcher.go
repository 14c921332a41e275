package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/rs/zerolog/log"
)

// MessageSource defines what the dispatcher needs from the outgoing message
// repository.
type MessageSource interface {
	ListReadyToPublish(ctx context.Context, limit int32) ([]models.OutgoingMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	SendTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Second,
		BatchSize:    100,
		SendTimeout:  10 * time.Second,
	}
}

// Dispatcher announces ready messages to the downstream hub and marks them
// published. Per-message failures are logged and skipped, so one broken
// message never stalls the rest; an unpublished message is retried on the
// next cycle.
type Dispatcher struct {
	messages  MessageSource
	publisher Publisher
	clock     clockwork.Clock
	config    Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(messages MessageSource, publisher Publisher, clock clockwork.Clock, cfg Config) *Dispatcher {
	return &Dispatcher{
		messages:  messages,
		publisher: publisher,
		clock:     clock,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("notification dispatcher already running")
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx)

	log.Info().Dur("poll_interval", d.config.PollInterval).Msg("notification dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("notification dispatcher not running")
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopChan)
	d.wg.Wait()

	log.Info().Msg("notification dispatcher stopped")
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.DispatchDueMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-ticker.Chan():
			d.DispatchDueMessages(ctx)
		}
	}
}

// DispatchDueMessages runs one dispatch cycle. The message id doubles as the
// idempotency key, so a crash between send and mark-published only causes a
// deduplicated re-send.
func (d *Dispatcher) DispatchDueMessages(ctx context.Context) {
	due, err := d.messages.ListReadyToPublish(ctx, d.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list messages ready to publish")
		return
	}

	sent := 0
	for _, msg := range due {
		if err := d.dispatch(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("message_id", msg.ID.String()).
				Msg("failed to notify message availability")
			continue
		}
		sent++
	}

	if len(due) > 0 {
		log.Info().
			Int("total", len(due)).
			Int("sent", sent).
			Msg("dispatched availability notifications")
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg models.OutgoingMessage) error {
	n := Notification{
		MessageID:    msg.ID.String(),
		DocumentType: string(msg.DocumentType),
		Receiver:     msg.Receiver.Number,
		ReceiverRole: string(msg.Receiver.Role),
		CreatedAt:    d.clock.Now(),
	}
	if msg.BundleID != nil {
		n.BundleID = msg.BundleID.String()
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	if err := d.publisher.Send(sendCtx, msg.ID.String(), n); err != nil {
		return err
	}
	return d.messages.MarkPublished(ctx, msg.ID)
}

// NewNotifyHubHandler returns the handler for NotifyHub commands, which run
// one dispatch cycle out of band of the poll ticker.
func NewNotifyHubHandler(d *Dispatcher) outbox.Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		d.DispatchDueMessages(ctx)
		return nil
	}
}
