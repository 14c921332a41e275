package outmsg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/rs/zerolog/log"
)

// MessageStore defines what the app layer needs from the repository.
type MessageStore interface {
	InsertWithCommand(ctx context.Context, msg models.OutgoingMessage, cmd outbox.NewCommand) error
	ListUnbundled(ctx context.Context, key models.BundleKey) ([]models.OutgoingMessage, error)
	AssignBundle(ctx context.Context, ids []uuid.UUID, bundleID uuid.UUID) error
	ListReadyToPublish(ctx context.Context, limit int32) ([]models.OutgoingMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

// NewMessage is the input for producing an outgoing message.
type NewMessage struct {
	DocumentType   models.DocumentType   `json:"document_type"`
	BusinessReason models.BusinessReason `json:"business_reason"`
	Sender         models.Actor          `json:"sender"`
	Receiver       models.Actor          `json:"receiver"`
	Record         json.RawMessage       `json:"record"`
}

// App handles outgoing message business logic.
type App struct {
	store MessageStore
	clock clockwork.Clock
}

// NewApp creates a new outgoing message App.
func NewApp(store MessageStore, clock clockwork.Clock) *App {
	return &App{store: store, clock: clock}
}

// Produce stores a new outgoing message and schedules bundling for its
// grouping tuple. Both writes commit in one transaction.
func (a *App) Produce(ctx context.Context, input NewMessage) (uuid.UUID, error) {
	if !input.DocumentType.Valid() {
		return uuid.Nil, fmt.Errorf("invalid document type %q", input.DocumentType)
	}
	if !input.BusinessReason.Valid() {
		return uuid.Nil, fmt.Errorf("invalid business reason %q", input.BusinessReason)
	}
	if !input.Receiver.Role.Valid() || !input.Sender.Role.Valid() {
		return uuid.Nil, fmt.Errorf("invalid actor role on message")
	}

	now := a.clock.Now()
	msg := models.OutgoingMessage{
		ID:             uuid.New(),
		DocumentType:   input.DocumentType,
		BusinessReason: input.BusinessReason,
		Sender:         input.Sender,
		Receiver:       input.Receiver,
		Record:         input.Record,
		CreatedAt:      now,
	}

	payload, err := json.Marshal(msg.Key())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal bundle command payload: %w", err)
	}

	cmd := outbox.NewCommand{
		Kind:        models.CommandBundleMessages,
		Payload:     payload,
		ScheduledAt: now,
	}
	if err := a.store.InsertWithCommand(ctx, msg, cmd); err != nil {
		return uuid.Nil, fmt.Errorf("failed to produce outgoing message: %w", err)
	}

	log.Info().
		Str("message_id", msg.ID.String()).
		Str("document_type", string(msg.DocumentType)).
		Str("receiver", msg.Receiver.Number).
		Msg("outgoing message produced")

	return msg.ID, nil
}

// GetUnbundled returns the unbundled messages for a grouping tuple in
// creation order.
func (a *App) GetUnbundled(ctx context.Context, key models.BundleKey) ([]models.OutgoingMessage, error) {
	return a.store.ListUnbundled(ctx, key)
}

// CreateMessagesPayload is the payload of a CreateOutgoingMessages command:
// produce Count copies of the given message.
type CreateMessagesPayload struct {
	Count   int        `json:"count"`
	Message NewMessage `json:"message"`
}

// NewCreateMessagesHandler returns the handler for CreateOutgoingMessages
// commands.
func NewCreateMessagesHandler(app *App) outbox.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload CreateMessagesPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("failed to decode create-messages payload: %w", err)
		}
		if payload.Count <= 0 {
			return fmt.Errorf("create-messages count must be positive, got %d", payload.Count)
		}
		for i := 0; i < payload.Count; i++ {
			if _, err := app.Produce(ctx, payload.Message); err != nil {
				return err
			}
		}
		return nil
	}
}
