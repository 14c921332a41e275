package bundling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/codec"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/storage"
	"github.com/rs/zerolog/log"
)

// BundleStore defines what the app layer needs from the bundle repository.
type BundleStore interface {
	EnsureOpen(ctx context.Context, key models.BundleKey, newID uuid.UUID, now time.Time) (uuid.UUID, error)
	FindCurrent(ctx context.Context, key models.BundleKey) (*models.Bundle, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Bundle, error)
	Close(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkReady(ctx context.Context, id uuid.UUID, ref string, now time.Time) error
	PeekReady(ctx context.Context, receiver models.Actor) (*models.Bundle, error)
	Dequeue(ctx context.Context, receiver models.Actor, id uuid.UUID) (string, bool, error)
}

// MessageStore defines what the bundler needs from the outgoing message
// repository.
type MessageStore interface {
	ListUnbundled(ctx context.Context, key models.BundleKey) ([]models.OutgoingMessage, error)
	AssignBundle(ctx context.Context, ids []uuid.UUID, bundleID uuid.UUID) error
	ListByBundle(ctx context.Context, bundleID uuid.UUID) ([]models.OutgoingMessage, error)
}

type Config struct {
	// Sender is the hub's own market participant identity, stamped on every
	// rendered document header.
	Sender models.Actor
	// Format is the wire format documents are rendered in.
	Format models.DocumentFormat
	// UploadTimeout bounds the file storage upload per bundle.
	UploadTimeout time.Duration
}

func DefaultConfig(sender models.Actor) Config {
	return Config{
		Sender:        sender,
		Format:        models.FormatCIMXML,
		UploadTimeout: 30 * time.Second,
	}
}

// App bundles outgoing messages into per-actor delivery bundles and exposes
// the actor message queue.
type App struct {
	bundles  BundleStore
	messages MessageStore
	registry *codec.Registry
	files    storage.FileStore
	clock    clockwork.Clock
	config   Config
}

// NewApp creates a new bundling App.
func NewApp(bundles BundleStore, messages MessageStore, registry *codec.Registry, files storage.FileStore, clock clockwork.Clock, cfg Config) *App {
	return &App{
		bundles:  bundles,
		messages: messages,
		registry: registry,
		files:    files,
		clock:    clock,
		config:   cfg,
	}
}

// EnsureBundle returns the Open bundle for a grouping tuple, creating it if
// necessary. Under concurrent callers exactly one creation succeeds and the
// others observe the winner's id.
func (a *App) EnsureBundle(ctx context.Context, key models.BundleKey) (uuid.UUID, error) {
	return a.bundles.EnsureOpen(ctx, key, uuid.New(), a.clock.Now())
}

// BundleMessages groups the unbundled messages of a tuple into one bundle,
// renders the combined document and uploads it, then marks the bundle Ready.
// With no unbundled messages and no bundle in progress it is a successful
// no-op returning uuid.Nil. A failure mid-way leaves the bundle Open or
// Closing so a later attempt completes it.
func (a *App) BundleMessages(ctx context.Context, key models.BundleKey) (uuid.UUID, error) {
	bundle, err := a.bundles.FindCurrent(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	if bundle == nil {
		pending, err := a.messages.ListUnbundled(ctx, key)
		if err != nil {
			return uuid.Nil, err
		}
		if len(pending) == 0 {
			return uuid.Nil, nil
		}
		id, err := a.EnsureBundle(ctx, key)
		if err != nil {
			return uuid.Nil, err
		}
		bundle, err = a.bundles.Get(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
	}

	if bundle.State == models.BundleStateOpen {
		pending, err := a.messages.ListUnbundled(ctx, key)
		if err != nil {
			return uuid.Nil, err
		}
		if len(pending) > 0 {
			ids := make([]uuid.UUID, len(pending))
			for i, m := range pending {
				ids[i] = m.ID
			}
			if err := a.messages.AssignBundle(ctx, ids, bundle.ID); err != nil {
				return uuid.Nil, err
			}
		}
		got, err := a.messages.ListByBundle(ctx, bundle.ID)
		if err != nil {
			return uuid.Nil, err
		}
		if len(got) == 0 {
			// A concurrent run took the pending messages; the bundle stays
			// open for the tuple's next batch.
			return uuid.Nil, nil
		}
		if err := a.bundles.Close(ctx, bundle.ID, a.clock.Now()); err != nil {
			return uuid.Nil, err
		}
	}

	// The bundle is Closing here, either freshly or left over from a
	// previous failed attempt; finishing it is idempotent.
	attached, err := a.messages.ListByBundle(ctx, bundle.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(attached) == 0 {
		log.Warn().
			Str("bundle_id", bundle.ID.String()).
			Msg("closing bundle has no messages, nothing to render")
		return bundle.ID, nil
	}

	ref, err := a.renderAndUpload(ctx, *bundle, attached)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to materialize bundle %s: %w", bundle.ID, err)
	}

	if err := a.bundles.MarkReady(ctx, bundle.ID, ref, a.clock.Now()); err != nil {
		return uuid.Nil, err
	}

	log.Info().
		Str("bundle_id", bundle.ID.String()).
		Str("receiver", key.Receiver.Number).
		Str("document_type", string(key.DocumentType)).
		Int("messages", len(attached)).
		Msg("bundle ready")

	return bundle.ID, nil
}

func (a *App) renderAndUpload(ctx context.Context, bundle models.Bundle, attached []models.OutgoingMessage) (string, error) {
	writer, err := a.registry.Resolve(bundle.DocumentType, a.config.Format)
	if err != nil {
		return "", err
	}

	header := codec.DocumentHeader{
		MessageID:      bundle.ID.String(),
		Sender:         a.config.Sender,
		Receiver:       bundle.Receiver,
		BusinessReason: bundle.BusinessReason,
		CreatedAt:      a.clock.Now(),
	}
	records := make([]json.RawMessage, len(attached))
	for i, m := range attached {
		records[i] = m.Record
	}

	var buf bytes.Buffer
	if err := writer.Write(header, records, &buf); err != nil {
		return "", err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, a.config.UploadTimeout)
	defer cancel()

	key := storage.DocumentKey(bundle.Receiver, bundle.CreatedAt, bundle.ID, a.config.Format)
	ref, err := a.files.Upload(uploadCtx, key, &buf)
	if err != nil {
		// Storage failures are transient: the bundle stays Closing and the
		// triggering command stays pending, so a later cycle retries.
		return "", outbox.Transient(fmt.Errorf("failed to upload document: %w", err))
	}
	return ref, nil
}

// Peek returns the oldest Ready bundle on an actor's queue without consuming
// it, or nil when the queue is empty.
func (a *App) Peek(ctx context.Context, receiver models.Actor) (*models.Bundle, error) {
	return a.bundles.PeekReady(ctx, receiver)
}

// Dequeue consumes a Ready bundle and returns its document's storage
// reference. Dequeuing a bundle that is not Ready for this actor reports
// ok=false rather than an error.
func (a *App) Dequeue(ctx context.Context, receiver models.Actor, bundleID uuid.UUID) (string, bool, error) {
	ref, ok, err := a.bundles.Dequeue(ctx, receiver, bundleID)
	if err != nil {
		return "", false, err
	}
	if ok {
		log.Info().
			Str("bundle_id", bundleID.String()).
			Str("receiver", receiver.Number).
			Msg("bundle dequeued")
	}
	return ref, ok, nil
}

// NewBundleMessagesHandler returns the handler for BundleMessages commands.
func NewBundleMessagesHandler(app *App) outbox.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var key models.BundleKey
		if err := json.Unmarshal(raw, &key); err != nil {
			return fmt.Errorf("failed to decode bundle-messages payload: %w", err)
		}
		_, err := app.BundleMessages(ctx, key)
		return err
	}
}
