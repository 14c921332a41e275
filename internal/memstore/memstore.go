// Package memstore provides an in-memory implementation of the persistence
// ports, mirroring the atomicity the Postgres repositories get from the
// database: open-bundle uniqueness per tuple and disjoint command claims. It
// backs the unit tests and local runs without Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/retention"
)

// Store holds every table behind one lock.
type Store struct {
	mu        sync.Mutex
	messages  []*models.OutgoingMessage
	bundles   []*models.Bundle
	documents []*models.MarketDocument
	commands  []*models.InternalCommand
	claimed   map[uuid.UUID]bool
}

func New() *Store {
	return &Store{claimed: make(map[uuid.UUID]bool)}
}

// Outgoing messages

func (s *Store) InsertWithCommand(ctx context.Context, msg models.OutgoingMessage, cmd outbox.NewCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := msg
	s.messages = append(s.messages, &m)
	c := models.InternalCommand{
		ID:          uuid.New(),
		Kind:        cmd.Kind,
		Payload:     cmd.Payload,
		ScheduledAt: cmd.ScheduledAt,
		CreatedAt:   cmd.ScheduledAt,
	}
	s.commands = append(s.commands, &c)
	return nil
}

func (s *Store) Insert(ctx context.Context, msg models.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := msg
	s.messages = append(s.messages, &m)
	return nil
}

func (s *Store) ListUnbundled(ctx context.Context, key models.BundleKey) ([]models.OutgoingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutgoingMessage
	for _, m := range s.messages {
		if m.BundleID == nil && m.Key() == key {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) AssignBundle(ctx context.Context, ids []uuid.UUID, bundleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, m := range s.messages {
		if want[m.ID] && m.BundleID == nil {
			id := bundleID
			m.BundleID = &id
		}
	}
	return nil
}

func (s *Store) ListByBundle(ctx context.Context, bundleID uuid.UUID) ([]models.OutgoingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OutgoingMessage
	for _, m := range s.messages {
		if m.BundleID != nil && *m.BundleID == bundleID {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) ListReadyToPublish(ctx context.Context, limit int32) ([]models.OutgoingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ready := make(map[uuid.UUID]bool)
	for _, b := range s.bundles {
		if b.State == models.BundleStateReady {
			ready[b.ID] = true
		}
	}
	var out []models.OutgoingMessage
	for _, m := range s.messages {
		if !m.Published && m.BundleID != nil && ready[*m.BundleID] {
			out = append(out, *m)
			if int32(len(out)) == limit {
				break
			}
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			m.Published = true
			return nil
		}
	}
	return fmt.Errorf("outgoing message %s not found", id)
}

// Bundles

func (s *Store) EnsureOpen(ctx context.Context, key models.BundleKey, newID uuid.UUID, now time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.State == models.BundleStateOpen && b.Key() == key {
			return b.ID, nil
		}
	}
	b := models.Bundle{
		ID:             newID,
		Receiver:       key.Receiver,
		DocumentType:   key.DocumentType,
		BusinessReason: key.BusinessReason,
		State:          models.BundleStateOpen,
		CreatedAt:      now,
	}
	s.bundles = append(s.bundles, &b)
	return b.ID, nil
}

func (s *Store) FindCurrent(ctx context.Context, key models.BundleKey) (*models.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.Key() == key && (b.State == models.BundleStateOpen || b.State == models.BundleStateClosing) {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.ID == id {
			copied := *b
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("bundle %s not found", id)
}

func (s *Store) Close(ctx context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.ID == id && b.State == models.BundleStateOpen {
			b.State = models.BundleStateClosing
			closedAt := now
			b.ClosedAt = &closedAt
		}
	}
	return nil
}

func (s *Store) MarkReady(ctx context.Context, id uuid.UUID, ref string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.ID != id {
			continue
		}
		switch b.State {
		case models.BundleStateClosing:
			b.State = models.BundleStateReady
			storageRef := ref
			b.StorageRef = &storageRef
			s.documents = append(s.documents, &models.MarketDocument{
				BundleID:   id,
				StorageRef: ref,
				CreatedAt:  now,
			})
			return nil
		case models.BundleStateReady, models.BundleStateDequeued:
			// Another caller finished the bundle first.
			return nil
		default:
			return fmt.Errorf("bundle %s in state %s cannot become ready", id, b.State)
		}
	}
	return fmt.Errorf("bundle %s not found", id)
}

func (s *Store) PeekReady(ctx context.Context, receiver models.Actor) (*models.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.Bundle
	for _, b := range s.bundles {
		if b.Receiver == receiver && b.State == models.BundleStateReady {
			if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
				oldest = b
			}
		}
	}
	if oldest == nil {
		return nil, nil
	}
	copied := *oldest
	return &copied, nil
}

func (s *Store) Dequeue(ctx context.Context, receiver models.Actor, id uuid.UUID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bundles {
		if b.ID == id && b.Receiver == receiver && b.State == models.BundleStateReady {
			if b.StorageRef == nil {
				return "", false, fmt.Errorf("ready bundle %s has no storage reference", id)
			}
			b.State = models.BundleStateDequeued
			return *b.StorageRef, true, nil
		}
	}
	return "", false, nil
}

// Commands

func (s *Store) Enqueue(ctx context.Context, cmd outbox.NewCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.InternalCommand{
		ID:          uuid.New(),
		Kind:        cmd.Kind,
		Payload:     cmd.Payload,
		ScheduledAt: cmd.ScheduledAt,
		CreatedAt:   cmd.ScheduledAt,
	}
	s.commands = append(s.commands, &c)
	return nil
}

// ProcessDue claims due commands under the store lock, runs the handlers
// outside it, then records the outcomes. A row stays invisible to concurrent
// callers from claim to outcome, matching the row-lock behavior of the
// Postgres repository.
func (s *Store) ProcessDue(ctx context.Context, now time.Time, limit int32, fn func(ctx context.Context, cmd models.InternalCommand) error) (int, error) {
	s.mu.Lock()
	var batch []models.InternalCommand
	for _, c := range s.commands {
		if c.Pending(now) && !s.claimed[c.ID] {
			s.claimed[c.ID] = true
			batch = append(batch, *c)
			if int32(len(batch)) == limit {
				break
			}
		}
	}
	s.mu.Unlock()

	processed := 0
	for _, cmd := range batch {
		execErr := fn(ctx, cmd)

		s.mu.Lock()
		if execErr != nil && outbox.IsTransient(execErr) {
			// Abort the claim; the command stays pending for a later cycle.
			delete(s.claimed, cmd.ID)
			s.mu.Unlock()
			continue
		}
		for _, c := range s.commands {
			if c.ID == cmd.ID {
				processedAt := now
				c.ProcessedAt = &processedAt
				if execErr != nil {
					msg := execErr.Error()
					c.ErrorMessage = &msg
				}
			}
		}
		delete(s.claimed, cmd.ID)
		s.mu.Unlock()
		processed++
	}
	return processed, nil
}

// Retention

func (s *Store) Sweep(ctx context.Context, commandsBefore time.Time) (retention.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dequeued := make(map[uuid.UUID]bool)
	for _, b := range s.bundles {
		if b.State == models.BundleStateDequeued {
			dequeued[b.ID] = true
		}
	}

	var result retention.SweepResult

	var documents []*models.MarketDocument
	for _, d := range s.documents {
		if dequeued[d.BundleID] {
			result.Documents++
			continue
		}
		documents = append(documents, d)
	}
	s.documents = documents

	var messages []*models.OutgoingMessage
	for _, m := range s.messages {
		if m.BundleID != nil && dequeued[*m.BundleID] {
			result.Messages++
			continue
		}
		messages = append(messages, m)
	}
	s.messages = messages

	var bundles []*models.Bundle
	for _, b := range s.bundles {
		if dequeued[b.ID] {
			result.Bundles++
			continue
		}
		bundles = append(bundles, b)
	}
	s.bundles = bundles

	var commands []*models.InternalCommand
	for _, c := range s.commands {
		if c.ProcessedAt != nil && c.ProcessedAt.Before(commandsBefore) {
			result.Commands++
			continue
		}
		commands = append(commands, c)
	}
	s.commands = commands

	return result, nil
}

// Inspection helpers

func (s *Store) Messages() []models.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutgoingMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

func (s *Store) Bundles() []models.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Bundle, len(s.bundles))
	for i, b := range s.bundles {
		out[i] = *b
	}
	return out
}

func (s *Store) MarketDocuments() []models.MarketDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MarketDocument, len(s.documents))
	for i, d := range s.documents {
		out[i] = *d
	}
	return out
}

func (s *Store) Commands() []models.InternalCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.InternalCommand, len(s.commands))
	for i, c := range s.commands {
		out[i] = *c
	}
	return out
}

func sortMessages(messages []models.OutgoingMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
