package retention_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/memstore"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/retention"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	receiver = models.Actor{Number: "5790000701278", Role: models.RoleEnergySupplier}
)

// seedReadyBundle creates a Ready bundle with the given number of attached
// messages and a rendered market document.
func seedReadyBundle(t *testing.T, store *memstore.Store, reason models.BusinessReason, messages int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	key := models.BundleKey{
		Receiver:       receiver,
		DocumentType:   models.DocNotifyEnergyResult,
		BusinessReason: reason,
	}

	var ids []uuid.UUID
	for i := 0; i < messages; i++ {
		msg := models.OutgoingMessage{
			ID:             uuid.New(),
			DocumentType:   key.DocumentType,
			BusinessReason: key.BusinessReason,
			Sender:         models.Actor{Number: "5790001330552", Role: models.RoleMeteredDataAdministrator},
			Receiver:       key.Receiver,
			Record:         json.RawMessage(`{"transaction_id":"txn-1"}`),
			CreatedAt:      testTime,
		}
		require.NoError(t, store.Insert(ctx, msg))
		ids = append(ids, msg.ID)
	}

	bundleID, err := store.EnsureOpen(ctx, key, uuid.New(), testTime)
	require.NoError(t, err)
	require.NoError(t, store.AssignBundle(ctx, ids, bundleID))
	require.NoError(t, store.Close(ctx, bundleID, testTime))
	require.NoError(t, store.MarkReady(ctx, bundleID, "outgoing-messages/test/"+bundleID.String()+".xml", testTime))
	return bundleID
}

func TestSweepRemovesOnlyDequeuedBundles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	dequeued := seedReadyBundle(t, store, models.ReasonBalanceFixing, 2)
	kept := seedReadyBundle(t, store, models.ReasonPreliminaryAggregation, 1)

	_, ok, err := store.Dequeue(ctx, receiver, dequeued)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := store.Sweep(ctx, testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Bundles)
	assert.Equal(t, int64(2), result.Messages)
	assert.Equal(t, int64(1), result.Documents)

	// The undelivered bundle and its messages survive untouched.
	remaining, err := store.Get(ctx, kept)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, remaining.State)
	assert.Len(t, store.Messages(), 1)
	assert.Len(t, store.MarketDocuments(), 1)

	// A second sweep finds nothing left to remove.
	again, err := store.Sweep(ctx, testTime)
	require.NoError(t, err)
	assert.Equal(t, retention.SweepResult{}, again)
}

func TestSweepKeepsPendingCommands(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	old := testTime.Add(-40 * 24 * time.Hour)
	recent := testTime.Add(-time.Hour)
	for _, scheduledAt := range []time.Time{old, recent} {
		require.NoError(t, store.Enqueue(ctx, outbox.NewCommand{
			Kind:        models.CommandBundleMessages,
			Payload:     json.RawMessage(`{}`),
			ScheduledAt: scheduledAt,
		}))
	}
	// Mark both processed at their scheduled times.
	for _, at := range []time.Time{old, recent} {
		processed, err := store.ProcessDue(ctx, at, 1, func(ctx context.Context, _ models.InternalCommand) error {
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, processed)
	}
	// An unprocessed command must never be swept, however old it is.
	require.NoError(t, store.Enqueue(ctx, outbox.NewCommand{
		Kind:        models.CommandNotifyHub,
		Payload:     json.RawMessage(`{}`),
		ScheduledAt: old,
	}))

	horizon := testTime.Add(-30 * 24 * time.Hour)
	result, err := store.Sweep(ctx, horizon)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Commands)

	commands := store.Commands()
	require.Len(t, commands, 2)
	for _, cmd := range commands {
		if cmd.ProcessedAt != nil {
			assert.Equal(t, recent, *cmd.ProcessedAt)
		} else {
			assert.Equal(t, models.CommandNotifyHub, cmd.Kind)
		}
	}
}

func TestSweeperCleanupUsesConfiguredHorizon(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clock := clockwork.NewFakeClockAt(testTime)

	processedAt := testTime.Add(-8 * 24 * time.Hour)
	require.NoError(t, store.Enqueue(ctx, outbox.NewCommand{
		Kind:        models.CommandBundleMessages,
		Payload:     json.RawMessage(`{}`),
		ScheduledAt: processedAt,
	}))
	_, err := store.ProcessDue(ctx, processedAt, 1, func(ctx context.Context, _ models.InternalCommand) error {
		return nil
	})
	require.NoError(t, err)

	cfg := retention.Config{Interval: time.Hour, CommandMaxAge: 7 * 24 * time.Hour}
	retention.NewSweeper(store, clock, cfg).Cleanup(ctx)

	assert.Empty(t, store.Commands())
}
