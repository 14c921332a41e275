package outbox_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/memstore"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/outmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newScheduler(store outbox.CommandStore, registry *outbox.Registry) *outbox.Scheduler {
	return outbox.NewScheduler(store, registry, clockwork.NewFakeClockAt(testTime), outbox.DefaultConfig())
}

func enqueue(t *testing.T, store *memstore.Store, kind models.CommandKind, payload json.RawMessage, at time.Time) {
	t.Helper()
	require.NoError(t, store.Enqueue(context.Background(), outbox.NewCommand{
		Kind:        kind,
		Payload:     payload,
		ScheduledAt: at,
	}))
}

func TestProcessPendingExecutesDueCommands(t *testing.T) {
	store := memstore.New()
	registry := outbox.NewRegistry()

	var mu sync.Mutex
	var seen []string
	require.NoError(t, registry.Register("RECORD", func(ctx context.Context, payload json.RawMessage) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(payload))
		return nil
	}))

	enqueue(t, store, "RECORD", json.RawMessage(`"due"`), testTime.Add(-time.Minute))
	enqueue(t, store, "RECORD", json.RawMessage(`"future"`), testTime.Add(time.Hour))

	newScheduler(store, registry).ProcessPending(context.Background())

	assert.Equal(t, []string{`"due"`}, seen)

	commands := store.Commands()
	require.Len(t, commands, 2)
	for _, cmd := range commands {
		if string(cmd.Payload) == `"due"` {
			assert.NotNil(t, cmd.ProcessedAt)
			assert.Nil(t, cmd.ErrorMessage)
		} else {
			assert.Nil(t, cmd.ProcessedAt)
		}
	}
}

func TestProcessPendingIsolatesHandlerFailures(t *testing.T) {
	store := memstore.New()
	registry := outbox.NewRegistry()

	var succeeded int
	require.NoError(t, registry.Register("FAIL", func(ctx context.Context, _ json.RawMessage) error {
		return fmt.Errorf("downstream unavailable")
	}))
	require.NoError(t, registry.Register("OK", func(ctx context.Context, _ json.RawMessage) error {
		succeeded++
		return nil
	}))

	enqueue(t, store, "FAIL", json.RawMessage(`{}`), testTime.Add(-2*time.Minute))
	enqueue(t, store, "OK", json.RawMessage(`{}`), testTime.Add(-time.Minute))

	newScheduler(store, registry).ProcessPending(context.Background())

	assert.Equal(t, 1, succeeded)
	for _, cmd := range store.Commands() {
		require.NotNil(t, cmd.ProcessedAt, "kind %s", cmd.Kind)
		if cmd.Kind == "FAIL" {
			require.NotNil(t, cmd.ErrorMessage)
			assert.Contains(t, *cmd.ErrorMessage, "downstream unavailable")
		} else {
			assert.Nil(t, cmd.ErrorMessage)
		}
	}
}

func TestProcessPendingRetriesTransientFailures(t *testing.T) {
	store := memstore.New()
	registry := outbox.NewRegistry()

	attempts := 0
	require.NoError(t, registry.Register("FLAKY", func(ctx context.Context, _ json.RawMessage) error {
		attempts++
		if attempts == 1 {
			return outbox.Transient(fmt.Errorf("storage timeout"))
		}
		return nil
	}))

	enqueue(t, store, "FLAKY", json.RawMessage(`{}`), testTime.Add(-time.Minute))
	scheduler := newScheduler(store, registry)

	// The transient failure aborts the claim: the command is neither
	// consumed nor marked failed.
	scheduler.ProcessPending(context.Background())
	commands := store.Commands()
	require.Len(t, commands, 1)
	assert.Nil(t, commands[0].ProcessedAt)
	assert.Nil(t, commands[0].ErrorMessage)

	// The next cycle claims it again and succeeds.
	scheduler.ProcessPending(context.Background())
	assert.Equal(t, 2, attempts)
	commands = store.Commands()
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].ProcessedAt)
	assert.Nil(t, commands[0].ErrorMessage)
}

func TestProcessPendingRecoversHandlerPanic(t *testing.T) {
	store := memstore.New()
	registry := outbox.NewRegistry()
	require.NoError(t, registry.Register("PANIC", func(ctx context.Context, _ json.RawMessage) error {
		panic("boom")
	}))

	enqueue(t, store, "PANIC", json.RawMessage(`{}`), testTime.Add(-time.Minute))

	newScheduler(store, registry).ProcessPending(context.Background())

	commands := store.Commands()
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].ProcessedAt)
	require.NotNil(t, commands[0].ErrorMessage)
	assert.Contains(t, *commands[0].ErrorMessage, "boom")
}

func TestProcessPendingRecordsUnknownKind(t *testing.T) {
	store := memstore.New()
	enqueue(t, store, "UNKNOWN", json.RawMessage(`{}`), testTime.Add(-time.Minute))

	newScheduler(store, outbox.NewRegistry()).ProcessPending(context.Background())

	commands := store.Commands()
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].ProcessedAt)
	require.NotNil(t, commands[0].ErrorMessage)
	assert.Contains(t, *commands[0].ErrorMessage, "no handler registered")
}

// Two schedulers polling the same store must claim disjoint commands: a
// CreateOutgoingMessages command for two copies processed by two concurrent
// pollers yields exactly two messages, not four.
func TestConcurrentPollersClaimDisjointCommands(t *testing.T) {
	store := memstore.New()
	clock := clockwork.NewFakeClockAt(testTime)
	app := outmsg.NewApp(store, clock)

	registry := outbox.NewRegistry()
	require.NoError(t, registry.Register(models.CommandCreateOutgoingMessages, outmsg.NewCreateMessagesHandler(app)))

	payload, err := json.Marshal(outmsg.CreateMessagesPayload{
		Count: 2,
		Message: outmsg.NewMessage{
			DocumentType:   models.DocNotifyEnergyResult,
			BusinessReason: models.ReasonBalanceFixing,
			Sender:         models.Actor{Number: "5790001330552", Role: models.RoleMeteredDataAdministrator},
			Receiver:       models.Actor{Number: "5790000701278", Role: models.RoleEnergySupplier},
			Record:         json.RawMessage(`{"transaction_id":"txn-1"}`),
		},
	})
	require.NoError(t, err)
	enqueue(t, store, models.CommandCreateOutgoingMessages, payload, testTime.Add(-time.Minute))

	first := outbox.NewScheduler(store, registry, clock, outbox.DefaultConfig())
	second := outbox.NewScheduler(store, registry, clock, outbox.DefaultConfig())

	var wg sync.WaitGroup
	for _, s := range []*outbox.Scheduler{first, second} {
		wg.Add(1)
		go func(s *outbox.Scheduler) {
			defer wg.Done()
			s.ProcessPending(context.Background())
		}(s)
	}
	wg.Wait()

	assert.Len(t, store.Messages(), 2)
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	registry := outbox.NewRegistry()
	handler := func(ctx context.Context, _ json.RawMessage) error { return nil }

	require.NoError(t, registry.Register("KIND", handler))
	assert.Error(t, registry.Register("KIND", handler))
	assert.Error(t, registry.Register("", handler))
	assert.Error(t, registry.Register("OTHER", nil))
}
