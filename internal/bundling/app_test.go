package bundling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkthub/edi/internal/codec"
	"github.com/mkthub/edi/internal/memstore"
	"github.com/mkthub/edi/internal/models"
	"github.com/mkthub/edi/internal/outbox"
	"github.com/mkthub/edi/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSender   = models.Actor{Number: "5790001330552", Role: models.RoleMeteredDataAdministrator}
	testReceiver = models.Actor{Number: "5790000701278", Role: models.RoleEnergySupplier}
)

func testKey() models.BundleKey {
	return models.BundleKey{
		Receiver:       testReceiver,
		DocumentType:   models.DocNotifyEnergyResult,
		BusinessReason: models.ReasonBalanceFixing,
	}
}

func testRecord(t *testing.T, transactionID string) json.RawMessage {
	t.Helper()
	record, err := json.Marshal(codec.EnergyResultSeries{
		TransactionID:     transactionID,
		GridArea:          "543",
		MeteringPointType: models.MeteringPointConsumption,
		MeasureUnit:       "KWH",
		Period: codec.EnergyResultSeriesPeriod{
			Resolution: "PT15M",
			Start:      time.Date(2026, 8, 29, 22, 0, 0, 0, time.UTC),
			End:        time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC),
		},
		CalculationVersion: 1,
	})
	require.NoError(t, err)
	return record
}

func newTestApp(t *testing.T, store *memstore.Store, files storage.FileStore) *App {
	t.Helper()
	registry, err := codec.NewRegistry()
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	return NewApp(store, store, registry, files, clock, DefaultConfig(testSender))
}

func insertMessage(t *testing.T, store *memstore.Store, key models.BundleKey, transactionID string, createdAt time.Time) uuid.UUID {
	t.Helper()
	msg := models.OutgoingMessage{
		ID:             uuid.New(),
		DocumentType:   key.DocumentType,
		BusinessReason: key.BusinessReason,
		Sender:         testSender,
		Receiver:       key.Receiver,
		Record:         testRecord(t, transactionID),
		CreatedAt:      createdAt,
	}
	require.NoError(t, store.Insert(context.Background(), msg))
	return msg.ID
}

func TestBundleMessagesGroupsUnbundledMessages(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	files := storage.NewMemoryStore()
	app := newTestApp(t, store, files)

	base := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	first := insertMessage(t, store, testKey(), "txn-1", base)
	second := insertMessage(t, store, testKey(), "txn-2", base.Add(time.Minute))

	bundleID, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, bundleID)

	bundle, err := store.Get(ctx, bundleID)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, bundle.State)
	require.NotNil(t, bundle.StorageRef)

	attached, err := store.ListByBundle(ctx, bundleID)
	require.NoError(t, err)
	require.Len(t, attached, 2)
	assert.Equal(t, first, attached[0].ID)
	assert.Equal(t, second, attached[1].ID)

	require.Len(t, store.MarketDocuments(), 1)
	assert.Equal(t, bundleID, store.MarketDocuments()[0].BundleID)

	obj, err := files.Download(ctx, *bundle.StorageRef)
	require.NoError(t, err)
	defer obj.Close()
	rendered, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "txn-1")
	assert.Contains(t, string(rendered), "txn-2")
}

func TestBundleMessagesNoOpWithoutPendingMessages(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	bundleID, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, bundleID)
	assert.Empty(t, store.Bundles())
}

func TestBundleMessagesConcurrentCallsShareOneBundle(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	base := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	insertMessage(t, store, testKey(), "txn-1", base)
	insertMessage(t, store, testKey(), "txn-2", base.Add(time.Second))

	var wg sync.WaitGroup
	results := make([]uuid.UUID, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = app.BundleMessages(ctx, testKey())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one bundle was rendered regardless of how the two runs
	// interleaved, and it holds both messages.
	var ready []models.Bundle
	for _, b := range store.Bundles() {
		if b.State == models.BundleStateReady {
			ready = append(ready, b)
		}
	}
	require.Len(t, ready, 1)

	attached, err := store.ListByBundle(ctx, ready[0].ID)
	require.NoError(t, err)
	assert.Len(t, attached, 2)
	assert.Len(t, store.MarketDocuments(), 1)
}

// faultyFileStore fails every Upload while broken is set, delegating to the
// wrapped store otherwise.
type faultyFileStore struct {
	storage.FileStore
	broken bool
}

func (f *faultyFileStore) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	if f.broken {
		return "", errors.New("storage unavailable")
	}
	return f.FileStore.Upload(ctx, key, r)
}

func TestBundleMessagesRetriesAfterUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	files := &faultyFileStore{FileStore: storage.NewMemoryStore(), broken: true}
	app := newTestApp(t, store, files)

	insertMessage(t, store, testKey(), "txn-1", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))

	_, err := app.BundleMessages(ctx, testKey())
	require.Error(t, err)
	assert.True(t, outbox.IsTransient(err))

	// The bundle survives the failed upload as Closing, with nothing
	// rendered yet.
	bundles := store.Bundles()
	require.Len(t, bundles, 1)
	assert.Equal(t, models.BundleStateClosing, bundles[0].State)
	assert.Nil(t, bundles[0].StorageRef)
	assert.Empty(t, store.MarketDocuments())

	files.broken = false
	resumed, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, bundles[0].ID, resumed)

	bundle, err := store.Get(ctx, resumed)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, bundle.State)
	require.Len(t, store.MarketDocuments(), 1)
}

func TestBundleMessagesOpensNewBundleAfterReady(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	base := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	firstMsg := insertMessage(t, store, testKey(), "txn-1", base)
	first, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)

	// A message arriving after the first bundle is Ready must go into a
	// fresh bundle; a rendered bundle never grows.
	insertMessage(t, store, testKey(), "txn-2", base.Add(time.Hour))
	second, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, second)
	assert.NotEqual(t, first, second)

	attached, err := store.ListByBundle(ctx, first)
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, firstMsg, attached[0].ID)

	secondBundle, err := store.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, secondBundle.State)
	assert.Len(t, store.MarketDocuments(), 2)
}

func TestBundleMessagesSeparatesTuples(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	otherKey := testKey()
	otherKey.BusinessReason = models.ReasonPreliminaryAggregation

	base := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	insertMessage(t, store, testKey(), "txn-1", base)
	insertMessage(t, store, otherKey, "txn-2", base)

	first, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)
	second, err := app.BundleMessages(ctx, otherKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, store.Bundles(), 2)
}

func TestPeekAndDequeue(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	insertMessage(t, store, testKey(), "txn-1", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))
	bundleID, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)

	peeked, err := app.Peek(ctx, testReceiver)
	require.NoError(t, err)
	require.NotNil(t, peeked)
	assert.Equal(t, bundleID, peeked.ID)

	// Peek does not consume: the same bundle is still at the head.
	again, err := app.Peek(ctx, testReceiver)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, bundleID, again.ID)

	ref, ok, err := app.Dequeue(ctx, testReceiver, bundleID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, ref)

	// A second dequeue of the same bundle is a no-op, not an error.
	_, ok, err = app.Dequeue(ctx, testReceiver, bundleID)
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := app.Peek(ctx, testReceiver)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestDequeueRejectsWrongReceiver(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	insertMessage(t, store, testKey(), "txn-1", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))
	bundleID, err := app.BundleMessages(ctx, testKey())
	require.NoError(t, err)

	stranger := models.Actor{Number: "5790000432752", Role: models.RoleEnergySupplier}
	_, ok, err := app.Dequeue(ctx, stranger, bundleID)
	require.NoError(t, err)
	assert.False(t, ok)

	bundle, err := store.Get(ctx, bundleID)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, bundle.State)
}

func TestBundleMessagesResumesClosingBundle(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())

	// Simulate a run that crashed after closing the bundle but before the
	// document was uploaded.
	key := testKey()
	msgID := insertMessage(t, store, key, "txn-1", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))
	bundleID, err := app.EnsureBundle(ctx, key)
	require.NoError(t, err)
	require.NoError(t, store.AssignBundle(ctx, []uuid.UUID{msgID}, bundleID))
	require.NoError(t, store.Close(ctx, bundleID, time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC)))

	resumed, err := app.BundleMessages(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, bundleID, resumed)

	bundle, err := store.Get(ctx, bundleID)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, bundle.State)
	require.Len(t, store.MarketDocuments(), 1)
}

func TestNewBundleMessagesHandlerDecodesKey(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	app := newTestApp(t, store, storage.NewMemoryStore())
	handler := NewBundleMessagesHandler(app)

	insertMessage(t, store, testKey(), "txn-1", time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))

	payload, err := json.Marshal(testKey())
	require.NoError(t, err)
	require.NoError(t, handler(ctx, payload))

	bundles := store.Bundles()
	require.Len(t, bundles, 1)
	assert.Equal(t, models.BundleStateReady, bundles[0].State)

	assert.Error(t, handler(ctx, json.RawMessage(`{`)))
}
