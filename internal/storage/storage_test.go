package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkthub/edi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKey(t *testing.T) {
	receiver := models.Actor{Number: "5790000701278", Role: models.RoleEnergySupplier}
	bundleID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	createdAt := time.Date(2026, 8, 30, 23, 30, 0, 0, time.FixedZone("CEST", 2*60*60))

	key := DocumentKey(receiver, createdAt, bundleID, models.FormatCIMXML)
	// The date facet is the UTC calendar day.
	assert.Equal(t, "outgoing-messages/5790000701278/2026-08-30/11111111-2222-3333-4444-555555555555.xml", key)

	key = DocumentKey(receiver, createdAt, bundleID, models.FormatJSON)
	assert.True(t, strings.HasSuffix(key, ".json"))
}

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDiskStore(t.TempDir())

	ref, err := store.Upload(ctx, "outgoing-messages/actor/2026-08-30/doc.xml", strings.NewReader("<doc/>"))
	require.NoError(t, err)

	obj, err := store.Download(ctx, ref)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", string(data))
}

func TestDiskStoreDownloadMissing(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	_, err := store.Download(context.Background(), "outgoing-messages/missing.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStoreUploadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewDiskStore(t.TempDir())
	_, err := store.Upload(ctx, "doc.xml", strings.NewReader("<doc/>"))
	assert.Error(t, err)

	_, err = store.Download(context.Background(), "doc.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ref, err := store.Upload(ctx, "doc.json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	obj, err := store.Download(ctx, ref)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	_, err = store.Download(ctx, "other.json")
	assert.ErrorIs(t, err, ErrNotFound)
}
