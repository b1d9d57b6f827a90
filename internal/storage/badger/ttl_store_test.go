package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	config := &common.BadgerConfig{
		Path: t.TempDir(),
	}
	db, err := NewBadgerDB(common.GetLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTTLStore_SetGet(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	require.NoError(t, store.SetWithTTL("cookies:user1:sess_a", []byte("payload"), time.Minute))

	value, err := store.Get("cookies:user1:sess_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)
}

func TestTTLStore_GetMissing(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	_, err := store.Get("cookies:nobody:nothing")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestTTLStore_Expiry(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	require.NoError(t, store.SetWithTTL("short", []byte("gone soon"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := store.Get("short")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound, "expired keys must look absent")
}

func TestTTLStore_Delete(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	require.NoError(t, store.SetWithTTL("k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete("k"))

	_, err := store.Get("k")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	// Deleting an absent key is a no-op
	assert.NoError(t, store.Delete("k"))
}

func TestTTLStore_Overwrite(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	require.NoError(t, store.SetWithTTL("k", []byte("old"), time.Minute))
	require.NoError(t, store.SetWithTTL("k", []byte("new"), time.Minute))

	value, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), value)
}

func TestTTLStore_RejectsInvalidInput(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())

	assert.Error(t, store.SetWithTTL("", []byte("v"), time.Minute))
	assert.Error(t, store.SetWithTTL("k", []byte("v"), 0))
}

func TestTTLStore_Ping(t *testing.T) {
	store := NewTTLStore(newTestDB(t), common.GetLogger())
	assert.NoError(t, store.Ping())
}
