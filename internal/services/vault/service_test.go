package vault

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// memStore is an in-memory TTLStore for vault tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]memEntry)}
}

func (m *memStore) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *memStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, interfaces.ErrKeyNotFound
	}
	return entry.value, nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memStore) Ping() error { return nil }

const testKey = "0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T, store interfaces.TTLStore, ttl time.Duration) *Service {
	t.Helper()

	service, err := NewService(store, &common.VaultConfig{
		EncryptionKey: testKey,
		CookieTTL:     ttl,
	}, common.GetLogger())
	require.NoError(t, err)
	return service
}

func TestVault_SetGet(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	require.NoError(t, vault.Set("user1", "sess_a", "example.com", []byte("cookie payload")))

	payload, err := vault.Get("user1", "sess_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("cookie payload"), payload)
}

func TestVault_PayloadEncryptedAtRest(t *testing.T) {
	store := newMemStore()
	vault := newTestVault(t, store, time.Hour)

	require.NoError(t, vault.Set("user1", "sess_a", "example.com", []byte("secret-cookie-value")))

	raw, err := store.Get("cookies:user1:sess_a")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-cookie-value", "plaintext must never touch the store")
}

func TestVault_GetMissing(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	_, err := vault.Get("user1", "sess_missing")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)
}

func TestVault_GetByDomain(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	require.NoError(t, vault.Set("user1", "sess_a", "example.com", []byte("payload")))

	payload, err := vault.GetByDomain("user1", "example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)

	_, err = vault.GetByDomain("user1", "other.com")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)

	_, err = vault.GetByDomain("user2", "example.com")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies, "vault entries are scoped per user")
}

func TestVault_LazyExpiry(t *testing.T) {
	store := newMemStore()
	vault := newTestVault(t, store, time.Hour)

	// Plant an envelope whose own deadline has passed even though the store
	// entry is still live. Simulates clock drift between writer and reader.
	nonce := make([]byte, vault.aead.NonceSize())
	env := envelope{
		Domain:     "example.com",
		SessionID:  "sess_a",
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-time.Hour),
		Nonce:      nonce,
		Ciphertext: vault.aead.Seal(nil, nonce, []byte("payload"), nil),
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, store.SetWithTTL("cookies:user1:sess_a", data, time.Hour))
	require.NoError(t, store.SetWithTTL("cookiedom:user1:example.com", []byte("sess_a"), time.Hour))

	_, err = vault.Get("user1", "sess_a")
	assert.ErrorIs(t, err, interfaces.ErrCookiesExpired)

	// Delete-on-read: the next lookup is a clean miss, domain pointer included.
	_, err = vault.Get("user1", "sess_a")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)
	_, err = vault.GetByDomain("user1", "example.com")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)
}

func TestVault_Delete(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	require.NoError(t, vault.Set("user1", "sess_a", "example.com", []byte("payload")))
	require.NoError(t, vault.Delete("user1", "sess_a"))

	_, err := vault.Get("user1", "sess_a")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)

	// Deleting again is a no-op
	assert.NoError(t, vault.Delete("user1", "sess_a"))
}

func TestVault_InvalidateDomain(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	require.NoError(t, vault.Set("user1", "sess_a", "example.com", []byte("payload")))
	require.NoError(t, vault.InvalidateDomain("user1", "example.com"))

	_, err := vault.GetByDomain("user1", "example.com")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)
	_, err = vault.Get("user1", "sess_a")
	assert.ErrorIs(t, err, interfaces.ErrNoCookies)

	// Invalidating an unknown domain is a no-op
	assert.NoError(t, vault.InvalidateDomain("user1", "unknown.com"))
}

func TestVault_NetscapeCookies(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	cookies := []models.Cookie{
		{Name: "session", Value: "abc", Domain: ".example.com", Path: "/", Secure: true, Expires: 1900000000},
	}
	require.NoError(t, vault.SetNetscapeCookies("user1", "sess_a", "example.com", cookies))

	got, err := vault.GetNetscapeCookies("user1", "sess_a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session", got[0].Name)
	assert.Equal(t, "abc", got[0].Value)

	// Raw payload is valid Netscape format ready for the download utility
	payload, err := vault.Get("user1", "sess_a")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "# Netscape HTTP Cookie File")
}

func TestVault_RejectsEmptyCookieSet(t *testing.T) {
	vault := newTestVault(t, newMemStore(), time.Hour)

	err := vault.SetNetscapeCookies("user1", "sess_a", "example.com", nil)
	assert.Error(t, err)

	// Nameless cookies format to nothing; that is still an empty set.
	err = vault.SetNetscapeCookies("user1", "sess_a", "example.com", []models.Cookie{{Value: "v"}})
	assert.Error(t, err)
}

func TestNewService_RejectsShortKey(t *testing.T) {
	_, err := NewService(newMemStore(), &common.VaultConfig{
		EncryptionKey: "short",
		CookieTTL:     time.Hour,
	}, common.GetLogger())
	assert.Error(t, err)
}
