package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// envelope is the stored record. The cookie payload is encrypted; everything
// else is metadata needed for lazy expiry and diagnostics. Payloads are never
// logged.
type envelope struct {
	Domain     string    `json:"domain"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// Service implements the CookieVault interface. Cookies are encrypted with
// AES-256-GCM under a key derived from the configured key material and stored
// in the TTL store; Badger expires them natively, and an envelope-level
// expiry check covers clock drift between writer and reader.
type Service struct {
	store  interfaces.TTLStore
	aead   cipher.AEAD
	ttl    time.Duration
	logger arbor.ILogger
}

// NewService creates a cookie vault backed by the given TTL store
func NewService(store interfaces.TTLStore, config *common.VaultConfig, logger arbor.ILogger) (*Service, error) {
	if len(config.EncryptionKey) < 32 {
		return nil, fmt.Errorf("vault encryption key must be at least 32 characters")
	}

	key := sha256.Sum256([]byte(config.EncryptionKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Service{
		store:  store,
		aead:   aead,
		ttl:    config.CookieTTL,
		logger: logger,
	}, nil
}

func cookieKey(userID, sessionID string) string {
	return "cookies:" + userID + ":" + sessionID
}

func domainKey(userID, domain string) string {
	return "cookiedom:" + userID + ":" + domain
}

// Set encrypts and stores a cookie payload under (userID, sessionID) with the
// vault's TTL, and points the domain entry at it.
func (s *Service) Set(userID, sessionID, domain string, payload []byte) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("userID and sessionID are required")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	env := envelope{
		Domain:     domain,
		SessionID:  sessionID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		Nonce:      nonce,
		Ciphertext: s.aead.Seal(nil, nonce, payload, nil),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := s.store.SetWithTTL(cookieKey(userID, sessionID), data, s.ttl); err != nil {
		return err
	}

	if domain != "" {
		if err := s.store.SetWithTTL(domainKey(userID, domain), []byte(sessionID), s.ttl); err != nil {
			return err
		}
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("session_id", sessionID).
		Str("domain", domain).
		Dur("ttl", s.ttl).
		Msg("Stored encrypted cookies")
	return nil
}

// Get returns the decrypted payload for (userID, sessionID)
func (s *Service) Get(userID, sessionID string) ([]byte, error) {
	return s.open(userID, cookieKey(userID, sessionID))
}

// GetByDomain resolves the domain pointer and returns the decrypted payload
// for the newest session on that domain.
func (s *Service) GetByDomain(userID, domain string) ([]byte, error) {
	sessionID, err := s.store.Get(domainKey(userID, domain))
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil, interfaces.ErrNoCookies
		}
		return nil, err
	}
	return s.open(userID, cookieKey(userID, string(sessionID)))
}

func (s *Service) open(userID, key string) ([]byte, error) {
	data, err := s.store.Get(key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil, interfaces.ErrNoCookies
		}
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	// Lazy expiry: Badger usually evicts first, but the envelope carries its
	// own deadline. Delete on read so the next lookup is a clean miss.
	if time.Now().After(env.ExpiresAt) {
		_ = s.store.Delete(key)
		if env.Domain != "" {
			_ = s.store.Delete(domainKey(userID, env.Domain))
		}
		s.logger.Debug().Str("key", key).Msg("Removed expired cookie envelope on read")
		return nil, interfaces.ErrCookiesExpired
	}

	payload, err := s.aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cookies: %w", err)
	}
	return payload, nil
}

// Delete removes the stored payload. Deleting an absent key is a no-op.
func (s *Service) Delete(userID, sessionID string) error {
	return s.store.Delete(cookieKey(userID, sessionID))
}

// InvalidateDomain removes the domain pointer and its payload
func (s *Service) InvalidateDomain(userID, domain string) error {
	sessionID, err := s.store.Get(domainKey(userID, domain))
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	if err := s.store.Delete(cookieKey(userID, string(sessionID))); err != nil {
		return err
	}
	if err := s.store.Delete(domainKey(userID, domain)); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("domain", domain).
		Msg("Invalidated stored cookies for domain")
	return nil
}

// SetNetscapeCookies serializes cookies to the Netscape wire format before
// storing, so Get returns bytes ready to hand to the download utility.
func (s *Service) SetNetscapeCookies(userID, sessionID, domain string, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return fmt.Errorf("refusing to store an empty cookie set")
	}

	payload := FormatNetscape(cookies)

	// The wire format is a contract with the download utility; reject any
	// payload that does not survive the strict parser.
	parsed, err := ParseNetscape(payload)
	if err != nil {
		return fmt.Errorf("cookie payload failed round-trip validation: %w", err)
	}
	if len(parsed) == 0 {
		return fmt.Errorf("refusing to store an empty cookie set")
	}

	return s.Set(userID, sessionID, domain, []byte(payload))
}

// GetNetscapeCookies returns the stored payload parsed back into structured
// cookies.
func (s *Service) GetNetscapeCookies(userID, sessionID string) ([]models.Cookie, error) {
	payload, err := s.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return ParseNetscape(string(payload))
}

// TTL reports the vault's configured cookie lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}
