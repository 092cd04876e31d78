package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/crypto"
)

// Entry names under which session state is persisted. All values are opaque,
// encrypted-at-rest strings to their consumers.
const (
	entryAuthToken = "auth_token"
	entryProfile   = "user_profile"
	entryKeySeed   = "encryption_key"
)

var (
	// ErrNotFound is returned for absent entries. Decryption failures map to
	// it as well: a value that cannot be recovered is treated as absence, not
	// as a hard failure.
	ErrNotFound = errors.New("keystore: entry not found")
	// ErrKeyNotProvisioned is returned when no session key material exists.
	// There is no default key to fall back to; callers must fail closed.
	ErrKeyNotProvisioned = errors.New("keystore: session key not provisioned")
)

// Backend is the raw key-value layer beneath the store.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store holds per-session key material, the auth token and the profile blob.
// Token and profile are encrypted under the session key before they touch the
// backend.
type Store struct {
	backend Backend
	cipher  *crypto.CipherService
	logger  *zap.Logger
	ttl     time.Duration
}

type keySeed struct {
	Key  string `json:"key"`
	Salt string `json:"salt"`
}

// NewStore creates a session store over backend. ttl bounds the lifetime of
// every entry; zero means no expiry.
func NewStore(backend Backend, cipher *crypto.CipherService, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{backend: backend, cipher: cipher, logger: logger, ttl: ttl}
}

// ProvisionKey derives session key material from passphrase and persists it.
// Until this is called, every encrypt path for the session fails closed.
func (s *Store) ProvisionKey(ctx context.Context, sessionID, passphrase string) error {
	material, err := s.cipher.DeriveKey(passphrase, nil)
	if err != nil {
		return fmt.Errorf("keystore: failed to derive session key: %w", err)
	}
	raw, err := json.Marshal(keySeed{
		Key:  base64.StdEncoding.EncodeToString(material.Key),
		Salt: base64.StdEncoding.EncodeToString(material.Salt),
	})
	if err != nil {
		return fmt.Errorf("keystore: failed to encode key material: %w", err)
	}
	if err := s.backend.Set(ctx, s.entryKey(sessionID, entryKeySeed), string(raw), s.ttl); err != nil {
		return fmt.Errorf("keystore: failed to persist key material: %w", err)
	}
	s.logger.Info("session key provisioned", zap.String("session_id", sessionID))
	return nil
}

// SessionKey returns the provisioned key material for sessionID.
func (s *Store) SessionKey(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.backend.Get(ctx, s.entryKey(sessionID, entryKeySeed))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrKeyNotProvisioned
	}
	if err != nil {
		return nil, err
	}
	var seed keySeed
	if err := json.Unmarshal([]byte(raw), &seed); err != nil {
		return nil, ErrKeyNotProvisioned
	}
	key, err := base64.StdEncoding.DecodeString(seed.Key)
	if err != nil {
		return nil, ErrKeyNotProvisioned
	}
	return key, nil
}

// ClearSession removes all entries for sessionID.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	var firstErr error
	for _, entry := range []string{entryAuthToken, entryProfile, entryKeySeed} {
		if err := s.backend.Delete(ctx, s.entryKey(sessionID, entry)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetToken encrypts and stores the session's auth token.
func (s *Store) SetToken(ctx context.Context, sessionID, token string) error {
	return s.setEncrypted(ctx, sessionID, entryAuthToken, token)
}

// Token returns the session's auth token, or ErrNotFound when absent or
// unrecoverable.
func (s *Store) Token(ctx context.Context, sessionID string) (string, error) {
	return s.getEncrypted(ctx, sessionID, entryAuthToken)
}

// SetProfile encrypts and stores the session's profile blob.
func (s *Store) SetProfile(ctx context.Context, sessionID, profile string) error {
	return s.setEncrypted(ctx, sessionID, entryProfile, profile)
}

// Profile returns the session's profile blob, or ErrNotFound.
func (s *Store) Profile(ctx context.Context, sessionID string) (string, error) {
	return s.getEncrypted(ctx, sessionID, entryProfile)
}

func (s *Store) setEncrypted(ctx context.Context, sessionID, entry, value string) error {
	key, err := s.SessionKey(ctx, sessionID)
	if err != nil {
		return err
	}
	payload, err := s.cipher.Encrypt(value, key)
	if err != nil {
		return fmt.Errorf("keystore: failed to encrypt %s: %w", entry, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("keystore: failed to encode %s: %w", entry, err)
	}
	return s.backend.Set(ctx, s.entryKey(sessionID, entry), string(raw), s.ttl)
}

func (s *Store) getEncrypted(ctx context.Context, sessionID, entry string) (string, error) {
	key, err := s.SessionKey(ctx, sessionID)
	if err != nil {
		return "", err
	}
	raw, err := s.backend.Get(ctx, s.entryKey(sessionID, entry))
	if err != nil {
		return "", err
	}
	var payload crypto.EncryptedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.logger.Debug("stored entry is not a valid payload, treating as absent",
			zap.String("entry", entry),
		)
		return "", ErrNotFound
	}
	value, err := s.cipher.Decrypt(&payload, key)
	if err != nil {
		s.logger.Debug("stored entry failed to decrypt, treating as absent",
			zap.String("entry", entry),
			zap.Error(err),
		)
		return "", ErrNotFound
	}
	return value, nil
}

func (s *Store) entryKey(sessionID, entry string) string {
	return "session:" + sessionID + ":" + entry
}

// TokenUsable reports whether a bearer token is structurally valid and not
// expired. The gateway has no signing secret, so the signature itself is left
// to the upstream API to verify.
func TokenUsable(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		return true
	}
	return exp.After(now)
}
