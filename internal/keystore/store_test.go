package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/crypto"
)

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	cipher := crypto.NewCipherService(1000, zap.NewNop())
	return NewStore(backend, cipher, 0, zap.NewNop()), backend
}

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestSessionKeyFailsClosedWithoutProvisioning(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SessionKey(ctx, "session-1")
	assert.ErrorIs(t, err, ErrKeyNotProvisioned)

	err = store.SetToken(ctx, "session-1", "anything")
	assert.ErrorIs(t, err, ErrKeyNotProvisioned)
}

func TestTokenRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "a strong passphrase"))
	require.NoError(t, store.SetToken(ctx, "session-1", "bearer-value"))

	token, err := store.Token(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "bearer-value", token)
}

func TestTokenEncryptedAtRest(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "a strong passphrase"))
	require.NoError(t, store.SetToken(ctx, "session-1", "bearer-value"))

	raw, err := backend.Get(ctx, "session:session-1:auth_token")
	require.NoError(t, err)
	assert.NotContains(t, raw, "bearer-value", "token must not be stored in plaintext")
}

func TestUnrecoverableValueTreatedAsAbsence(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "a strong passphrase"))
	require.NoError(t, backend.Set(ctx, "session:session-1:auth_token", "corrupted", 0))

	_, err := store.Token(ctx, "session-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReprovisioningInvalidatesStoredValues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "first passphrase"))
	require.NoError(t, store.SetToken(ctx, "session-1", "bearer-value"))
	require.NoError(t, store.ProvisionKey(ctx, "session-1", "second passphrase"))

	// The new key cannot decrypt the old ciphertext; absence, not failure.
	_, err := store.Token(ctx, "session-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "a strong passphrase"))
	require.NoError(t, store.SetProfile(ctx, "session-1", `{"name":"Mariam"}`))

	profile, err := store.Profile(ctx, "session-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Mariam"}`, profile)
}

func TestClearSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ProvisionKey(ctx, "session-1", "a strong passphrase"))
	require.NoError(t, store.SetToken(ctx, "session-1", "bearer-value"))
	require.NoError(t, store.ClearSession(ctx, "session-1"))

	_, err := store.SessionKey(ctx, "session-1")
	assert.ErrorIs(t, err, ErrKeyNotProvisioned)
}

func TestTokenUsable(t *testing.T) {
	now := time.Now()

	assert.True(t, TokenUsable(signedToken(t, now.Add(time.Hour)), now))
	assert.False(t, TokenUsable(signedToken(t, now.Add(-time.Hour)), now))
	assert.False(t, TokenUsable("not-a-jwt", now))
	assert.False(t, TokenUsable("", now))
}

func TestMemoryBackendTTL(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "k", "v", 10*time.Millisecond))
	value, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	time.Sleep(20 * time.Millisecond)
	_, err = backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
