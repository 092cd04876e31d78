package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm labels carried inside EncryptedPayload so receivers can pick the
// right decryption path. GCM is the wire default; CBC is kept for payloads
// written by older clients.
const (
	AlgorithmAESGCM = "aes-256-gcm"
	AlgorithmAESCBC = "aes-256-cbc"

	keySize      = 32
	saltSize     = 16
	gcmNonceSize = 12
	gcmTagSize   = 16
)

var (
	// ErrInvalidKeySize is returned when key material is not 256 bits.
	ErrInvalidKeySize = errors.New("crypto: key must be 32 bytes")
	// ErrIntegrityCheckFailed is returned when an authenticated payload fails
	// tag verification. Callers must treat the value as unrecoverable.
	ErrIntegrityCheckFailed = errors.New("crypto: ciphertext integrity check failed")
	// ErrMalformedPayload is returned when a payload cannot be decoded at all.
	ErrMalformedPayload = errors.New("crypto: malformed encrypted payload")
)

// EncryptedPayload is the serialized form of an encrypted value.
type EncryptedPayload struct {
	Data      string `json:"data"`
	IV        string `json:"iv"`
	Tag       string `json:"tag,omitempty"`
	Algorithm string `json:"algorithm"`
}

// KeyMaterial is the result of passphrase-based key derivation. The salt must
// be persisted alongside whatever the key encrypts, or derivation is not
// repeatable.
type KeyMaterial struct {
	Key  []byte `json:"-"`
	Salt []byte `json:"salt"`
}

// CipherService performs the symmetric transforms applied to sensitive fields
// before they leave the gateway.
type CipherService struct {
	iterations int
	logger     *zap.Logger
}

// NewCipherService creates a cipher service. iterations controls the PBKDF2
// and hash iteration count.
func NewCipherService(iterations int, logger *zap.Logger) *CipherService {
	if iterations <= 0 {
		iterations = 100000
	}
	return &CipherService{
		iterations: iterations,
		logger:     logger,
	}
}

// DeriveKey turns a human passphrase into 256-bit key material via PBKDF2.
// When salt is nil a fresh random salt is generated and returned; callers must
// persist it to derive the same key again.
func (s *CipherService) DeriveKey(passphrase string, salt []byte) (KeyMaterial, error) {
	if passphrase == "" {
		return KeyMaterial{}, fmt.Errorf("crypto: empty passphrase")
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return KeyMaterial{}, fmt.Errorf("crypto: failed to generate salt: %w", err)
		}
	}
	key := pbkdf2.Key([]byte(passphrase), salt, s.iterations, keySize, sha256.New)
	return KeyMaterial{Key: key, Salt: salt}, nil
}

// Encrypt serializes value (strings pass through, everything else is JSON
// encoded) and encrypts it with AES-256-GCM under key. The nonce is freshly
// random for every call.
func (s *CipherService) Encrypt(value interface{}, key []byte) (*EncryptedPayload, error) {
	plaintext, err := serialize(value)
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to initialize gcm: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return &EncryptedPayload{
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Tag:       base64.StdEncoding.EncodeToString(tag),
		Algorithm: AlgorithmAESGCM,
	}, nil
}

// EncryptCBC encrypts with AES-256-CBC and PKCS7 padding. CBC carries no
// authentication tag, so tampering is not detectable; new writers should use
// Encrypt instead.
func (s *CipherService) EncryptCBC(value interface{}, key []byte) (*EncryptedPayload, error) {
	plaintext, err := serialize(value)
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to initialize cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &EncryptedPayload{
		Data:      base64.StdEncoding.EncodeToString(ciphertext),
		IV:        base64.StdEncoding.EncodeToString(iv),
		Algorithm: AlgorithmAESCBC,
	}, nil
}

// Decrypt recovers the plaintext of payload. GCM payloads are rejected with
// ErrIntegrityCheckFailed when the tag does not verify; CBC payloads are only
// checked for valid padding.
func (s *CipherService) Decrypt(payload *EncryptedPayload, key []byte) (string, error) {
	if payload == nil {
		return "", ErrMalformedPayload
	}
	if len(key) != keySize {
		return "", ErrInvalidKeySize
	}

	ciphertext, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: failed to initialize cipher: %w", err)
	}

	switch payload.Algorithm {
	case AlgorithmAESGCM:
		tag, err := base64.StdEncoding.DecodeString(payload.Tag)
		if err != nil || len(tag) != gcmTagSize {
			return "", ErrMalformedPayload
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return "", fmt.Errorf("crypto: failed to initialize gcm: %w", err)
		}
		if len(iv) != gcm.NonceSize() {
			return "", ErrMalformedPayload
		}
		plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
		if err != nil {
			return "", ErrIntegrityCheckFailed
		}
		return string(plaintext), nil

	case AlgorithmAESCBC:
		if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
			return "", ErrMalformedPayload
		}
		plaintext := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
		unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return string(unpadded), nil

	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrMalformedPayload, payload.Algorithm)
	}
}

// Hash computes a salted, iterated SHA-256 fingerprint of data. The salt is
// embedded in the output so VerifyIntegrity can recompute it. When salt is nil
// a random one is generated.
func (s *CipherService) Hash(data string, salt []byte) (string, error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("crypto: failed to generate salt: %w", err)
		}
	}
	digest := s.iteratedDigest([]byte(data), salt)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest), nil
}

// VerifyIntegrity recomputes the fingerprint of data using the salt embedded
// in expected and compares in constant time.
func (s *CipherService) VerifyIntegrity(data, expected string) bool {
	parts := strings.SplitN(expected, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := s.iteratedDigest([]byte(data), salt)
	return hmac.Equal(got, want)
}

// GenerateSecureToken returns a cryptographically random URL-safe string of
// the requested length.
func (s *CipherService) GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("crypto: token length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("crypto: failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token[:length], nil
}

func (s *CipherService) iteratedDigest(data, salt []byte) []byte {
	digest := sha256.Sum256(append(append([]byte{}, salt...), data...))
	for i := 1; i < s.iterations; i++ {
		digest = sha256.Sum256(digest[:])
	}
	return digest[:]
}

func serialize(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("crypto: value is not serializable: %w", err)
		}
		return raw, nil
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	for i := 0; i < padding; i++ {
		data = append(data, byte(padding))
	}
	return data
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding byte")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("inconsistent padding")
		}
	}
	return data[:len(data)-padding], nil
}
