package interceptor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/crypto"
	"github.com/nimbafinance/edge-gateway/internal/keystore"
	"github.com/nimbafinance/edge-gateway/internal/metrics"
	"github.com/nimbafinance/edge-gateway/internal/policy"
)

// ErrNoSessionKey fails a sensitive request when no key material has been
// provisioned. There is deliberately no fallback key: sending sensitive data
// under a well-known default would defeat the encryption entirely.
var ErrNoSessionKey = errors.New("interceptor: no session key provisioned for sensitive payload")

// EncryptInterceptor rewrites the body of sensitive requests into an
// encrypted envelope. It runs last so audit and fraud observe the plaintext
// and the wire carries the protected form. Unlike the side-effect stages,
// its failures propagate: silently sending plaintext would be worse than
// failing the request.
type EncryptInterceptor struct {
	table     *policy.Table
	cipher    *crypto.CipherService
	store     *keystore.Store
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewEncryptInterceptor creates the encrypt stage.
func NewEncryptInterceptor(table *policy.Table, cipher *crypto.CipherService, store *keystore.Store, collector *metrics.Collector, logger *zap.Logger) *EncryptInterceptor {
	return &EncryptInterceptor{
		table:     table,
		cipher:    cipher,
		store:     store,
		collector: collector,
		logger:    logger,
	}
}

// Name implements Interceptor.
func (i *EncryptInterceptor) Name() string { return StageEncrypt }

// Process implements Interceptor.
func (i *EncryptInterceptor) Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error) {
	if !i.table.Classify(req.URL, req.Method).Encrypted {
		return req, nil
	}
	if req.Body == nil || !req.HasStructuredBody() {
		return req, nil
	}

	key, err := i.store.SessionKey(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, keystore.ErrKeyNotProvisioned) {
			return nil, ErrNoSessionKey
		}
		return nil, fmt.Errorf("session key lookup failed: %w", err)
	}

	payload, err := i.cipher.Encrypt(req.Body, key)
	if err != nil {
		return nil, fmt.Errorf("payload encryption failed: %w", err)
	}

	envelope := map[string]interface{}{
		"encrypted": true,
		"data":      payload.Data,
		"iv":        payload.IV,
		"algorithm": payload.Algorithm,
	}
	if payload.Tag != "" {
		envelope["tag"] = payload.Tag
	}

	if i.collector != nil {
		i.collector.BodyEncrypted()
	}
	i.logger.Debug("request body encrypted",
		zap.String("url", req.URL),
		zap.String("algorithm", payload.Algorithm),
	)

	return req.WithBody(envelope), nil
}
