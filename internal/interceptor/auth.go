package interceptor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/keystore"
)

// AuthInterceptor attaches the session's bearer token when one is stored and
// still usable. Requests without a usable token are forwarded unchanged; the
// upstream API is the authority that rejects unauthenticated calls.
type AuthInterceptor struct {
	store  *keystore.Store
	logger *zap.Logger
}

// NewAuthInterceptor creates the auth stage.
func NewAuthInterceptor(store *keystore.Store, logger *zap.Logger) *AuthInterceptor {
	return &AuthInterceptor{store: store, logger: logger}
}

// Name implements Interceptor.
func (i *AuthInterceptor) Name() string { return StageAuth }

// Process implements Interceptor.
func (i *AuthInterceptor) Process(ctx context.Context, req *OutboundRequest) (*OutboundRequest, error) {
	if req.SessionID == "" {
		return req, nil
	}

	token, err := i.store.Token(ctx, req.SessionID)
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) && !errors.Is(err, keystore.ErrKeyNotProvisioned) {
			i.logger.Warn("token lookup failed, forwarding unauthenticated",
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
		}
		return req, nil
	}

	if !keystore.TokenUsable(token, time.Now()) {
		i.logger.Debug("stored token expired or malformed, forwarding unauthenticated",
			zap.String("session_id", req.SessionID),
		)
		return req, nil
	}

	return req.WithHeader("Authorization", "Bearer "+token), nil
}
