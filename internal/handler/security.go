package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/academy-ledger/internal/domain/auth"
)

// APIKeyHeader carries the payment gateway's API key.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates machine callers via HMAC-SHA256 hashed API
// keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HandleAPIKey checks that key is an active API key granted scope. The stored
// hash is compared in constant time.
func (s *SecurityHandler) HandleAPIKey(ctx context.Context, key, scope string) error {
	if key == "" {
		return auth.ErrUnauthorized
	}
	hexHash := auth.HashAPIKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		zctx.From(ctx).Debug("API key lookup failed", zap.Error(err))
		return auth.ErrUnauthorized
	}

	hash, err := hex.DecodeString(hexHash)
	if err != nil {
		return auth.ErrUnauthorized
	}
	storedBytes, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
		return auth.ErrUnauthorized
	}

	if !info.HasScope(scope) {
		return errors.Wrapf(auth.ErrForbidden, "key %s lacks scope %s", info.ID, scope)
	}
	return nil
}

// identify resolves the bearer token of r.
func (h *Handler) identify(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	id, err := h.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		zctx.From(r.Context()).Debug("Bearer token rejected", zap.Error(err))
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}
