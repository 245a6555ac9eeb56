package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/domain"
)

// TokenValidator authenticates bearer owner tokens. Tokens are
// "<ownerID>.<signature>" where the signature is an HMAC-SHA256 of the
// owner id under a shared secret, so validation needs no storage lookup.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a TokenValidator with the shared secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// IssueOwnerToken mints a token for an owner id.
func (v *TokenValidator) IssueOwnerToken(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || strings.Contains(ownerID, ".") {
		return "", domain.NewDomainError(domain.ErrCodeInvalidInput, "owner id must be non-empty and contain no '.'")
	}
	return ownerID + "." + v.sign(ownerID), nil
}

// ValidateOwnerToken resolves a token to its owner id.
func (v *TokenValidator) ValidateOwnerToken(ctx context.Context, token string) (string, error) {
	ownerID, signature, found := strings.Cut(token, ".")
	if !found || ownerID == "" {
		return "", domain.ErrInvalidOwnerToken
	}

	expected := v.sign(ownerID)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", domain.ErrInvalidOwnerToken
	}

	return ownerID, nil
}

func (v *TokenValidator) sign(ownerID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ownerID))
	return hex.EncodeToString(mac.Sum(nil))
}
