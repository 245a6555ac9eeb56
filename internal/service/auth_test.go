package service

import (
	"context"
	"testing"

	"github.com/shopmind-ai/shopmind/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidator_RoundTrip(t *testing.T) {
	v := NewTokenValidator("test-secret")

	token, err := v.IssueOwnerToken("owner-1")
	require.NoError(t, err)

	ownerID, err := v.ValidateOwnerToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", ownerID)
}

func TestTokenValidator_RejectsTamperedToken(t *testing.T) {
	v := NewTokenValidator("test-secret")

	token, err := v.IssueOwnerToken("owner-1")
	require.NoError(t, err)

	// Swap the owner id while keeping the old signature.
	tampered := "owner-2" + token[len("owner-1"):]
	_, err = v.ValidateOwnerToken(context.Background(), tampered)
	assert.ErrorIs(t, err, domain.ErrInvalidOwnerToken)
}

func TestTokenValidator_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenValidator("secret-a")
	verifier := NewTokenValidator("secret-b")

	token, err := issuer.IssueOwnerToken("owner-1")
	require.NoError(t, err)

	_, err = verifier.ValidateOwnerToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrInvalidOwnerToken)
}

func TestTokenValidator_RejectsMalformedToken(t *testing.T) {
	v := NewTokenValidator("test-secret")

	for _, token := range []string{"", "no-dot", ".signature-only"} {
		_, err := v.ValidateOwnerToken(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrInvalidOwnerToken)
	}
}

func TestTokenValidator_IssueRejectsBadOwnerID(t *testing.T) {
	v := NewTokenValidator("test-secret")

	for _, ownerID := range []string{"", "  ", "a.b"} {
		_, err := v.IssueOwnerToken(ownerID)
		assert.Error(t, err)
	}
}
