package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier(testSecret, "authenticated")
	require.NoError(t, err)

	token, err := v.Issue(Identity{UserID: "u-1", Email: "mod@example.com", DiscordID: "4242", Admin: true}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "mod@example.com", id.Email)
	assert.True(t, id.Admin)
	assert.Equal(t, "4242", id.MemberID())
	assert.Equal(t, "u-2", Identity{UserID: "u-2"}.MemberID())
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v, err := NewVerifier(testSecret, "authenticated")
	require.NoError(t, err)
	other, err := NewVerifier("another-secret-of-enough-length", "authenticated")
	require.NoError(t, err)
	wrongAud, err := NewVerifier(testSecret, "service_role")
	require.NoError(t, err)

	forged, err := other.Issue(Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	aud, err := wrongAud.Issue(Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(aud)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	v, err := NewVerifier(testSecret, "")
	require.NoError(t, err)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v.Now = func() time.Time { return issued }
	token, err := v.Issue(Identity{UserID: "u-1"}, time.Minute)
	require.NoError(t, err)

	v.Now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("short", "")
	assert.Error(t, err)
}
