package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

const testUserID = "5b0d3c1e-9a53-4a4e-8d0a-0a3b6c1e2f10"

func TestVerifyTokenRoundTrip(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Issue(testUserID, time.Hour)
	require.NoError(t, err)

	userID, err := v.VerifyToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)

	userID, err = v.Verify(context.Background(), models.JoinRequest{Token: token})
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("other").Issue(testUserID, time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret").VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Issue(testUserID, time.Hour)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{UserID: testUserID}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret").VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenFallsBackToSubject(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: testUserID}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	userID, err := NewVerifier("secret").VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
}

func TestVerifyWithoutSecretTrustsUserID(t *testing.T) {
	v := NewVerifier("")

	userID, err := v.Verify(context.Background(), models.JoinRequest{UserID: testUserID})
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)

	_, err = v.Verify(context.Background(), models.JoinRequest{})
	require.ErrorIs(t, err, ErrMissingUser)

	_, err = v.VerifyToken("anything")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenMissing(t *testing.T) {
	_, err := NewVerifier("secret").VerifyToken("  ")
	require.ErrorIs(t, err, ErrMissingToken)
}
