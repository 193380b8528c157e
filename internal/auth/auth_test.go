package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	hash, err := HashPassword("compost")
	require.NoError(t, err)

	a := New("secret", 60)
	a.AddPrincipal("A", hash)

	_, err = a.Login("A", "wrong")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = a.Login("B", "compost")
	require.ErrorIs(t, err, ErrBadCredentials)

	token, err := a.Login("A", "compost")
	require.NoError(t, err)
	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "A", claims.Identity)
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	token, err := New("one", 60).GenerateToken("A")
	require.NoError(t, err)
	_, err = New("two", 60).ValidateToken(token)
	require.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	token, err := New("secret", -1).GenerateToken("A")
	require.NoError(t, err)
	_, err = New("secret", 60).ValidateToken(token)
	require.Error(t, err)
}

func TestExtractClaims(t *testing.T) {
	a := New("secret", 60)
	token, err := a.GenerateToken("A")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	require.Nil(t, a.ExtractClaims(r))

	r.Header.Set("Authorization", "Basic abc")
	require.Nil(t, a.ExtractClaims(r))

	r.Header.Set("Authorization", "bearer "+token)
	claims := a.ExtractClaims(r)
	require.NotNil(t, claims)
	require.Equal(t, "A", claims.Identity)
}
