// Package auth issues and checks the bearer tokens that bind HTTP callers to
// a ledger identity. Principals and their bcrypt hashes come from the config.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

var ErrBadCredentials = errors.New("invalid identity or password")

type Auth struct {
	secret     []byte
	expiry     time.Duration
	principals map[ledger.Identity]string
}

type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

func New(secret string, expiryMinutes int) *Auth {
	return &Auth{
		secret:     []byte(secret),
		expiry:     time.Duration(expiryMinutes) * time.Minute,
		principals: make(map[ledger.Identity]string),
	}
}

// AddPrincipal allows id to log in with the password behind hash.
func (a *Auth) AddPrincipal(id ledger.Identity, hash string) {
	a.principals[id] = hash
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login checks the password of a configured principal and returns a token.
func (a *Auth) Login(id ledger.Identity, password string) (string, error) {
	hash, ok := a.principals[id]
	if !ok || !CheckPassword(hash, password) {
		return "", ErrBadCredentials
	}
	return a.GenerateToken(id)
}

func (a *Auth) GenerateToken(id ledger.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Identity: string(id),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ExtractClaims reads the JWT from the Authorization header (Bearer token).
// Returns nil if no valid token is present (for public endpoints).
func (a *Auth) ExtractClaims(r *http.Request) *Claims {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil
	}
	claims, err := a.ValidateToken(parts[1])
	if err != nil {
		return nil
	}
	return claims
}
