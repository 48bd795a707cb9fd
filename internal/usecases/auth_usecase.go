package usecases

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"siteledger/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAuthDisabled       = errors.New("admin login is not configured")
)

// AuthUsecase authenticates the single configured operator of the admin API.
type AuthUsecase struct {
	username     string
	passwordHash []byte
	secret       []byte
	issuer       string
	ttl          time.Duration
	now          func() time.Time
}

func NewAuthUsecase(cfg config.AuthConfig) *AuthUsecase {
	return &AuthUsecase{
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.JWTIssuer,
		ttl:          cfg.TokenTTL,
		now:          time.Now,
	}
}

// Enabled reports whether tokens can be issued and checked.
func (uc *AuthUsecase) Enabled() bool {
	return len(uc.secret) > 0 && len(uc.passwordHash) > 0
}

// Login checks the credentials and returns a signed HS256 token with its expiry.
func (uc *AuthUsecase) Login(username, password string) (string, time.Time, error) {
	if !uc.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(uc.username)) == 1
	// bcrypt runs for unknown usernames too
	passErr := bcrypt.CompareHashAndPassword(uc.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := uc.now()
	expires := now.Add(uc.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uc.username,
		Issuer:    uc.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString(uc.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token issued by Login and returns its subject.
func (uc *AuthUsecase) Verify(tokenString string) (string, error) {
	if !uc.Enabled() {
		return "", ErrAuthDisabled
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return uc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(uc.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(uc.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
