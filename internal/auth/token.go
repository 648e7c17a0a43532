package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skulicheck/skulicheck-be/internal/models"
)

// ErrInvalidToken is returned when an access token fails validation.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID int64  `json:"sid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// TokenManager issues signed JWTs mirroring a login session.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager creates a manager with the provided secret and issuer.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Generate issues an HS256 token for user, stamped at issuedAt and expiring
// with session. Callers pass the same clock that set session.ExpiresAt.
func (t *TokenManager) Generate(user models.User, session models.Session, issuedAt time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		SessionID: session.ID,
		Email:     user.Email,
		Role:      user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates signature, issuer, and expiry and returns the claims.
func (t *TokenManager) Parse(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(t.issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
