package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "typ" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// TokenPair is an access/refresh JWT pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Claims are the JWT claims issued by TokenService. The subject is the
// username.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	now func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) *TokenService {
	o := applyOptions(opts)
	return &TokenService{
		Secret:             secret,
		AccessTokenExpiry:  accessTTL,
		RefreshTokenExpiry: refreshTTL,
		now:                o.now,
	}
}

// Generate signs a fresh token pair for username.
func (ts *TokenService) Generate(username string) (TokenPair, error) {
	now := ts.now()

	access, err := ts.sign(username, TokenAccess, now, ts.AccessTokenExpiry)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := ts.sign(username, TokenRefresh, now, ts.RefreshTokenExpiry)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (ts *TokenService) sign(subject, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token.
func (ts *TokenService) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(ts.Secret), nil
	}, jwt.WithTimeFunc(ts.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != TokenAccess {
		return nil, fmt.Errorf("not an access token")
	}
	return claims, nil
}
