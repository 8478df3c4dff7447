// Package service holds application services that sit between transport and
// the pipeline. Auth issues and verifies the bearer tokens that carry a
// caller's identity and role.
package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tabletalk/tabletalk/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
)

// AuthService issues and validates HMAC-signed JWTs. The role claim inside a
// token is what the access policy keys on, so tokens are the trust boundary
// for the whole pipeline.
type AuthService struct {
	jwtSecret []byte
	issuer    string
	ttl       time.Duration
}

func NewAuthService(jwtSecret string, ttl time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		issuer:    "tabletalk",
		ttl:       ttl,
	}
}

type identityClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken creates a signed token for the given identity.
func (s *AuthService) IssueToken(id model.Identity) (string, error) {
	now := time.Now()
	claims := identityClaims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     strings.ToLower(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies a bearer token and returns the identity it carries.
func (s *AuthService) ValidateToken(tokenStr string) (model.Identity, error) {
	claims := &identityClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, ErrInvalidCredentials
	}
	if !token.Valid || claims.UserID == "" {
		return model.Identity{}, ErrInvalidCredentials
	}

	return model.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}
