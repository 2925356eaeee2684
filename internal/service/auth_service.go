package service

import (
	"codecollab/internal/model"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the capability the transport uses to turn an (optional)
// credential into a connection identity. The core trusts client-supplied
// usernames; an authenticating deployment swaps this implementation
// without touching the engine.
type Identity interface {
	// ResolveConnectionID returns the user id for a presented token, or a
	// fresh id when the token is empty or unverifiable
	ResolveConnectionID(token string) string
}

// AuthService issues signed guest tokens so a client that reconnects can
// keep a stable user id across connections. Tokens are optional; the
// default flow is anonymous.
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates a new auth service
func NewAuthService() *AuthService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}
	return &AuthService{jwtSecret: []byte(secret)}
}

// IssueGuestToken creates a token binding a fresh user id to a username
func (s *AuthService) IssueGuestToken(username string) (*model.GuestTokenResponse, error) {
	userID := "guest_" + uuid.New().String()[:8]

	claims := &model.GuestClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.GuestTokenResponse{
		Token:  tokenString,
		UserID: userID,
	}, nil
}

// ValidateGuestToken validates a guest JWT and returns its claims
func (s *AuthService) ValidateGuestToken(tokenString string) (*model.GuestClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.GuestClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.GuestClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveConnectionID implements Identity. An invalid or absent token is
// not an error: the connection simply gets a fresh anonymous id.
func (s *AuthService) ResolveConnectionID(token string) string {
	if token != "" {
		if claims, err := s.ValidateGuestToken(token); err == nil {
			return claims.UserID
		}
	}
	return uuid.New().String()
}

// Interface compliance
var _ Identity = (*AuthService)(nil)
