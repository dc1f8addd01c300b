package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mahaj/chat-sync/pkg/errs"
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type contextKey string

const UserKey contextKey = "user"

// Sessions mints and validates service session tokens. The gateway and API
// trust the user id in these claims for all filter evaluation.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// Generate creates a new session token for a given user id.
func (s *Sessions) Generate(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a session token.
func (s *Sessions) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.AuthenticationFailed("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeAuthenticationFailed, "invalid session token", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errs.AuthenticationFailed("invalid session token")
	}

	return claims, nil
}
