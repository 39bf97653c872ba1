package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"nutriplan/internal/api/presenters"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer    = "nutriplan"
	UserIDKey = "user_id"
)

var (
	ErrTokenMissing = errors.New("missing bearer token")
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

type userClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService issues and validates API tokens.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Generate signs a token for userID valid for ttl.
func (s *TokenService) Generate(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := userClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// UserID validates token and returns the user it was issued for.
func (s *TokenService) UserID(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &userClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*userClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}

// Auth rejects requests without a valid bearer token and stores the caller's
// user id in c.Locals(UserIDKey).
func Auth(tokens *TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return presenters.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", ErrTokenMissing)
		}
		userID, err := tokens.UserID(strings.TrimSpace(token))
		if err != nil {
			return presenters.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", err)
		}
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the authenticated caller.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
