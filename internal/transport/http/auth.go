package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/goliatone/go-reservation-cache/booking"
)

const callerKey = "caller"

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth verifies HS256 bearer tokens. Tokens are issued elsewhere; IssueToken
// exists for tooling and tests.
type Auth struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewAuth(secret, issuer string) *Auth {
	return &Auth{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

// Middleware rejects requests without a valid token and stores the caller in
// the request locals.
func (a *Auth) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims := &Claims{}
		token, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if claims.Subject == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token has no subject")
		}
		if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token issuer")
		}

		role := booking.RoleUser
		if claims.Role == string(booking.RoleAdmin) {
			role = booking.RoleAdmin
		}
		c.Locals(callerKey, booking.Caller{ID: claims.Subject, Role: role})
		return c.Next()
	}
}

// IssueToken signs a token for userID valid for ttl.
func (a *Auth) IssueToken(userID string, role booking.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// CallerFrom returns the caller stored by Middleware. The zero Caller is
// anonymous.
func CallerFrom(c *fiber.Ctx) booking.Caller {
	caller, _ := c.Locals(callerKey).(booking.Caller)
	return caller
}
