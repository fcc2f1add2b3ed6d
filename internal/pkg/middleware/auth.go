package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	icuser "github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
)

// TokenResolver maps an identity token to a clerk id.
type TokenResolver interface {
	Resolve(token string) (string, error)
}

// IdentityTokenAuth authenticates API calls carrying an identity token in the
// "token" header or as a bearer token, and answers 401 JSON otherwise.
func IdentityTokenAuth(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractTokenFromHeader(c)
		if token == "" {
			return unauthorized(c, "Not authorized. Please login again")
		}

		clerkID, err := resolver.Resolve(token)
		if err != nil {
			log.Debugf("[Auth] token rejected: %v", err)
			return unauthorized(c, apperr.MessageOf(err))
		}

		icuser.SetUserContext(c, icuser.UserContext{ClerkID: clerkID, IsLoggedIn: true})
		return c.Next()
	}
}

// RequireAPIAuth ensures an authenticated caller and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) || icuser.GetClerkID(c) == "" {
		return unauthorized(c, "login required")
	}
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}

func extractTokenFromHeader(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Get("token")); token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
