package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the caller identity for a request
type UserContext struct {
	ClerkID    string `json:"clerk_id"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// SetUserContext stores ctx in Locals together with the flat compatibility keys.
func SetUserContext(c *fiber.Ctx, ctx UserContext) {
	c.Locals(KeyUserContext, ctx)
	c.Locals(KeyClerkID, ctx.ClerkID)
	c.Locals(KeyFromProtected, ctx.IsLoggedIn)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the current caller presented a valid identity token
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetClerkID returns the caller's clerk id, or "" for anonymous requests
func GetClerkID(c *fiber.Ctx) string {
	return GetUserContext(c).ClerkID
}
