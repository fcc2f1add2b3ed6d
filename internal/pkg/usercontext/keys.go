package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyClerkID       = "clerk_id"
	KeyFromProtected = "from_protected"
)
