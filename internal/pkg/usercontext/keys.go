package usercontext

// Shared Locals keys used across handlers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
	KeyRole        = "role"
)
