package middleware

// Gin context keys shared between middleware and handlers. Plain strings
// because gin's context is string-keyed; they match the keys the logger's
// HTTP error helpers read.
const (
	// UserIDKey holds the authenticated caller's subject claim.
	UserIDKey = "user_id"
)
