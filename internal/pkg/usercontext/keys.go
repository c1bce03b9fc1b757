package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	AuthKey          = "authenticated"
	KeyAccountID     = "account_id"
	KeyUsername      = "username"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
	KeyTier          = "membership_tier"
)
