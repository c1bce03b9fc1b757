package constants

// Static route constants
const (
	StripeWebhookRoute    = "/webhooks/stripe"
	APIStripeWebhookRoute = "/api/v1/webhooks/stripe"
	RegisterRoute         = "/register"
	LoginRoute            = "/login"
	LogoutRoute           = "/logout"
)
