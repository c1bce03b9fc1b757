package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/entitlements"
	"github.com/pressline/insiderhub/internal/pkg/session"
	"github.com/pressline/insiderhub/internal/pkg/usercontext"
)

// AccountContextMiddleware sets up the complete account context for every
// request. This centralizes session handling and eliminates code duplication.
func AccountContextMiddleware(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		// On error: treat as anonymous visitor
		c.Locals("ACCOUNT_CONTEXT", usercontext.AccountContext{
			IsLoggedIn: false,
			IsAdmin:    false,
			Tier:       string(entitlements.TierFree),
		})
		c.Locals(usercontext.KeyFromProtected, false)
		c.Locals(usercontext.KeyIsAdmin, false)
		return c.Next()
	}

	accountID := sess.Get(usercontext.KeyAccountID)
	if accountID == nil {
		// Anonymous visitor. The session id still identifies them for
		// metered article access.
		c.Locals("ACCOUNT_CONTEXT", usercontext.AccountContext{
			IsLoggedIn: false,
			IsAdmin:    false,
			Tier:       string(entitlements.TierFree),
			SessionID:  session.SessionID(c),
		})
		c.Locals(usercontext.KeyFromProtected, false)
		c.Locals(usercontext.KeyIsAdmin, false)
		return c.Next()
	}

	username := session.GetSessionValue(c, usercontext.KeyUsername)
	isAdmin := sess.Get(usercontext.KeyIsAdmin)

	// Tier with session-first strategy; the entitlement gate always resolves
	// fresh from the database, this value only feeds display surfaces.
	tier := session.GetSessionValue(c, usercontext.KeyTier)
	if tier == "" {
		tier = string(resolveTier(accountID.(uint)))
		_ = session.SetSessionValue(c, usercontext.KeyTier, tier)
	}

	accountCtx := usercontext.AccountContext{
		AccountID:  accountID.(uint),
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin != nil && isAdmin.(bool),
		Tier:       tier,
		SessionID:  sess.ID(),
	}
	c.Locals("ACCOUNT_CONTEXT", accountCtx)

	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyAccountID, accountID.(uint))
	c.Locals(usercontext.KeyIsAdmin, accountCtx.IsAdmin)

	return c.Next()
}

func resolveTier(accountID uint) entitlements.Tier {
	db := database.GetDB()
	if db == nil {
		return entitlements.TierFree
	}
	tier, err := entitlements.NewGateFromDB(db).TierForAccount(accountID)
	if err != nil {
		return entitlements.TierFree
	}
	return tier
}
