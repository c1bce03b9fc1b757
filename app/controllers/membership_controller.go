package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/internal/pkg/dispatch"
	"github.com/pressline/insiderhub/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// HandleMembershipSummary returns the current tier and subscription standing
// of the logged-in account.
func HandleMembershipSummary(c *fiber.Ctx) error {
	accountCtx := usercontext.GetAccountContext(c)
	if !accountCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := dispatch.GetWorker().BillingService()
	summary, err := svc.GetMembershipSummary(ctx, accountCtx.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account_not_found"})
		}
		log.Errorf("[Membership] summary for account %d failed: %v", accountCtx.AccountID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "summary_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}
