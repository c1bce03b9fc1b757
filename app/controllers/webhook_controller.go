package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/internal/pkg/billing"
	"github.com/pressline/insiderhub/internal/pkg/dispatch"
	"github.com/pressline/insiderhub/internal/pkg/env"
)

const webhookTimeout = 15 * time.Second

// HandleStripeWebhook is the single ingress for provider events. Both webhook
// routes point here; duplicate deliveries are absorbed by the processed-event
// ledger, not by the transport.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := billing.VerifyAndDecodeStripeEvent(rawBody, signature, secret)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			log.Warnf("[Webhook] rejected unsigned or tampered payload: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Warnf("[Webhook] undecodable payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := dispatch.GetWorker().BillingService()
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := svc.ProcessEvent(ctx, event)
	if err != nil {
		// Non-2xx makes the provider retry; the ledger row was rolled back
		// with the failed transaction, so the retry will be reprocessed.
		log.Errorf("[Webhook] processing %s failed: %v", event.ProviderEventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": result.Outcome})
}
