package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usersync"
	"github.com/ManuelReschke/CreditFox/internal/pkg/webhook"
)

// EventSubmitter queues a verified event. *usersync.Dispatcher implements it.
type EventSubmitter interface {
	Submit(job usersync.Job) error
}

type WebhookController struct {
	verifier   *webhook.Verifier
	dispatcher EventSubmitter
}

func NewWebhookController(verifier *webhook.Verifier, dispatcher EventSubmitter) *WebhookController {
	return &WebhookController{verifier: verifier, dispatcher: dispatcher}
}

// HandleUserWebhook verifies a Clerk delivery and queues it. The response only
// acknowledges receipt; reconciliation happens on the dispatcher's workers.
func (wc *WebhookController) HandleUserWebhook(c *fiber.Ctx) error {
	headers := webhook.Headers{
		ID:        firstHeaderValue(c, webhook.HeaderID, webhook.HeaderEventID),
		Signature: firstHeaderValue(c, webhook.HeaderSignature, webhook.HeaderEventSignature),
		Timestamp: firstHeaderValue(c, webhook.HeaderTimestamp, webhook.HeaderEventTimestamp),
	}
	if missing := headers.Missing(); len(missing) > 0 {
		return respondError(c, apperr.Newf(apperr.MissingHeader, "Missing required webhook headers: %v", missing))
	}
	if !wc.verifier.Configured() {
		log.Error("[Webhook] CLERK_WEBHOOK_SECRET is not configured")
		return respondError(c, apperr.New(apperr.Internal, "Webhook secret not configured"))
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	if err := wc.verifier.Verify(rawBody, headers); err != nil {
		log.Warnf("[Webhook] Verification failed for %s: %v", headers.ID, err)
		return respondError(c, apperr.New(apperr.CodeOf(err), "Webhook verification failed"))
	}

	evt, err := clerk.ParseEvent(rawBody)
	if err != nil {
		return respondError(c, err)
	}

	err = wc.dispatcher.Submit(usersync.Job{EventID: headers.ID, Event: evt})
	if errors.Is(err, usersync.ErrQueueFull) || errors.Is(err, usersync.ErrQueueUnavailable) || errors.Is(err, usersync.ErrStopped) {
		log.Warnf("[Webhook] Rejecting %s (%s): %v", headers.ID, evt.Type, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "unavailable",
			"message": "Webhook queue is not accepting events, retry later",
		})
	}
	if err != nil {
		return respondError(c, err)
	}

	log.Infof("[Webhook] Accepted %s (%s, clerk_id=%s)", headers.ID, evt.Type, evt.Data.ID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true, "received": true})
}
