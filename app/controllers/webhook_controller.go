package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gridmirror/gridmirror/internal/pkg/audit"
	"github.com/gridmirror/gridmirror/internal/pkg/cache"
	"github.com/gridmirror/gridmirror/internal/pkg/metrics/counter"
	"github.com/gridmirror/gridmirror/internal/pkg/mirror"
)

const (
	webhookRouteTimeout = 25 * time.Second
	eventDedupTTL       = 24 * time.Hour
)

var (
	webhookRouter *mirror.Router
	webhookSink   audit.Sink = audit.NopSink{}
	webhookSecret string
	dedupEnabled  bool
)

// InitializeWebhookController wires the webhook endpoint with its event
// router, audit sink and signing secret. useDedupCache enables the Redis
// fast path for redelivered event ids; correctness never depends on it.
func InitializeWebhookController(router *mirror.Router, sink audit.Sink, secret string, useDedupCache bool) {
	webhookRouter = router
	if sink != nil {
		webhookSink = sink
	}
	webhookSecret = secret
	dedupEnabled = useDedupCache
}

// HandleStripeWebhook verifies, parses and routes one webhook delivery.
// Only signature or parse failures change the response status; processing
// failures are audited and still answered with 200 so the provider does not
// pile up redeliveries.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := context.WithTimeout(context.Background(), webhookRouteTimeout)
	defer cancel()

	if !mirror.VerifySignature(rawBody, signature, webhookSecret, mirror.DefaultSignatureTolerance) {
		_ = counter.AddRejected()
		webhookSink.Write(ctx, audit.Entry{
			Level:   audit.LevelError,
			Module:  "webhook",
			Action:  "verify_signature",
			Status:  "failed",
			Message: "invalid webhook signature",
		})
		return c.Status(fiber.StatusBadRequest).SendString("Invalid signature")
	}

	event, err := mirror.ParseEvent(rawBody)
	if err != nil {
		webhookSink.Write(ctx, audit.Entry{
			Level:        audit.LevelError,
			Module:       "webhook",
			Action:       "parse_event",
			Status:       "failed",
			Message:      err.Error(),
			ErrorDetails: err.Error(),
		})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	dedupKey := "webhook:event:" + event.ID
	if dedupEnabled && cache.Has(dedupKey) {
		_ = counter.AddSkipped(event.Type)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	objID, objType := event.ObjectInfo()
	if routeErr := webhookRouter.Route(ctx, event); routeErr != nil {
		_ = counter.AddFailed(event.Type)
		webhookSink.Write(ctx, audit.Entry{
			Level:        audit.LevelError,
			Module:       "webhook",
			Action:       event.Type,
			Status:       "failed",
			Message:      routeErr.Error(),
			ObjectType:   objType,
			ObjectID:     objID,
			ErrorDetails: routeErr.Error(),
		})
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	_ = counter.AddProcessed(event.Type)
	if dedupEnabled {
		_ = cache.Set(dedupKey, "1", eventDedupTTL)
	}
	webhookSink.Write(ctx, audit.Entry{
		Module:     "webhook",
		Action:     event.Type,
		Message:    "Event processed: " + event.Type,
		ObjectType: objType,
		ObjectID:   objID,
	})
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
