package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gridmirror/gridmirror/internal/pkg/ticket"
)

var ticketManager *ticket.Manager

// InitializeTicketController wires the ticket validation endpoint. A nil
// manager leaves the endpoint disabled.
func InitializeTicketController(manager *ticket.Manager) {
	ticketManager = manager
}

type validateTicketRequest struct {
	QRCodeData  string `json:"qrcode_data"`
	ValidatedBy string `json:"validated_by"`
}

// HandleValidateTicket marks the ticket referenced by a scanned QR payload
// as validated.
func HandleValidateTicket(c *fiber.Ctx) error {
	if ticketManager == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "ticketing_disabled"})
	}

	var req validateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ticketID, err := ticket.ParseQRCodeData(strings.TrimSpace(req.QRCodeData))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_qrcode"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := ticketManager.MarkValidated(ctx, ticketID, strings.TrimSpace(req.ValidatedBy)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "validation_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ticket_id": ticketID})
}
