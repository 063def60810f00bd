package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gridmirror/gridmirror/internal/pkg/metrics/counter"
)

// HandleAPIStats returns the accumulated webhook processing counters.
func HandleAPIStats(c *fiber.Ctx) error {
	totals, err := counter.Totals()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"counters": totals})
}
