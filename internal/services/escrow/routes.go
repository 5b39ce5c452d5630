package escrow

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для эскроу
func (h *Handler) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/escrow", authMiddleware)

	api.Get("/fees", h.PreviewFees)
	api.Get("/:offerId", h.GetEscrow)
	api.Post("/:offerId/approve", h.Approve)
	api.Post("/:offerId/release", middleware.RequireAdmin(), h.Release)
}
