package alert

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для уведомлений администраторов
func (h *Handler) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/admin/alerts", authMiddleware, middleware.RequireAdmin())

	api.Get("/", h.ListAlerts)
	api.Post("/:id/read", h.MarkRead)
	api.Post("/:id/resolve", h.Resolve)
}
