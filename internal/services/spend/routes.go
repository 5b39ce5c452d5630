package spend

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты контроля расходов на AI
func (h *Handler) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/ai-spend", authMiddleware, middleware.RequireAdmin())

	api.Post("/check", h.Check)
	api.Post("/log", h.Log)
	api.Get("/summary", h.Summary)
	api.Get("/metrics", h.Metrics)
	api.Get("/anomalies", h.Anomalies)
	api.Get("/forecast", h.Forecast)
}
