package pricing

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты оценки цен
func (h *Handler) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/pricing", authMiddleware)

	api.Post("/evaluate", h.Evaluate)
	api.Post("/evaluate-all", middleware.RequireAdmin(), h.EvaluateAll)
	api.Post("/advisor", h.Advise)
	api.Get("/history/:artworkId", h.History)

	gallery := app.Group("/api/gallery", authMiddleware)
	gallery.Post("/apply-price-suggestion", h.ApplySuggestion)
}
