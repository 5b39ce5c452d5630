package offer

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// SetupRoutes настраивает маршруты для предложений цены
func (h *Handler) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/offers", authMiddleware)

	api.Post("/", h.CreateOffer)
	api.Get("/", h.ListOffers)
	api.Get("/:id", h.GetOffer)
	api.Post("/:id/accept", h.AcceptOffer)
	api.Post("/:id/reject", h.RejectOffer)
	api.Post("/:id/withdraw", h.WithdrawOffer)
	api.Put("/:id/payment-link", h.UpdatePaymentLink)
	api.Put("/:id/payment-intent", h.UpdatePaymentIntent)
	api.Post("/:id/payment-failed", middleware.RequireAdmin(), h.MarkPaymentFailed)
}
