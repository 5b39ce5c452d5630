package offer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Handler HTTP-обработчики предложений
type Handler struct {
	service *Service
}

// NewHandler создает новый экземпляр Handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateOffer создаёт предложение от имени текущего пользователя
func (h *Handler) CreateOffer(c fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	var req CreateInput
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ArtworkID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "artwork_id is required"})
	}

	offer, err := h.service.CreateOffer(c.Context(), buyerID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offer": offer})
}

// ListOffers возвращает предложения пользователя; ?role=buyer|seller|all, ?status=...
func (h *Handler) ListOffers(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}

	offers, err := h.service.ListOffersForUser(c.Context(), userID,
		Role(c.Query("role", string(RoleAll))),
		models.OfferStatus(c.Query("status")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"offers": offers,
		"count":  len(offers),
	})
}

// GetOffer возвращает предложение участнику сделки
func (h *Handler) GetOffer(c fiber.Ctx) error {
	return h.withOffer(c, h.service.GetOffer)
}

// AcceptOffer принимает предложение
func (h *Handler) AcceptOffer(c fiber.Ctx) error {
	return h.withOffer(c, h.service.AcceptOffer)
}

// RejectOffer отклоняет предложение
func (h *Handler) RejectOffer(c fiber.Ctx) error {
	return h.withOffer(c, h.service.RejectOffer)
}

// WithdrawOffer отзывает предложение
func (h *Handler) WithdrawOffer(c fiber.Ctx) error {
	return h.withOffer(c, h.service.WithdrawOffer)
}

// UpdatePaymentLink сохраняет ссылку на оплату
func (h *Handler) UpdatePaymentLink(c fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}
	if err := h.requireSeller(c, offerID); err != nil {
		return writeError(c, err)
	}

	var req struct {
		PaymentLinkID  string `json:"payment_link_id"`
		PaymentLinkURL string `json:"payment_link_url"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	offer, err := h.service.UpdateOfferPaymentLink(c.Context(), offerID, req.PaymentLinkID, req.PaymentLinkURL)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}

// UpdatePaymentIntent сохраняет ID платёжного намерения
func (h *Handler) UpdatePaymentIntent(c fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}
	if err := h.requireParty(c, offerID); err != nil {
		return writeError(c, err)
	}

	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	offer, err := h.service.UpdateOfferPaymentIntent(c.Context(), offerID, req.PaymentIntentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}

// MarkPaymentFailed фиксирует неудачную оплату; только для администраторов
func (h *Handler) MarkPaymentFailed(c fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Reason == "" {
		req.Reason = "unknown"
	}

	offer, err := h.service.MarkPaymentFailed(c.Context(), offerID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}

func (h *Handler) withOffer(c fiber.Ctx, op func(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error)) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	offer, err := op(c.Context(), offerID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"offer": offer})
}

// requireParty возвращает ErrUnauthorized, если вызывающий не участник сделки
func (h *Handler) requireParty(c fiber.Ctx, offerID uuid.UUID) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	_, err = h.service.GetOffer(c.Context(), offerID, userID)
	return err
}

// requireSeller возвращает ErrUnauthorized, если вызывающий не продавец
func (h *Handler) requireSeller(c fiber.Ctx, offerID uuid.UUID) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	offer, err := h.service.GetOffer(c.Context(), offerID, userID)
	if err != nil {
		return err
	}
	if offer.SellerID != userID {
		return ErrUnauthorized
	}
	return nil
}

func writeError(c fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr
	}

	switch {
	case errors.Is(err, ErrOfferNotFound), errors.Is(err, db.ErrArtworkNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrOfferNotPending), errors.Is(err, ErrOfferNotAccepted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrSelfOffer),
		errors.Is(err, ErrArtworkUnavailable), errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error("Offer request failed", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Offer operation failed"})
}
