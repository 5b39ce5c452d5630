package escrow

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/utils"
)

// Handler HTTP-обработчики эскроу
type Handler struct {
	service *Service
}

// NewHandler создает новый экземпляр Handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetEscrow возвращает состояние эскроу по предложению
func (h *Handler) GetEscrow(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	role, _ := c.Locals("userRole").(string)
	approval, err := h.service.Get(c.Context(), offerID, userID, role == utils.RoleAdmin)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"escrow": approval,
		"state":  State(approval),
	})
}

// Approve подтверждает получение от имени вызывающей стороны
func (h *Handler) Approve(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	approval, err := h.service.Approve(c.Context(), offerID, userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"escrow": approval,
		"state":  State(approval),
	})
}

// Release выплачивает средства продавцу; только для администраторов
func (h *Handler) Release(c fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer ID"})
	}

	var req struct {
		TransferID string `json:"transfer_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	approval, err := h.service.ReleaseFunds(c.Context(), offerID, req.TransferID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"escrow": approval,
		"state":  State(approval),
	})
}

// PreviewFees показывает разбивку суммы; ?total_cents=N
func (h *Handler) PreviewFees(c fiber.Ctx) error {
	total := fiber.Query[int64](c, "total_cents", -1)
	amounts, err := h.service.Fees(c.Context(), total)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"total_cents": total,
		"amounts":     amounts,
	})
}

func writeError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrEscrowNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Escrow not found"})
	case errors.Is(err, ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a party of this escrow"})
	case errors.Is(err, ErrNotBothApproved), errors.Is(err, ErrAlreadyReleased):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "total_cents must be a non-negative integer"})
	}
	slog.Error("Escrow request failed", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Escrow operation failed"})
}
