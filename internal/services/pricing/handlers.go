package pricing

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
)

// Handler HTTP-обработчики оценки цен
type Handler struct {
	evaluator *Evaluator
	advisor   *Advisor
}

// NewHandler создает новый экземпляр Handler
func NewHandler(evaluator *Evaluator, advisor *Advisor) *Handler {
	return &Handler{evaluator: evaluator, advisor: advisor}
}

type artworkRequest struct {
	ArtworkID uuid.UUID `json:"artwork_id"`
}

func bindArtworkID(c fiber.Ctx) (uuid.UUID, error) {
	var req artworkRequest
	if err := c.Bind().Body(&req); err != nil || req.ArtworkID == uuid.Nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "artwork_id is required")
	}
	return req.ArtworkID, nil
}

// Evaluate запускает новую оценку работы
func (h *Handler) Evaluate(c fiber.Ctx) error {
	artworkID, err := bindArtworkID(c)
	if err != nil {
		return err
	}

	ev, err := h.evaluator.EvaluateArtworkPrice(c.Context(), artworkID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"evaluation": ev})
}

// Advise возвращает рекомендацию по цене
func (h *Handler) Advise(c fiber.Ctx) error {
	artworkID, err := bindArtworkID(c)
	if err != nil {
		return err
	}

	advice, err := h.advisor.Advise(c.Context(), artworkID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"advice": advice})
}

// ApplySuggestion выставляет рекомендованную цену
func (h *Handler) ApplySuggestion(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	artworkID, err := bindArtworkID(c)
	if err != nil {
		return err
	}

	advice, err := h.advisor.ApplySuggestion(c.Context(), artworkID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"artwork_id":  artworkID,
		"price_cents": advice.SuggestedPriceCents,
	})
}

// History возвращает историю оценок; ?limit=N
func (h *Handler) History(c fiber.Ctx) error {
	artworkID, err := uuid.Parse(c.Params("artworkId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid artwork ID"})
	}

	evaluations, err := h.evaluator.History(c.Context(), artworkID, fiber.Query[int](c, "limit", 20))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"evaluations": evaluations})
}

// EvaluateAll запускает пакетную оценку всех работ; только для администраторов
func (h *Handler) EvaluateAll(c fiber.Ctx) error {
	result, err := h.evaluator.EvaluateAll(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"result": result})
}

func writeError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, db.ErrArtworkNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Artwork not found"})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNoSuggestion):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error("Pricing request failed", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to evaluate price"})
}
