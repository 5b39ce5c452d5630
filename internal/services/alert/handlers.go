package alert

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Handler HTTP-обработчики уведомлений администраторов
type Handler struct {
	service *Service
}

// NewHandler создает новый экземпляр Handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListAlerts возвращает уведомления; ?unread=true, ?unresolved=true, ?limit=N
func (h *Handler) ListAlerts(c fiber.Ctx) error {
	filter := Filter{
		UnreadOnly:     fiber.Query[bool](c, "unread"),
		UnresolvedOnly: fiber.Query[bool](c, "unresolved"),
		Limit:          fiber.Query[int](c, "limit", 50),
	}

	alerts, err := h.service.List(c.Context(), filter)
	if err != nil {
		slog.Error("Failed to list admin alerts", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load alerts"})
	}

	return c.JSON(fiber.Map{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// MarkRead помечает уведомление прочитанным
func (h *Handler) MarkRead(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid alert ID"})
	}

	alert, err := h.service.MarkRead(c.Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"alert": alert})
}

// Resolve закрывает уведомление
func (h *Handler) Resolve(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid alert ID"})
	}

	alert, err := h.service.Resolve(c.Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"alert": alert})
}

func (h *Handler) writeError(c fiber.Ctx, err error) error {
	if errors.Is(err, ErrAlertNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Alert not found"})
	}
	slog.Error("Admin alert request failed", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update alert"})
}
