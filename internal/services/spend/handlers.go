package spend

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Handler HTTP-обработчики контроля расходов на AI
type Handler struct {
	guard    *Guard
	smoother *Smoother
	settings models.FounderSettings
}

// NewHandler создает новый экземпляр Handler с лимитами из конфигурации
func NewHandler(guard *Guard, smoother *Smoother, settings models.FounderSettings) *Handler {
	return &Handler{guard: guard, smoother: smoother, settings: settings}
}

// Check проверяет, можно ли потратить amount
func (h *Handler) Check(c fiber.Ctx) error {
	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		ProjectID string          `json:"project_id"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	decision, err := h.guard.CheckAllowed(c.Context(), h.settings, req.Amount, req.ProjectID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(decision)
}

// Log записывает фактический расход
func (h *Handler) Log(c fiber.Ctx) error {
	var entry models.AISpendLog
	if err := c.Bind().Body(&entry); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.guard.LogSpend(c.Context(), &entry); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"entry": entry})
}

// Summary возвращает расходы по текущим периодам
func (h *Handler) Summary(c fiber.Ctx) error {
	summary, err := h.guard.Summary(c.Context(), h.settings, c.Query("project_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}

// Metrics возвращает сглаженные метрики; ?window=N дней
func (h *Handler) Metrics(c fiber.Ctx) error {
	m, err := h.smoother.SmoothedMetrics(c.Context(), c.Query("project_id"), fiber.Query[int](c, "window", DefaultWindowDays))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(m)
}

// Anomalies возвращает обнаруженные аномалии
func (h *Handler) Anomalies(c fiber.Ctx) error {
	anomalies, err := h.smoother.DetectAnomalies(c.Context(), c.Query("project_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"anomalies": anomalies})
}

// Forecast возвращает прогноз; ?days=N
func (h *Handler) Forecast(c fiber.Ctx) error {
	points, err := h.smoother.Forecast(c.Context(), c.Query("project_id"), fiber.Query[int](c, "days", DefaultForecastDays))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"forecast": points})
}

func writeError(c fiber.Ctx, err error) error {
	if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrMissingProject) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error("AI spend request failed", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process AI spend request"})
}
