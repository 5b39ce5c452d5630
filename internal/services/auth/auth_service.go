package auth

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/utils"
)

// Service отдаёт данные текущего пользователя и продлевает токен
type Service struct {
	jwtService *utils.JWTService
	now        func() time.Time
}

// NewService создаёт Service
func NewService(jwtService *utils.JWTService) *Service {
	return &Service{jwtService: jwtService, now: time.Now}
}

// ProfileHandler возвращает ID и роль из токена
func (s *Service) ProfileHandler(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	role, _ := c.Locals("userRole").(string)

	return c.JSON(fiber.Map{
		"user_id":   userID,
		"role":      role,
		"is_admin":  role == utils.RoleAdmin,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// RefreshHandler выпускает новый токен с той же ролью
func (s *Service) RefreshHandler(c fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return err
	}
	role, _ := c.Locals("userRole").(string)

	token, err := s.jwtService.GenerateToken(userID.String(), role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate JWT"})
	}
	return c.JSON(fiber.Map{"token": token})
}

// SetupRoutes регистрирует маршруты в Fiber
func (s *Service) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	app.Get("/api/profile", authMiddleware, s.ProfileHandler)
	app.Post("/api/auth/refresh", authMiddleware, s.RefreshHandler)
}
