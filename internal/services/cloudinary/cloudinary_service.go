package cloudinary

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
)

var ErrNotConfigured = errors.New("cloudinary is not configured")

// UploadParams параметры прямой загрузки изображения работы из браузера
type UploadParams struct {
	Timestamp    int64  `json:"timestamp"`
	Signature    string `json:"signature"`
	APIKey       string `json:"api_key"`
	CloudName    string `json:"cloud_name"`
	Folder       string `json:"folder"`
	UploadPreset string `json:"upload_preset,omitempty"`
	ArtworkID    string `json:"artwork_id"`
}

// Service подписывает параметры загрузки изображений в Cloudinary
type Service struct {
	cld          *cloudinary.Cloudinary
	uploadFolder string
	uploadPreset string
	now          func() time.Time
}

// NewService создаёт сервис; без ключей Cloudinary возвращает ErrNotConfigured
func NewService(cfg config.CloudinaryConfig) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	return &Service{
		cld:          cld,
		uploadFolder: cfg.UploadFolder,
		uploadPreset: cfg.UploadPreset,
		now:          time.Now,
	}, nil
}

// GenerateSignature подписывает параметры загрузки секретом аккаунта (SHA-1)
func (s *Service) GenerateSignature(params url.Values) (string, error) {
	return api.SignParameters(params, s.cld.Config.Cloud.APISecret)
}

// UploadParams готовит подписанные параметры для папки конкретной работы
func (s *Service) UploadParams(artworkID uuid.UUID) (*UploadParams, error) {
	ts := s.now().Unix()
	folder := path.Join(s.uploadFolder, artworkID.String())

	params := url.Values{}
	params.Set("folder", folder)
	params.Set("timestamp", strconv.FormatInt(ts, 10))
	if s.uploadPreset != "" {
		params.Set("upload_preset", s.uploadPreset)
	}

	signature, err := s.GenerateSignature(params)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload params: %w", err)
	}

	return &UploadParams{
		Timestamp:    ts,
		Signature:    signature,
		APIKey:       s.cld.Config.Cloud.APIKey,
		CloudName:    s.cld.Config.Cloud.CloudName,
		Folder:       folder,
		UploadPreset: s.uploadPreset,
		ArtworkID:    artworkID.String(),
	}, nil
}

// GenerateUploadParams отдаёт параметры загрузки; ?artwork_id=, без него создаётся новый ID
func (s *Service) GenerateUploadParams(c fiber.Ctx) error {
	artworkID := uuid.New()
	if raw := c.Query("artwork_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid artwork ID"})
		}
		artworkID = id
	}
	params, err := s.UploadParams(artworkID)
	if err != nil {
		slog.Error("Failed to generate upload params",
			slog.String("artwork_id", artworkID.String()),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate upload params"})
	}
	return c.JSON(params)
}

// SetupRoutes настраивает маршрут параметров загрузки
func (s *Service) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	app.Get("/api/upload/params", authMiddleware, s.GenerateUploadParams)
}
