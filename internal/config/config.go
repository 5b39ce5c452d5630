package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Config структура конфигурации
type Config struct {
	JWTSecret        string
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	AppEnv           string
	LogLevel         slog.Level
	HTTPPort         string
	WSPort           string
	AutoMigrate      bool

	Offers  OfferConfig
	Spend   models.FounderSettings
	Pricing PricingConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
	UploadFolder string
}

// OfferConfig задаёт сроки жизненного цикла предложений и эскроу
type OfferConfig struct {
	OfferTTL       time.Duration
	PaymentWindow  time.Duration
	ApprovalWindow time.Duration
}

// PricingConfig задаёт пороги оценки цены
type PricingConfig struct {
	RecencyYears       int
	ComparableLimit    int
	MinComparables     int
	MaxAreaRatio       float64
	UnderpricedPercent float64
	OverpricedPercent  float64
	BatchWorkers       int
	BatchInterval      time.Duration
	CacheSize          int
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

// DefaultOfferConfig возвращает сроки по умолчанию
func DefaultOfferConfig() OfferConfig {
	return OfferConfig{
		OfferTTL:       72 * time.Hour,
		PaymentWindow:  48 * time.Hour,
		ApprovalWindow: 14 * 24 * time.Hour,
	}
}

// DefaultPricingConfig возвращает пороги оценки по умолчанию
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		RecencyYears:       5,
		ComparableLimit:    100,
		MinComparables:     3,
		MaxAreaRatio:       1.5,
		UnderpricedPercent: 20,
		OverpricedPercent:  30,
		BatchWorkers:       4,
		BatchInterval:      100 * time.Millisecond,
		CacheSize:          512,
	}
}

// DefaultFounderSettings возвращает лимиты расходов на AI по умолчанию
func DefaultFounderSettings() models.FounderSettings {
	return models.FounderSettings{
		DailyCap:              decimal.NewFromInt(50),
		WeeklyCap:             decimal.NewFromInt(250),
		MonthlyBudget:         decimal.NewFromInt(800),
		BufferPercent:         decimal.NewFromInt(10),
		HardLimitEnabled:      true,
		AlertThresholdPercent: decimal.NewFromInt(80),
	}
}

// LoadConfig загружает переменные из .env и, если задан TUNING_FILE, пороги из TOML
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env file not found, using environment variables")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "artbazaar"),
		Password: getEnv("PGPASSWORD", "artbazaar"),
		Name:     getEnv("PGDATABASE", "artbazaar"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
		MaxConns: int32(getEnvInt("PG_MAX_CONNS", 10)),
		MinConns: int32(getEnvInt("PG_MIN_CONNS", 2)),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	cfg := &Config{
		JWTSecret:      getEnv("JWT_SECRET", ""),
		DatabaseURL:    getEnv("DATABASE_URL", dbURL),
		DatabaseConfig: dbConfig,
		CloudinaryConfig: CloudinaryConfig{
			CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:       getEnv("CLOUDINARY_API_KEY", ""),
			APISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
			UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "artbazaar_artworks"),
			UploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "artworks"),
		},
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
		HTTPPort: getEnv("PORT", "8080"),
		WSPort:   getEnv("WS_PORT", "8081"),
		// DB_AUTO_MIGRATE=true применяет встроенную схему при старте API
		AutoMigrate: getEnv("DB_AUTO_MIGRATE", "false") == "true",
		Offers:      DefaultOfferConfig(),
		Spend:       DefaultFounderSettings(),
		Pricing:     DefaultPricingConfig(),
	}

	if path := getEnv("TUNING_FILE", ""); path != "" {
		if err := cfg.ApplyTuningFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	return cfg, nil
}

// IsDevelopment сообщает, запущено ли приложение локально
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			slog.String("key", key),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return n
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
