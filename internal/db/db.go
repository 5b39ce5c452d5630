package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
)

const queryTimeout = 5 * time.Second

// Pool представляет пул соединений с базой данных
var Pool *pgxpool.Pool

// Bun ORM поверх той же базы; используется для журналов расходов и оценок цен
var Bun *bun.DB

// InitDB инициализирует соединение с базой данных
func InitDB(cfg *config.Config) error {
	var err error

	slog.Info("Connecting to database",
		slog.String("host", cfg.DatabaseConfig.Host),
		slog.String("database", cfg.DatabaseConfig.Name))

	// Создаем контекст с таймаутом для подключения
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database url: %w", err)
	}

	poolConfig.MaxConns = cfg.DatabaseConfig.MaxConns
	poolConfig.MinConns = cfg.DatabaseConfig.MinConns

	Pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверяем соединение
	if err = Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseURL)))
	Bun = bun.NewDB(sqldb, pgdialect.New())

	if err = Bun.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database via bun: %w", err)
	}

	slog.Info("Database connected")
	return nil
}

// CloseDB закрывает соединения с базой данных
func CloseDB() {
	if Bun != nil {
		if err := Bun.Close(); err != nil {
			slog.Error("Failed to close bun db", slog.Any("error", err))
		}
	}
	if Pool != nil {
		Pool.Close()
	}
}

// GetContext возвращает контекст с таймаутом для запросов к базе данных
func GetContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, queryTimeout)
}
