package db

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema создаёт таблицы и функцию calculate_escrow_amounts, если их ещё нет
func ApplySchema(ctx context.Context) error {
	// Без аргументов pgx идёт через simple protocol: несколько команд за один вызов
	if _, err := Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	slog.Info("Database schema applied")
	return nil
}
