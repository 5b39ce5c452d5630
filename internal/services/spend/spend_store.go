package spend

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// BunStore журнал расходов поверх bun
type BunStore struct {
	db *bun.DB
}

// NewBunStore создаёт хранилище журнала расходов
func NewBunStore(bunDB *bun.DB) *BunStore {
	return &BunStore{db: bunDB}
}

func (s *BunStore) Insert(ctx context.Context, entry *models.AISpendLog) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.db.NewInsert().Model(entry).Exec(ctx)
	return err
}

func (s *BunStore) SumSince(ctx context.Context, projectID string, since time.Time) (decimal.Decimal, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var total decimal.Decimal
	q := s.db.NewSelect().
		Model((*models.AISpendLog)(nil)).
		ColumnExpr("COALESCE(SUM(asl.amount), 0)").
		Where("asl.created_at >= ?", since)
	if projectID != "" {
		q = q.Where("asl.project_id = ?", projectID)
	}

	if err := q.Scan(ctx, &total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *BunStore) ListSince(ctx context.Context, projectID string, since time.Time) ([]models.AISpendLog, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var logs []models.AISpendLog
	q := s.db.NewSelect().
		Model(&logs).
		Where("asl.created_at >= ?", since).
		Order("asl.created_at ASC")
	if projectID != "" {
		q = q.Where("asl.project_id = ?", projectID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *BunStore) GetAllocation(ctx context.Context, projectID string) (*models.ProjectAllocation, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	alloc := new(models.ProjectAllocation)
	err := s.db.NewSelect().
		Model(alloc).
		Where("apa.project_id = ?", projectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return alloc, nil
}
