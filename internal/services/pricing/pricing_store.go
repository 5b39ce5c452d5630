package pricing

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// BunStore продажи и оценки поверх bun
type BunStore struct {
	db *bun.DB
}

// NewBunStore создаёт хранилище оценок
func NewBunStore(bunDB *bun.DB) *BunStore {
	return &BunStore{db: bunDB}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// artistPattern строит ILIKE-шаблон «содержит имя»; пустое имя не даёт шаблона
func artistPattern(artistName string) (string, bool) {
	name := strings.TrimSpace(artistName)
	if name == "" {
		return "", false
	}
	return "%" + likeEscaper.Replace(name) + "%", true
}

func (s *BunStore) ListSalesByArtist(ctx context.Context, artistName string, limit int) ([]models.MarketSale, error) {
	pattern, ok := artistPattern(artistName)
	if !ok {
		return nil, nil
	}

	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var sales []models.MarketSale
	err := s.db.NewSelect().
		Model(&sales).
		Where("ms.artist_name ILIKE ?", pattern).
		Order("ms.sale_date DESC").
		Limit(limit).
		Scan(ctx)
	return sales, err
}

func (s *BunStore) InsertEvaluation(ctx context.Context, ev *models.PriceEvaluation) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.db.NewInsert().Model(ev).Exec(ctx)
	return err
}

func (s *BunStore) LatestEvaluation(ctx context.Context, artworkID uuid.UUID) (*models.PriceEvaluation, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	ev := new(models.PriceEvaluation)
	err := s.db.NewSelect().
		Model(ev).
		Where("pe.artwork_id = ?", artworkID).
		Order("pe.evaluated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEvaluation
		}
		return nil, err
	}
	return ev, nil
}

func (s *BunStore) History(ctx context.Context, artworkID uuid.UUID, limit int) ([]models.PriceEvaluation, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	evaluations := []models.PriceEvaluation{}
	err := s.db.NewSelect().
		Model(&evaluations).
		Where("pe.artwork_id = ?", artworkID).
		Order("pe.evaluated_at DESC").
		Limit(limit).
		Scan(ctx)
	return evaluations, err
}
