package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// ErrArtworkNotFound возвращается, когда работы с таким ID нет
var ErrArtworkNotFound = errors.New("artwork not found")

// ArtworkStore читает и обновляет работы в каталоге
type ArtworkStore struct {
	pool *pgxpool.Pool
}

// NewArtworkStore создаёт хранилище работ поверх пула
func NewArtworkStore(pool *pgxpool.Pool) *ArtworkStore {
	return &ArtworkStore{pool: pool}
}

// GetArtwork возвращает работу вместе с именем художника
func (s *ArtworkStore) GetArtwork(ctx context.Context, id uuid.UUID) (*models.Artwork, error) {
	ctx, cancel := GetContext(ctx)
	defer cancel()

	var a models.Artwork
	var medium *string
	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.artist_id, COALESCE(ar.name, ''), g.owner_id, a.title, a.medium,
		       a.width_cm, a.height_cm, a.price_cents, a.currency, a.status
		FROM artworks a
		LEFT JOIN artists ar ON ar.id = a.artist_id
		LEFT JOIN galleries g ON g.id = a.gallery_id
		WHERE a.id = $1
	`, id).Scan(
		&a.ID,
		&a.ArtistID,
		&a.ArtistName,
		&a.GalleryOwnerID,
		&a.Title,
		&medium,
		&a.WidthCM,
		&a.HeightCM,
		&a.PriceCents,
		&a.Currency,
		&a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtworkNotFound
		}
		return nil, fmt.Errorf("failed to get artwork: %w", err)
	}
	if medium != nil {
		a.Medium = *medium
	}

	return &a, nil
}

// ListActiveArtworkIDs возвращает ID всех работ, выставленных на продажу
func (s *ArtworkStore) ListActiveArtworkIDs(ctx context.Context) ([]uuid.UUID, error) {
	ctx, cancel := GetContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM artworks
		WHERE status = 'active' AND price_cents > 0
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artworks: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan artwork ids: %w", err)
	}
	return ids, nil
}

// UpdateArtworkPrice выставляет новую цену работы
func (s *ArtworkStore) UpdateArtworkPrice(ctx context.Context, id uuid.UUID, priceCents int64) error {
	ctx, cancel := GetContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE artworks
		SET price_cents = $1, updated_at = NOW()
		WHERE id = $2
	`, priceCents, id)
	if err != nil {
		return fmt.Errorf("failed to update artwork price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrArtworkNotFound
	}
	return nil
}
