package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Artwork работа, выставленная на продажу
type Artwork struct {
	ID             uuid.UUID  `json:"id"`
	ArtistID       uuid.UUID  `json:"artist_id"`
	ArtistName     string     `json:"artist_name"`
	GalleryOwnerID *uuid.UUID `json:"gallery_owner_id,omitempty"`
	Title          string     `json:"title"`
	Medium         string     `json:"medium,omitempty"`
	WidthCM        *float64   `json:"width_cm,omitempty"`
	HeightCM       *float64   `json:"height_cm,omitempty"`
	PriceCents     int64      `json:"price_cents"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
}

// SellerID возвращает пользователя, который продаёт работу
func (a *Artwork) SellerID() uuid.UUID {
	if a.GalleryOwnerID != nil {
		return *a.GalleryOwnerID
	}
	return a.ArtistID
}

// CanManagePrice сообщает, может ли пользователь менять цену работы
func (a *Artwork) CanManagePrice(userID uuid.UUID) bool {
	if a.ArtistID == userID {
		return true
	}
	return a.GalleryOwnerID != nil && *a.GalleryOwnerID == userID
}

// MarketSale внешняя сделка, используемая как сопоставимая продажа
type MarketSale struct {
	bun.BaseModel `bun:"table:market_sales,alias:ms"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ArtistName     string    `bun:"artist_name,notnull" json:"artist_name"`
	SalePriceCents int64     `bun:"sale_price_cents,notnull" json:"sale_price_cents"`
	SaleDate       time.Time `bun:"sale_date,notnull" json:"sale_date"`
	Medium         *string   `bun:"medium" json:"medium,omitempty"`
	WidthCM        *float64  `bun:"width_cm" json:"width_cm,omitempty"`
	HeightCM       *float64  `bun:"height_cm" json:"height_cm,omitempty"`
	Source         *string   `bun:"source" json:"source,omitempty"`
	AuctionHouse   *string   `bun:"auction_house" json:"auction_house,omitempty"`
}

type Recommendation string

const (
	RecommendationUnderpriced      Recommendation = "underpriced"
	RecommendationFairlyPriced     Recommendation = "fairly_priced"
	RecommendationOverpriced       Recommendation = "overpriced"
	RecommendationInsufficientData Recommendation = "insufficient_data"
)

// PriceEvaluation снимок оценки цены; каждая оценка добавляется новой строкой
type PriceEvaluation struct {
	bun.BaseModel `bun:"table:price_evaluations,alias:pe"`

	ID                    uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ArtworkID             uuid.UUID      `bun:"artwork_id,type:uuid,notnull" json:"artwork_id"`
	CurrentPriceCents     int64          `bun:"current_price_cents,notnull" json:"current_price_cents"`
	MarketAvgPriceCents   *int64         `bun:"market_avg_price_cents" json:"market_avg_price_cents,omitempty"`
	MarketMedianCents     *int64         `bun:"market_median_price_cents" json:"market_median_price_cents,omitempty"`
	MarketMinPriceCents   *int64         `bun:"market_min_price_cents" json:"market_min_price_cents,omitempty"`
	MarketMaxPriceCents   *int64         `bun:"market_max_price_cents" json:"market_max_price_cents,omitempty"`
	ComparableSalesCount  int            `bun:"comparable_sales_count,notnull" json:"comparable_sales_count"`
	PriceDeviationPercent *float64       `bun:"price_deviation_percent" json:"price_deviation_percent,omitempty"`
	Recommendation        Recommendation `bun:"recommendation,notnull" json:"recommendation"`
	ConfidenceScore       float64        `bun:"confidence_score,notnull" json:"confidence_score"`
	EvaluationNotes       string         `bun:"evaluation_notes" json:"evaluation_notes"`
	EvaluatedAt           time.Time      `bun:"evaluated_at,notnull" json:"evaluated_at"`
}
