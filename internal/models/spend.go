package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// AISpendLog запись о расходе на AI; таблица только на добавление
type AISpendLog struct {
	bun.BaseModel `bun:"table:ai_spend_logs,alias:asl"`

	ID         uuid.UUID       `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID  string          `bun:"project_id,notnull" json:"project_id"`
	Amount     decimal.Decimal `bun:"amount,type:numeric(12,4),notnull" json:"amount"`
	Reason     string          `bun:"reason,notnull" json:"reason"`
	Provider   *string         `bun:"provider" json:"provider,omitempty"`
	Model      *string         `bun:"model" json:"model,omitempty"`
	TokensUsed *int64          `bun:"tokens_used" json:"tokens_used,omitempty"`
	CreatedAt  time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ProjectAllocation месячный бюджет конкретного проекта
type ProjectAllocation struct {
	bun.BaseModel `bun:"table:ai_project_allocations,alias:apa"`

	ProjectID         string          `bun:"project_id,pk" json:"project_id"`
	MonthlyAllocation decimal.Decimal `bun:"monthly_allocation,type:numeric(12,2),notnull" json:"monthly_allocation"`
}

// FounderSettings глобальные лимиты расходов на AI.
// Передаётся в проверки явно, а не читается из общей строки на каждый вызов.
type FounderSettings struct {
	DailyCap              decimal.Decimal `json:"daily_cap"`
	WeeklyCap             decimal.Decimal `json:"weekly_cap"`
	MonthlyBudget         decimal.Decimal `json:"monthly_budget"`
	BufferPercent         decimal.Decimal `json:"buffer_percent"`
	HardLimitEnabled      bool            `json:"hard_limit_enabled"`
	AlertThresholdPercent decimal.Decimal `json:"alert_threshold_percent"`
}
