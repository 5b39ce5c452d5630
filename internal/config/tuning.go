package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// tuningFile описывает необязательный TOML-файл с порогами.
// Поля-указатели позволяют отличить «не задано» от нуля.
type tuningFile struct {
	Offers struct {
		OfferTTL       string `toml:"offer_ttl"`
		PaymentWindow  string `toml:"payment_window"`
		ApprovalWindow string `toml:"approval_window"`
	} `toml:"offers"`

	Spend struct {
		DailyCap              *float64 `toml:"daily_cap"`
		WeeklyCap             *float64 `toml:"weekly_cap"`
		MonthlyBudget         *float64 `toml:"monthly_budget"`
		BufferPercent         *float64 `toml:"buffer_percent"`
		HardLimitEnabled      *bool    `toml:"hard_limit_enabled"`
		AlertThresholdPercent *float64 `toml:"alert_threshold_percent"`
	} `toml:"spend"`

	Pricing struct {
		RecencyYears       *int     `toml:"recency_years"`
		ComparableLimit    *int     `toml:"comparable_limit"`
		MinComparables     *int     `toml:"min_comparables"`
		MaxAreaRatio       *float64 `toml:"max_area_ratio"`
		UnderpricedPercent *float64 `toml:"underpriced_percent"`
		OverpricedPercent  *float64 `toml:"overpriced_percent"`
		BatchWorkers       *int     `toml:"batch_workers"`
		BatchInterval      string   `toml:"batch_interval"`
		CacheSize          *int     `toml:"cache_size"`
	} `toml:"pricing"`
}

// ApplyTuningFile накладывает значения из TOML-файла поверх текущей конфигурации
func (c *Config) ApplyTuningFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open tuning file: %w", err)
	}
	defer file.Close()

	var t tuningFile
	if err := toml.NewDecoder(file).Decode(&t); err != nil {
		return fmt.Errorf("failed to decode tuning file: %w", err)
	}

	if err := setDuration(&c.Offers.OfferTTL, t.Offers.OfferTTL); err != nil {
		return err
	}
	if err := setDuration(&c.Offers.PaymentWindow, t.Offers.PaymentWindow); err != nil {
		return err
	}
	if err := setDuration(&c.Offers.ApprovalWindow, t.Offers.ApprovalWindow); err != nil {
		return err
	}

	setDecimal(&c.Spend.DailyCap, t.Spend.DailyCap)
	setDecimal(&c.Spend.WeeklyCap, t.Spend.WeeklyCap)
	setDecimal(&c.Spend.MonthlyBudget, t.Spend.MonthlyBudget)
	setDecimal(&c.Spend.BufferPercent, t.Spend.BufferPercent)
	setDecimal(&c.Spend.AlertThresholdPercent, t.Spend.AlertThresholdPercent)
	if t.Spend.HardLimitEnabled != nil {
		c.Spend.HardLimitEnabled = *t.Spend.HardLimitEnabled
	}

	p := &c.Pricing
	setInt(&p.RecencyYears, t.Pricing.RecencyYears)
	setInt(&p.ComparableLimit, t.Pricing.ComparableLimit)
	setInt(&p.MinComparables, t.Pricing.MinComparables)
	setInt(&p.BatchWorkers, t.Pricing.BatchWorkers)
	setInt(&p.CacheSize, t.Pricing.CacheSize)
	setFloat(&p.MaxAreaRatio, t.Pricing.MaxAreaRatio)
	setFloat(&p.UnderpricedPercent, t.Pricing.UnderpricedPercent)
	setFloat(&p.OverpricedPercent, t.Pricing.OverpricedPercent)
	return setDuration(&p.BatchInterval, t.Pricing.BatchInterval)
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q in tuning file: %w", raw, err)
	}
	*dst = d
	return nil
}

func setDecimal(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
