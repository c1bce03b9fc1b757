package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// DefaultMonthlyArticleAllowance applies when no PaywallConfig row exists.
const DefaultMonthlyArticleAllowance = 3

// PaywallConfig is a singleton configuration row holding the free-tier
// monthly article allowance. Mutated by an out-of-scope admin tool; the gate
// only reads it.
type PaywallConfig struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	MonthlyArticleAllowance int       `gorm:"not null;default:3" json:"monthly_article_allowance" validate:"min=0"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetMonthlyArticleAllowance loads the configured allowance, falling back to
// the default when the singleton row is missing.
func GetMonthlyArticleAllowance(db *gorm.DB) (int, error) {
	var cfg PaywallConfig
	err := db.Order("id").First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultMonthlyArticleAllowance, nil
		}
		return DefaultMonthlyArticleAllowance, err
	}
	if cfg.MonthlyArticleAllowance < 0 {
		return DefaultMonthlyArticleAllowance, nil
	}
	return cfg.MonthlyArticleAllowance, nil
}
