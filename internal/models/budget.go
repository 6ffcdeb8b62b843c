package models

import "time"

// BudgetPeriod represents the period type for a budget
type BudgetPeriod string

const (
	BudgetPeriodMonthly BudgetPeriod = "monthly"
	BudgetPeriodYearly  BudgetPeriod = "yearly"
)

// Budget caps spending in a category per period. Amounts are in minor units.
type Budget struct {
	Base
	UserID     string       `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID string       `gorm:"type:uuid;not null" json:"category_id"`
	Name       string       `gorm:"not null" json:"name"`
	Amount     int64        `gorm:"type:bigint;not null" json:"amount"`
	Period     BudgetPeriod `gorm:"not null" json:"period"`
	StartDate  time.Time    `gorm:"not null" json:"start_date"`
	EndDate    *time.Time   `json:"end_date,omitempty"`
	IsActive   bool         `gorm:"default:true" json:"is_active"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
