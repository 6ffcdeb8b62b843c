package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// RecurringType is the recurrence of an expense template.
type RecurringType string

const (
	RecurringDaily   RecurringType = "daily"
	RecurringWeekly  RecurringType = "weekly"
	RecurringMonthly RecurringType = "monthly"
	RecurringYearly  RecurringType = "yearly"
)

// Known reports whether t is one of the supported recurrences.
func (t RecurringType) Known() bool {
	switch t {
	case RecurringDaily, RecurringWeekly, RecurringMonthly, RecurringYearly:
		return true
	}
	return false
}

// PaymentMode is how an expense was paid.
type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "cash"
	PaymentModeCard         PaymentMode = "card"
	PaymentModeUPI          PaymentMode = "upi"
	PaymentModeBankTransfer PaymentMode = "bank_transfer"
	PaymentModeWallet       PaymentMode = "wallet"
	PaymentModeOther        PaymentMode = "other"
)

// Known reports whether m is a supported payment mode.
func (m PaymentMode) Known() bool {
	switch m {
	case PaymentModeCash, PaymentModeCard, PaymentModeUPI, PaymentModeBankTransfer, PaymentModeWallet, PaymentModeOther:
		return true
	}
	return false
}

// ErrRecurringTypeRequired is returned by the save hook when a template has no recurrence.
var ErrRecurringTypeRequired = errors.New("recurring_type must be set when is_recurring is true")

// Expense is either a recurring template (IsRecurring true) or a concrete dated
// instance. Instances produced by the materializer carry TemplateID and PeriodKey;
// the pair is unique so a period is materialized at most once per template.
type Expense struct {
	Base
	UserID        string         `gorm:"type:uuid;not null;index:idx_expenses_user_date,priority:1" json:"user_id"`
	CategoryID    string         `gorm:"type:uuid;not null;index" json:"category_id"`
	SubcategoryID *string        `gorm:"type:uuid" json:"subcategory_id,omitempty"`
	Title         string         `gorm:"not null" json:"title"`
	Amount        int64          `gorm:"type:bigint;not null" json:"amount"`
	PaymentMode   PaymentMode    `gorm:"not null" json:"payment_mode"`
	Date          time.Time      `gorm:"not null;index:idx_expenses_user_date,priority:2" json:"date"`
	Notes         string         `json:"notes,omitempty"`
	IsRecurring   bool           `gorm:"not null" json:"is_recurring"`
	RecurringType *RecurringType `json:"recurring_type,omitempty"`
	TemplateID    *string        `gorm:"type:uuid;uniqueIndex:uq_expenses_template_period,priority:1" json:"template_id,omitempty"`
	PeriodKey     *string        `gorm:"size:10;uniqueIndex:uq_expenses_template_period,priority:2" json:"period_key,omitempty"`

	Category    *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Subcategory *Category `gorm:"foreignKey:SubcategoryID" json:"subcategory,omitempty"`
}

// BeforeSave enforces that templates always carry a recurrence.
func (e *Expense) BeforeSave(_ *gorm.DB) error {
	if e.IsRecurring && (e.RecurringType == nil || *e.RecurringType == "") {
		return ErrRecurringTypeRequired
	}
	return nil
}
