package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/models"
)

const (
	defaultTrendMonths = 6
	maxTrendMonths     = 24
)

// analyticsService computes spending aggregates over concrete expenses and
// caches them per user until the user's expenses change or the TTL expires.
type analyticsService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewAnalyticsService creates a new AnalyticsServicer whose entries live for ttl.
func NewAnalyticsService(db *gorm.DB, ttl time.Duration) AnalyticsServicer {
	return &analyticsService{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
}

func summaryKey(userID string, from, to time.Time) string {
	return fmt.Sprintf("%s:summary:%d:%d", userID, from.Unix(), to.Unix())
}

func trendKey(userID string, months int, now time.Time) string {
	return fmt.Sprintf("%s:trend:%d:%s", userID, months, now.Format("2006-01"))
}

// spending scopes a query to the concrete expenses of a user.
func (s *analyticsService) spending(userID string) *gorm.DB {
	return s.db.Model(&models.Expense{}).
		Where("expenses.user_id = ? AND expenses.is_recurring = ?", userID, false)
}

// GetSummary aggregates the user's expenses dated within [from, to].
func (s *analyticsService) GetSummary(userID string, from, to time.Time) (*SpendingSummary, error) {
	if to.Before(from) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must not be before from_date")
	}

	key := summaryKey(userID, from, to)
	if cached, found := s.cache.Get(key); found {
		return cached.(*SpendingSummary), nil
	}

	inRange := func() *gorm.DB {
		return s.spending(userID).Where("expenses.date >= ? AND expenses.date <= ?", from, to)
	}

	var totals struct {
		Total int64
		Count int64
	}
	if err := inRange().Select("COALESCE(SUM(expenses.amount), 0) AS total, COUNT(*) AS count").
		Scan(&totals).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byCategory := []CategoryTotal{}
	if err := inRange().
		Select("expenses.category_id AS category_id, categories.name AS category_name, SUM(expenses.amount) AS total, COUNT(*) AS count").
		Joins("LEFT JOIN categories ON categories.id = expenses.category_id").
		Group("expenses.category_id, categories.name").
		Order("total DESC").
		Scan(&byCategory).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	byPaymentMode := []PaymentModeTotal{}
	if err := inRange().
		Select("expenses.payment_mode AS payment_mode, SUM(expenses.amount) AS total, COUNT(*) AS count").
		Group("expenses.payment_mode").
		Order("total DESC").
		Scan(&byPaymentMode).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summary := &SpendingSummary{
		FromDate:      from,
		ToDate:        to,
		TotalSpent:    totals.Total,
		ExpenseCount:  totals.Count,
		ByCategory:    byCategory,
		ByPaymentMode: byPaymentMode,
	}
	if totals.Count > 0 {
		summary.Average = totals.Total / totals.Count
	}

	s.cache.SetDefault(key, summary)
	return summary, nil
}

// GetMonthlyTrend returns the totals of the last months calendar months up to
// and including the month of now, oldest first. Months without spending are zero.
func (s *analyticsService) GetMonthlyTrend(userID string, months int, now time.Time) ([]MonthlyTotal, error) {
	if months <= 0 {
		months = defaultTrendMonths
	}
	if months > maxTrendMonths {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("months must be at most %d", maxTrendMonths))
	}

	key := trendKey(userID, months, now)
	if cached, found := s.cache.Get(key); found {
		return cached.([]MonthlyTotal), nil
	}

	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := currentMonth.AddDate(0, -(months - 1), 0)
	end := currentMonth.AddDate(0, 1, 0)

	var rows []struct {
		Date   time.Time
		Amount int64
	}
	if err := s.spending(userID).
		Select("expenses.date AS date, expenses.amount AS amount").
		Where("expenses.date >= ? AND expenses.date < ?", start, end).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	trend := make([]MonthlyTotal, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		m := start.AddDate(0, i, 0).Format("2006-01")
		trend[i] = MonthlyTotal{Month: m}
		index[m] = i
	}
	for _, r := range rows {
		if i, ok := index[r.Date.In(now.Location()).Format("2006-01")]; ok {
			trend[i].Total += r.Amount
			trend[i].Count++
		}
	}

	s.cache.SetDefault(key, trend)
	return trend, nil
}

// Invalidate drops every cached aggregate of userID.
func (s *analyticsService) Invalidate(userID string) {
	prefix := userID + ":"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}
