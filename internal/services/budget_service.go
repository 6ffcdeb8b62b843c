package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
)

// budgetService handles budget-related business logic.
type budgetService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBudgetService creates a new BudgetServicer.
func NewBudgetService(db *gorm.DB) BudgetServicer {
	return &budgetService{db: db, now: time.Now}
}

// CreateBudget creates a new budget for a category.
func (s *budgetService) CreateBudget(
	userID, categoryID string,
	name string,
	amount int64,
	period models.BudgetPeriod,
	startDate time.Time,
	endDate *time.Time,
) (*models.Budget, error) {
	if amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if endDate != nil && endDate.Before(startDate) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "end_date must not be before start_date")
	}

	var category models.Category
	if err := s.db.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	budget := &models.Budget{
		UserID:     userID,
		CategoryID: categoryID,
		Name:       name,
		Amount:     amount,
		Period:     period,
		StartDate:  startDate,
		EndDate:    endDate,
		IsActive:   true,
	}

	if err := s.db.Create(budget).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return budget, nil
}

// GetUserBudgets returns a paginated list of budgets for the user with optional filters.
func (s *budgetService) GetUserBudgets(
	userID string,
	page pagination.PageRequest,
	filter BudgetFilter,
) (*pagination.PageResponse[models.Budget], error) {
	page.Defaults()

	base := s.db.Model(&models.Budget{}).Where("user_id = ?", userID)
	if filter.IsActive != nil {
		base = base.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Period != nil {
		base = base.Where("period = ?", *filter.Period)
	}
	if filter.CategoryID != nil {
		base = base.Where("category_id = ?", *filter.CategoryID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var budgets []models.Budget
	if err := base.Preload("Category").Order("created_at DESC").Scopes(pagination.Paginate(page)).Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(budgets, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetBudgetByID returns a budget by ID if it belongs to the user.
func (s *budgetService) GetBudgetByID(userID, budgetID string) (*models.Budget, error) {
	var budget models.Budget
	if err := s.db.Preload("Category").Where("id = ? AND user_id = ?", budgetID, userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// UpdateBudget updates an existing budget's fields.
func (s *budgetService) UpdateBudget(
	userID, budgetID string,
	name string,
	amount *int64,
	period *models.BudgetPeriod,
	endDate *time.Time,
	isActive *bool,
) (*models.Budget, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name != "" {
		updates["name"] = name
	}
	if amount != nil {
		if *amount <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
		}
		updates["amount"] = *amount
	}
	if period != nil {
		updates["period"] = *period
	}
	if endDate != nil {
		if endDate.Before(budget.StartDate) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "end_date must not be before start_date")
		}
		updates["end_date"] = endDate
	}
	if isActive != nil {
		updates["is_active"] = *isActive
	}

	if len(updates) > 0 {
		if err := s.db.Model(budget).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetBudgetByID(userID, budgetID)
}

// DeleteBudget soft-deletes a budget.
func (s *budgetService) DeleteBudget(userID, budgetID string) error {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(budget).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// budgetPeriodWindow returns the [start, end) window of the period containing now.
func budgetPeriodWindow(period models.BudgetPeriod, now time.Time) (time.Time, time.Time) {
	switch period {
	case models.BudgetPeriodYearly:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	}
}

// GetBudgetProgress calculates spending vs budget for the period containing asOf.
// Templates are excluded; only concrete expenses count as spending.
func (s *budgetService) GetBudgetProgress(userID, budgetID string, asOf time.Time) (*BudgetProgress, error) {
	budget, err := s.GetBudgetByID(userID, budgetID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	periodStart, periodEnd := budgetPeriodWindow(budget.Period, asOf)

	var spent int64
	err = s.db.Model(&models.Expense{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND is_recurring = ?", userID, false).
		Where("(category_id = ? OR subcategory_id = ?)", budget.CategoryID, budget.CategoryID).
		Where("date >= ? AND date < ?", periodStart, periodEnd).
		Scan(&spent).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var percentage float64
	if budget.Amount > 0 {
		percentage = float64(spent) / float64(budget.Amount) * 100
	}

	return &BudgetProgress{
		BudgetID:    budget.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Budgeted:    budget.Amount,
		Spent:       spent,
		Remaining:   budget.Amount - spent,
		Percentage:  percentage,
	}, nil
}
