package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/events"
	"pocketledger/internal/logger"
	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
)

// expenseService handles expenses and recurring templates.
type expenseService struct {
	db        *gorm.DB
	publisher events.Publisher
	cache     CacheInvalidator
}

// NewExpenseService creates a new ExpenseServicer. publisher and cache may be nil.
func NewExpenseService(db *gorm.DB, publisher events.Publisher, cache CacheInvalidator) ExpenseServicer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &expenseService{db: db, publisher: publisher, cache: cache}
}

var expenseSortColumns = map[string]string{
	"date":       "date",
	"amount":     "amount",
	"title":      "title",
	"created_at": "created_at",
}

// CreateExpense records a one-off expense, or a template when in.IsRecurring is set.
func (s *expenseService) CreateExpense(userID string, in ExpenseInput) (*models.Expense, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "title is required")
	}
	if in.Amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if in.Date.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "date is required")
	}
	if in.PaymentMode == "" {
		in.PaymentMode = models.PaymentModeCash
	}
	if !in.PaymentMode.Known() {
		return nil, apperrors.ErrInvalidPaymentMode
	}
	if err := validateRecurrence(in.IsRecurring, in.RecurringType); err != nil {
		return nil, err
	}
	if err := s.validateCategories(userID, in.CategoryID, in.SubcategoryID); err != nil {
		return nil, err
	}

	expense := &models.Expense{
		UserID:        userID,
		CategoryID:    in.CategoryID,
		SubcategoryID: emptyToNil(in.SubcategoryID),
		Title:         strings.TrimSpace(in.Title),
		Amount:        in.Amount,
		PaymentMode:   in.PaymentMode,
		Date:          in.Date,
		Notes:         in.Notes,
		IsRecurring:   in.IsRecurring,
		RecurringType: in.RecurringType,
	}
	if err := s.db.Create(expense).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.afterWrite(userID)
	if !expense.IsRecurring {
		msg := events.NewExpenseCreated(expense, events.SourceUser)
		if err := s.publisher.PublishExpenseCreated(context.Background(), msg); err != nil {
			logger.Get().Warnw("failed to publish expense event", "expense_id", expense.ID, "error", err)
		}
	}
	return expense, nil
}

func validateRecurrence(isRecurring bool, recurringType *models.RecurringType) error {
	if recurringType != nil && *recurringType != "" && !recurringType.Known() {
		return apperrors.ErrInvalidRecurringType
	}
	if isRecurring && (recurringType == nil || *recurringType == "") {
		return apperrors.ErrMissingRecurringType
	}
	return nil
}

// validateCategories checks that the category belongs to the user and that the
// optional subcategory is one of its children.
func (s *expenseService) validateCategories(userID, categoryID string, subcategoryID *string) error {
	if categoryID == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "category_id is required")
	}
	var category models.Category
	if err := s.db.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCategoryNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if subcategoryID == nil || *subcategoryID == "" {
		return nil
	}
	var sub models.Category
	if err := s.db.Where("id = ? AND user_id = ?", *subcategoryID, userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidSubcategory
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if sub.ParentID == nil || *sub.ParentID != categoryID {
		return apperrors.ErrInvalidSubcategory
	}
	return nil
}

// GetUserExpenses retrieves a paginated, filtered list of the user's expenses.
func (s *expenseService) GetUserExpenses(userID string, page pagination.PageRequest, filter ExpenseFilter) (*pagination.PageResponse[models.Expense], error) {
	base := applyExpenseFilters(s.db.Model(&models.Expense{}).Where("user_id = ?", userID), filter)
	return s.list(base, page)
}

// GetUserTemplates lists the user's recurring templates.
func (s *expenseService) GetUserTemplates(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Expense], error) {
	base := s.db.Model(&models.Expense{}).Where("user_id = ? AND is_recurring = ?", userID, true)
	return s.list(base, page)
}

func (s *expenseService) list(base *gorm.DB, page pagination.PageRequest) (*pagination.PageResponse[models.Expense], error) {
	page.Defaults()

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var expenses []models.Expense
	if err := base.Order(page.OrderClause(expenseSortColumns, "date")).
		Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&expenses).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(expenses, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyExpenseFilters(q *gorm.DB, f ExpenseFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", *f.ToDate)
	}
	if f.CategoryID != nil {
		q = q.Where("(category_id = ? OR subcategory_id = ?)", *f.CategoryID, *f.CategoryID)
	}
	if f.PaymentMode != nil {
		q = q.Where("payment_mode = ?", *f.PaymentMode)
	}
	if f.IsRecurring != nil {
		q = q.Where("is_recurring = ?", *f.IsRecurring)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	return q
}

// GetExpenseByID retrieves an expense by ID for a specific user
func (s *expenseService) GetExpenseByID(userID, expenseID string) (*models.Expense, error) {
	var expense models.Expense
	if err := s.db.Preload("Category").Preload("Subcategory").
		Where("id = ? AND user_id = ?", expenseID, userID).
		First(&expense).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrExpenseNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &expense, nil
}

// UpdateExpense applies the non-nil fields of in.
func (s *expenseService) UpdateExpense(userID, expenseID string, in ExpenseUpdate) (*models.Expense, error) {
	expense, err := s.GetExpenseByID(userID, expenseID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Amount != nil {
		if *in.Amount <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
		}
		updates["amount"] = *in.Amount
	}
	if in.PaymentMode != nil {
		if !in.PaymentMode.Known() {
			return nil, apperrors.ErrInvalidPaymentMode
		}
		updates["payment_mode"] = *in.PaymentMode
	}
	if in.Date != nil {
		updates["date"] = *in.Date
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
	}

	categoryID := expense.CategoryID
	subcategoryID := expense.SubcategoryID
	if in.CategoryID != nil {
		categoryID = *in.CategoryID
		updates["category_id"] = categoryID
		if in.SubcategoryID == nil {
			// A new category invalidates the old subcategory.
			subcategoryID = nil
			updates["subcategory_id"] = nil
		}
	}
	if in.SubcategoryID != nil {
		subcategoryID = emptyToNil(in.SubcategoryID)
		updates["subcategory_id"] = subcategoryID
	}
	if in.CategoryID != nil || in.SubcategoryID != nil {
		if err := s.validateCategories(userID, categoryID, subcategoryID); err != nil {
			return nil, err
		}
	}

	isRecurring := expense.IsRecurring
	recurringType := expense.RecurringType
	if in.IsRecurring != nil {
		isRecurring = *in.IsRecurring
		updates["is_recurring"] = isRecurring
	}
	if in.RecurringType != nil {
		recurringType = in.RecurringType
		updates["recurring_type"] = *in.RecurringType
	}
	if err := validateRecurrence(isRecurring, recurringType); err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if err := s.db.Model(expense).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		s.afterWrite(userID)
	}

	return s.GetExpenseByID(userID, expenseID)
}

// DeleteExpense soft-deletes an expense or template.
func (s *expenseService) DeleteExpense(userID, expenseID string) error {
	expense, err := s.GetExpenseByID(userID, expenseID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(expense).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.afterWrite(userID)
	return nil
}

func (s *expenseService) afterWrite(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
