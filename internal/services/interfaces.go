package services

import (
	"context"
	"time"

	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
	"pocketledger/internal/recurring"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID, name string, categoryType models.CategoryType, description, icon, color string, parentID *string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetUserCategoriesByType(userID string, categoryType models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID, name, description, icon, color string, parentID *string) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// ExpenseInput holds the fields of a new expense or template.
type ExpenseInput struct {
	CategoryID    string
	SubcategoryID *string
	Title         string
	Amount        int64
	PaymentMode   models.PaymentMode
	Date          time.Time
	Notes         string
	IsRecurring   bool
	RecurringType *models.RecurringType
}

// ExpenseUpdate holds optional changes to an expense; nil fields are left unchanged.
type ExpenseUpdate struct {
	CategoryID    *string
	SubcategoryID *string
	Title         *string
	Amount        *int64
	PaymentMode   *models.PaymentMode
	Date          *time.Time
	Notes         *string
	IsRecurring   *bool
	RecurringType *models.RecurringType
}

// ExpenseFilter holds optional filter parameters for listing expenses.
type ExpenseFilter struct {
	FromDate    *time.Time
	ToDate      *time.Time
	CategoryID  *string
	PaymentMode *models.PaymentMode
	IsRecurring *bool
	MinAmount   *int64
	MaxAmount   *int64
	Search      string
}

// ExpenseServicer defines the contract for expense and template management.
type ExpenseServicer interface {
	CreateExpense(userID string, in ExpenseInput) (*models.Expense, error)
	GetUserExpenses(userID string, page pagination.PageRequest, filter ExpenseFilter) (*pagination.PageResponse[models.Expense], error)
	GetUserTemplates(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Expense], error)
	GetExpenseByID(userID, expenseID string) (*models.Expense, error)
	UpdateExpense(userID, expenseID string, in ExpenseUpdate) (*models.Expense, error)
	DeleteExpense(userID, expenseID string) error
}

// BudgetProgress contains spending vs budget data for a budget's current period.
type BudgetProgress struct {
	BudgetID    string    `json:"budget_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Budgeted    int64     `json:"budgeted"`
	Spent       int64     `json:"spent"`
	Remaining   int64     `json:"remaining"`
	Percentage  float64   `json:"percentage"`
}

// BudgetFilter narrows a budget listing. Nil fields are ignored.
type BudgetFilter struct {
	IsActive   *bool
	Period     *models.BudgetPeriod
	CategoryID *string
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	CreateBudget(userID, categoryID, name string, amount int64, period models.BudgetPeriod, startDate time.Time, endDate *time.Time) (*models.Budget, error)
	GetUserBudgets(userID string, page pagination.PageRequest, filter BudgetFilter) (*pagination.PageResponse[models.Budget], error)
	GetBudgetByID(userID, budgetID string) (*models.Budget, error)
	UpdateBudget(userID, budgetID, name string, amount *int64, period *models.BudgetPeriod, endDate *time.Time, isActive *bool) (*models.Budget, error)
	DeleteBudget(userID, budgetID string) error
	// GetBudgetProgress reports spending for the period containing asOf (now when zero).
	GetBudgetProgress(userID, budgetID string, asOf time.Time) (*BudgetProgress, error)
}

// CategoryTotal is the spending of one category within a summary range.
type CategoryTotal struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Total        int64  `json:"total"`
	Count        int64  `json:"count"`
}

// PaymentModeTotal is the spending of one payment mode within a summary range.
type PaymentModeTotal struct {
	PaymentMode models.PaymentMode `json:"payment_mode"`
	Total       int64              `json:"total"`
	Count       int64              `json:"count"`
}

// SpendingSummary aggregates a user's expenses between two dates.
type SpendingSummary struct {
	FromDate      time.Time          `json:"from_date"`
	ToDate        time.Time          `json:"to_date"`
	TotalSpent    int64              `json:"total_spent"`
	ExpenseCount  int64              `json:"expense_count"`
	Average       int64              `json:"average"`
	ByCategory    []CategoryTotal    `json:"by_category"`
	ByPaymentMode []PaymentModeTotal `json:"by_payment_mode"`
}

// MonthlyTotal is the spending of one calendar month.
type MonthlyTotal struct {
	Month string `json:"month"`
	Total int64  `json:"total"`
	Count int64  `json:"count"`
}

// AnalyticsServicer computes spending aggregates.
type AnalyticsServicer interface {
	GetSummary(userID string, from, to time.Time) (*SpendingSummary, error)
	GetMonthlyTrend(userID string, months int, now time.Time) ([]MonthlyTotal, error)
	CacheInvalidator
}

// CacheInvalidator drops cached aggregates of a user after their expenses change.
type CacheInvalidator interface {
	Invalidate(userID string)
}

// RecurringServicer materializes recurring templates into expense instances.
type RecurringServicer interface {
	ProcessRecurring(ctx context.Context, userID string, referenceDate time.Time) (*recurring.Result, error)
	ListUsersWithTemplates(ctx context.Context) ([]string, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
