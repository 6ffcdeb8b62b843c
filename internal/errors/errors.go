// Package errors provides the application error type used by services and handlers.
// Services return *AppError values so handlers can render a consistent JSON body
// without leaking internal error text, except where Details is set on purpose.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		Details:    sentinel.Details,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithDetails wraps internal and exposes details to the client.
func WithDetails(sentinel *AppError, details string, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    details,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// Storage wraps a persistence failure so its message reaches the caller.
func Storage(err error) *AppError {
	return WithDetails(ErrStorage, err.Error(), err)
}

// Authentication & authorization errors.
var (
	ErrUnauthorized        = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials  = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrInvalidRefreshToken = &AppError{Code: "INVALID_REFRESH_TOKEN", Message: "Invalid or expired refresh token", StatusCode: http.StatusUnauthorized}
	ErrForbidden           = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked       = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
	ErrRateLimited         = &AppError{Code: "RATE_LIMITED", Message: "Too many requests", StatusCode: http.StatusTooManyRequests}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
	ErrStorage        = &AppError{Code: "STORAGE_ERROR", Message: "Storage operation failed", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Category errors.
var (
	ErrCategoryNotFound    = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
	ErrCategoryInUse       = &AppError{Code: "CATEGORY_IN_USE", Message: "Category is used by existing expenses or budgets", StatusCode: http.StatusConflict}
	ErrCategoryHasChildren = &AppError{Code: "CATEGORY_HAS_CHILDREN", Message: "Category has subcategories", StatusCode: http.StatusConflict}
	ErrSelfParentCategory  = &AppError{Code: "SELF_PARENT_CATEGORY", Message: "A category cannot be its own parent", StatusCode: http.StatusBadRequest}
	ErrNestedSubcategory   = &AppError{Code: "NESTED_SUBCATEGORY", Message: "Subcategories cannot have subcategories", StatusCode: http.StatusBadRequest}
	ErrInvalidSubcategory  = &AppError{Code: "INVALID_SUBCATEGORY", Message: "Subcategory does not belong to the selected category", StatusCode: http.StatusBadRequest}
)

// Expense errors.
var (
	ErrExpenseNotFound       = &AppError{Code: "EXPENSE_NOT_FOUND", Message: "Expense not found", StatusCode: http.StatusNotFound}
	ErrMissingRecurringType  = &AppError{Code: "MISSING_RECURRING_TYPE", Message: "recurring_type is required for recurring expenses", StatusCode: http.StatusBadRequest}
	ErrInvalidRecurringType  = &AppError{Code: "INVALID_RECURRING_TYPE", Message: "Unsupported recurring type", StatusCode: http.StatusBadRequest}
	ErrInvalidPaymentMode    = &AppError{Code: "INVALID_PAYMENT_MODE", Message: "Unsupported payment mode", StatusCode: http.StatusBadRequest}
	ErrRecurringPartialWrite = &AppError{Code: "RECURRING_PARTIAL_FAILURE", Message: "Some recurring expenses could not be created", StatusCode: http.StatusInternalServerError}
)

// Budget errors.
var (
	ErrBudgetNotFound = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
)
