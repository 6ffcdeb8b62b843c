package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
	"pocketledger/internal/services"
	"pocketledger/internal/uuid"
)

// ExpenseHandler handles expense and recurring template requests.
type ExpenseHandler struct {
	expenseService services.ExpenseServicer
	auditService   services.AuditServicer
}

// NewExpenseHandler creates a new ExpenseHandler.
func NewExpenseHandler(expenseService services.ExpenseServicer, auditService services.AuditServicer) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService, auditService: auditService}
}

// CreateExpenseRequest represents the request payload for creating an expense.
// With is_recurring set the expense is stored as a template and recurring_type is required.
type CreateExpenseRequest struct {
	CategoryID    string                `json:"category_id" binding:"required,uuid"`
	SubcategoryID *string               `json:"subcategory_id" binding:"omitempty,uuid"`
	Title         string                `json:"title" binding:"required,min=1,max=200"`
	Amount        int64                 `json:"amount" binding:"required,gt=0"`
	PaymentMode   models.PaymentMode    `json:"payment_mode" binding:"omitempty,payment_mode"`
	Date          *string               `json:"date"`
	Notes         string                `json:"notes" binding:"max=1000"`
	IsRecurring   bool                  `json:"is_recurring"`
	RecurringType *models.RecurringType `json:"recurring_type" binding:"omitempty,recurring_type"`
}

// UpdateExpenseRequest represents the request payload for updating an expense.
// Omitted fields are left unchanged; an empty subcategory_id clears it.
type UpdateExpenseRequest struct {
	CategoryID    *string               `json:"category_id" binding:"omitempty,uuid"`
	SubcategoryID *string               `json:"subcategory_id" binding:"omitempty,len=0|uuid"`
	Title         *string               `json:"title" binding:"omitempty,min=1,max=200"`
	Amount        *int64                `json:"amount" binding:"omitempty,gt=0"`
	PaymentMode   *models.PaymentMode   `json:"payment_mode" binding:"omitempty,payment_mode"`
	Date          *string               `json:"date"`
	Notes         *string               `json:"notes" binding:"omitempty,max=1000"`
	IsRecurring   *bool                 `json:"is_recurring"`
	RecurringType *models.RecurringType `json:"recurring_type" binding:"omitempty,recurring_type"`
}

// CreateExpense handles the creation of an expense or recurring template
// @Summary     Create an expense
// @Description Record a one-off expense, or a recurring template when is_recurring is true
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateExpenseRequest true "Expense details"
// @Success     201 {object} models.Expense "Expense created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses [post]
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	expenseDate := time.Now()
	if req.Date != nil && *req.Date != "" {
		parsed, parseErr := parseFlexibleTime(*req.Date)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
		expenseDate = parsed
	}

	expense, err := h.expenseService.CreateExpense(userID, services.ExpenseInput{
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Title:         req.Title,
		Amount:        req.Amount,
		PaymentMode:   req.PaymentMode,
		Date:          expenseDate,
		Notes:         req.Notes,
		IsRecurring:   req.IsRecurring,
		RecurringType: req.RecurringType,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, "expense", expense.ID, c.ClientIP(),
		map[string]interface{}{"title": expense.Title, "amount": expense.Amount, "is_recurring": expense.IsRecurring})

	c.JSON(http.StatusCreated, gin.H{"expense": expense})
}

// GetExpenses handles listing the user's expenses
// @Summary     Get expenses
// @Description Get a paginated, filtered list of expenses and templates
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       from_date    query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date      query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Param       category_id  query string false "Category or subcategory ID"
// @Param       payment_mode query string false "Payment mode"
// @Param       is_recurring query bool   false "Only templates (true) or only instances (false)"
// @Param       min_amount   query int    false "Minimum amount"
// @Param       max_amount   query int    false "Maximum amount"
// @Param       search       query string false "Search in title"
// @Param       sort_by      query string false "date, amount, title or created_at"
// @Param       order        query string false "asc or desc"
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Expense] "Paginated expenses"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses [get]
func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := parseExpenseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.expenseService.GetUserExpenses(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTemplates handles listing the user's recurring templates
// @Summary     Get recurring templates
// @Description Get a paginated list of the recurring expense templates
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Expense] "Paginated templates"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/templates [get]
func (h *ExpenseHandler) GetTemplates(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.expenseService.GetUserTemplates(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseExpenseFilter(c *gin.Context) (services.ExpenseFilter, error) {
	var filter services.ExpenseFilter

	if v := c.Query("from_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &t
	}

	if v := c.Query("to_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.ToDate = &t
	}

	if v := c.Query("category_id"); v != "" {
		if !uuid.IsValid(v) {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id")
		}
		filter.CategoryID = &v
	}

	if v := c.Query("payment_mode"); v != "" {
		mode := models.PaymentMode(v)
		if !mode.Known() {
			return filter, apperrors.ErrInvalidPaymentMode
		}
		filter.PaymentMode = &mode
	}

	if v := c.Query("is_recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "is_recurring must be 'true' or 'false'")
		}
		filter.IsRecurring = &b
	}

	if v := c.Query("min_amount"); v != "" {
		amt, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid min_amount")
		}
		filter.MinAmount = &amt
	}

	if v := c.Query("max_amount"); v != "" {
		amt, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid max_amount")
		}
		filter.MaxAmount = &amt
	}

	filter.Search = c.Query("search")
	return filter, nil
}

// GetExpenseByID handles retrieving a specific expense
// @Summary     Get expense by ID
// @Description Get an expense or template with its category and subcategory
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Expense ID"
// @Success     200 {object} models.Expense "Expense details"
// @Failure     400 {object} ErrorResponse "Invalid expense ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [get]
func (h *ExpenseHandler) GetExpenseByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	expense, err := h.expenseService.GetExpenseByID(userID, expenseID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expense": expense})
}

// UpdateExpense handles updating an expense or template
// @Summary     Update expense
// @Description Update fields of an expense or template
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string               true "Expense ID"
// @Param       request body UpdateExpenseRequest true "Fields to update"
// @Success     200 {object} models.Expense "Updated expense"
// @Failure     400 {object} ErrorResponse "Invalid input or expense ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [put]
func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	update := services.ExpenseUpdate{
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Title:         req.Title,
		Amount:        req.Amount,
		PaymentMode:   req.PaymentMode,
		Notes:         req.Notes,
		IsRecurring:   req.IsRecurring,
		RecurringType: req.RecurringType,
	}
	if req.Date != nil && *req.Date != "" {
		parsed, parseErr := parseFlexibleTime(*req.Date)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
		update.Date = &parsed
	}

	expense, err := h.expenseService.UpdateExpense(userID, expenseID, update)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUpdate, "expense", expenseID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"expense": expense})
}

// DeleteExpense handles deleting an expense or template
// @Summary     Delete expense
// @Description Soft delete an expense or template. Instances already generated from a template are kept.
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Expense ID"
// @Success     200 {object} MessageResponse "Expense deleted"
// @Failure     400 {object} ErrorResponse "Invalid expense ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [delete]
func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.expenseService.DeleteExpense(userID, expenseID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDelete, "expense", expenseID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted successfully"})
}
