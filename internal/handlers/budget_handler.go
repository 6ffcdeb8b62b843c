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

// BudgetHandler serves spending caps per category and their progress.
type BudgetHandler struct {
	budgetService services.BudgetServicer
	auditService  services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer, auditService services.AuditServicer) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService, auditService: auditService}
}

// CreateBudgetRequest caps spending in a category. Dates accept RFC3339 or YYYY-MM-DD.
type CreateBudgetRequest struct {
	CategoryID string              `json:"category_id" binding:"required,uuid"`
	Name       string              `json:"name" binding:"required,min=1,max=100"`
	Amount     int64               `json:"amount" binding:"required,gt=0"`
	Period     models.BudgetPeriod `json:"period" binding:"required,budget_period"`
	StartDate  string              `json:"start_date" binding:"required"`
	EndDate    *string             `json:"end_date"`
}

// UpdateBudgetRequest changes a budget. Omitted fields are left untouched.
type UpdateBudgetRequest struct {
	Name    string               `json:"name" binding:"omitempty,min=1,max=100"`
	Amount  *int64               `json:"amount" binding:"omitempty,gt=0"`
	Period  *models.BudgetPeriod `json:"period" binding:"omitempty,budget_period"`
	EndDate *string              `json:"end_date"`
	// IsActive pauses or resumes a budget.
	IsActive *bool `json:"is_active"`
}

func parseBudgetDate(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := parseFlexibleTime(*value)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid "+field+" format, use RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

// CreateBudget creates a budget for one of the user's categories
// @Summary     Create a budget
// @Description Create a monthly or yearly budget for a category. Spending in its subcategories counts too.
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBudgetRequest true "Budget details"
// @Success     201 {object} models.Budget "Budget created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	start, err := parseBudgetDate("start_date", &req.StartDate)
	if err != nil {
		respondWithError(c, err)
		return
	}
	end, err := parseBudgetDate("end_date", req.EndDate)
	if err != nil {
		respondWithError(c, err)
		return
	}
	if end != nil && !end.After(*start) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "end_date must be after start_date"))
		return
	}

	budget, err := h.budgetService.CreateBudget(userID, req.CategoryID, req.Name, req.Amount, req.Period, *start, end)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionCreate, "budget", budget.ID, c.ClientIP(),
		map[string]interface{}{"category_id": req.CategoryID, "amount": req.Amount, "period": req.Period})

	c.JSON(http.StatusCreated, gin.H{"budget": budget})
}

// GetBudgets lists the user's budgets
// @Summary     Get budgets
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       is_active   query bool   false "Filter by active status"
// @Param       period      query string false "Filter by period (monthly/yearly)"
// @Param       category_id query string false "Filter by category"
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Budget] "Paginated budgets"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets [get]
func (h *BudgetHandler) GetBudgets(c *gin.Context) {
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

	filter, err := parseBudgetFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.budgetService.GetUserBudgets(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseBudgetFilter(c *gin.Context) (services.BudgetFilter, error) {
	var filter services.BudgetFilter

	if v := c.Query("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "is_active must be 'true' or 'false'")
		}
		filter.IsActive = &b
	}

	if v := c.Query("period"); v != "" {
		p := models.BudgetPeriod(v)
		if p != models.BudgetPeriodMonthly && p != models.BudgetPeriodYearly {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "period must be 'monthly' or 'yearly'")
		}
		filter.Period = &p
	}

	if v := c.Query("category_id"); v != "" {
		if !uuid.IsValid(v) {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id")
		}
		filter.CategoryID = &v
	}

	return filter, nil
}

// GetBudget returns one budget
// @Summary     Get budget by ID
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} models.Budget "Budget details"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetParams(c)
	if !ok {
		return
	}

	budget, err := h.budgetService.GetBudgetByID(userID, budgetID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// UpdateBudget changes a budget, including pausing it through is_active
// @Summary     Update budget
// @Tags        budgets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Budget ID"
// @Param       request body UpdateBudgetRequest true "Updated budget details"
// @Success     200 {object} models.Budget "Updated budget"
// @Failure     400 {object} ErrorResponse "Invalid input or budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetParams(c)
	if !ok {
		return
	}

	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	end, err := parseBudgetDate("end_date", req.EndDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.UpdateBudget(userID, budgetID, req.Name, req.Amount, req.Period, end, req.IsActive)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUpdate, "budget", budgetID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "amount": req.Amount, "is_active": req.IsActive})

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// DeleteBudget soft-deletes a budget
// @Summary     Delete budget
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Budget ID"
// @Success     200 {object} MessageResponse "Budget deleted"
// @Failure     400 {object} ErrorResponse "Invalid budget ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	userID, budgetID, ok := h.budgetParams(c)
	if !ok {
		return
	}

	if err := h.budgetService.DeleteBudget(userID, budgetID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDelete, "budget", budgetID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"message": "Budget deleted successfully"})
}

// GetBudgetProgress reports spending against a budget
// @Summary     Get budget progress
// @Description Spending of the monthly or yearly period containing as_of (default now), counting the budget category and its subcategories. Templates never count.
// @Tags        budgets
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string true  "Budget ID"
// @Param       as_of query string false "Reference date (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} services.BudgetProgress "Budget progress"
// @Failure     400 {object} ErrorResponse "Invalid budget ID or date"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budgets/{id}/progress [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, budgetID, ok := h.budgetParams(c)
	if !ok {
		return
	}

	var asOf time.Time
	if v := c.Query("as_of"); v != "" {
		parsed, err := parseBudgetDate("as_of", &v)
		if err != nil {
			respondWithError(c, err)
			return
		}
		asOf = *parsed
	}

	progress, err := h.budgetService.GetBudgetProgress(userID, budgetID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// budgetParams reads the caller and the :id path parameter, answering the
// request itself when either is missing or invalid.
func (h *BudgetHandler) budgetParams(c *gin.Context) (userID, budgetID string, ok bool) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	budgetID, err = parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return "", "", false
	}
	return userID, budgetID, true
}
