package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/middleware"
	"pocketledger/internal/models"
	"pocketledger/internal/recurring"
	"pocketledger/internal/services"
)

// RecurringHandler triggers materialization of recurring templates, either for
// the signed-in user or, through the pipeline routes, for any user.
type RecurringHandler struct {
	recurringService services.RecurringServicer
	auditService     services.AuditServicer
}

// NewRecurringHandler creates a new RecurringHandler.
func NewRecurringHandler(recurringService services.RecurringServicer, auditService services.AuditServicer) *RecurringHandler {
	return &RecurringHandler{recurringService: recurringService, auditService: auditService}
}

// ProcessRecurringRequest is the optional body of the user trigger.
type ProcessRecurringRequest struct {
	ReferenceDate *string `json:"reference_date"`
}

// PipelineProcessRequest is the body of the pipeline trigger.
type PipelineProcessRequest struct {
	UserID        string  `json:"user_id" binding:"required,uuid"`
	ReferenceDate *string `json:"reference_date"`
}

// ProcessRecurringResponse lists the instances created by one run.
type ProcessRecurringResponse struct {
	CreatedCount int              `json:"created_count"`
	Created      []models.Expense `json:"created"`
}

// PipelineUsersResponse lists users owning at least one template.
type PipelineUsersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// bindOptionalJSON binds the body into obj, treating an empty body as no input.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	return nil
}

func parseReferenceDate(value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return time.Time{}, nil
	}
	t, err := parseFlexibleTime(*value)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid reference_date format, use RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

// ProcessRecurring materializes the signed-in user's due templates
// @Summary     Process recurring expenses
// @Description Create one instance for every template that is due at the reference date (default now). Missed periods are not back-filled.
// @Tags        recurring
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body     ProcessRecurringRequest  false "Reference date"
// @Success     200     {object} ProcessRecurringResponse "Created instances"
// @Failure     400     {object} ErrorResponse            "Invalid input"
// @Failure     401     {object} ErrorResponse            "Unauthorized"
// @Failure     500     {object} ErrorResponse            "Storage error or partial failure"
// @Router      /recurring/process [post]
func (h *RecurringHandler) ProcessRecurring(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ProcessRecurringRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondWithError(c, err)
		return
	}
	ref, err := parseReferenceDate(req.ReferenceDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.process(c, userID, ref)
}

// PipelineProcessRecurring materializes the due templates of one user
// @Summary     Process recurring expenses for a user (pipeline)
// @Description Same as /recurring/process for the given user_id (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body     PipelineProcessRequest   true "User and reference date"
// @Success     200     {object} ProcessRecurringResponse "Created instances"
// @Failure     400     {object} ErrorResponse            "Invalid input"
// @Failure     401     {object} ErrorResponse            "Invalid API key"
// @Failure     500     {object} ErrorResponse            "Storage error or partial failure"
// @Failure     503     {object} ErrorResponse            "Pipeline not configured"
// @Router      /pipeline/recurring/process [post]
func (h *RecurringHandler) PipelineProcessRecurring(c *gin.Context) {
	var req PipelineProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	ref, err := parseReferenceDate(req.ReferenceDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.process(c, req.UserID, ref)
}

// PipelineListUsers lists the users the scheduler should process
// @Summary     List users with templates (pipeline)
// @Description Ids of users owning at least one recurring template (pipeline endpoint)
// @Tags        pipeline
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} PipelineUsersResponse "User ids"
// @Failure     401 {object} ErrorResponse         "Invalid API key"
// @Failure     500 {object} ErrorResponse         "Server error"
// @Failure     503 {object} ErrorResponse         "Pipeline not configured"
// @Router      /pipeline/recurring/users [get]
func (h *RecurringHandler) PipelineListUsers(c *gin.Context) {
	ids, err := h.recurringService.ListUsersWithTemplates(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, PipelineUsersResponse{UserIDs: ids})
}

func (h *RecurringHandler) process(c *gin.Context, userID string, ref time.Time) {
	res, err := h.recurringService.ProcessRecurring(c.Request.Context(), userID, ref)

	if res != nil && res.Count > 0 {
		h.auditService.Log(userID, services.AuditActionMaterialize, "expense", "", c.ClientIP(),
			map[string]interface{}{
				"created_count":  res.Count,
				"checked":        res.Checked,
				"reference_date": ref,
				"expense_ids":    createdIDs(res),
			})
	}

	if err != nil {
		var appErr *apperrors.AppError
		// Instances written before a partial failure stay written; report them.
		if res != nil && errors.As(err, &appErr) && appErr.Code == apperrors.ErrRecurringPartialWrite.Code {
			body := middleware.ErrorBody(appErr)
			body["created_count"] = res.Count
			body["created"] = createdOrEmpty(res)
			c.JSON(appErr.StatusCode, body)
			return
		}
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProcessRecurringResponse{
		CreatedCount: res.Count,
		Created:      createdOrEmpty(res),
	})
}

func createdIDs(res *recurring.Result) []string {
	ids := make([]string, 0, len(res.Created))
	for i := range res.Created {
		ids = append(ids, res.Created[i].ID)
	}
	return ids
}

func createdOrEmpty(res *recurring.Result) []models.Expense {
	if res.Created == nil {
		return []models.Expense{}
	}
	return res.Created
}
