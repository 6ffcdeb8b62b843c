package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/services"
)

// AnalyticsHandler serves spending aggregates.
type AnalyticsHandler struct {
	analyticsService services.AnalyticsServicer
	now              func() time.Time
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsService services.AnalyticsServicer) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService, now: time.Now}
}

// GetSummary handles the spending summary for a date range
// @Summary     Spending summary
// @Description Total, count and average of concrete expenses in a range, broken down by category and payment mode. Defaults to the current month.
// @Tags        analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       from_date query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string false "End date, inclusive (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} services.SpendingSummary "Spending summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /analytics/summary [get]
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	now := h.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := now

	if v := c.Query("from_date"); v != "" {
		from, err = parseFlexibleTime(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
	}
	if v := c.Query("to_date"); v != "" {
		to, err = parseFlexibleTime(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
		// A plain date covers the whole day.
		if len(v) == len(time.DateOnly) {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}

	summary, err := h.analyticsService.GetSummary(userID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// GetTrend handles monthly spending totals
// @Summary     Monthly trend
// @Description Totals of the last N calendar months including the current one, oldest first
// @Tags        analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       months query int false "Number of months (default 6, max 24)"
// @Success     200 {array}  services.MonthlyTotal "Monthly totals"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /analytics/trend [get]
func (h *AnalyticsHandler) GetTrend(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	months := 0
	if v := c.Query("months"); v != "" {
		months, err = strconv.Atoi(v)
		if err != nil || months < 1 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "months must be a positive integer"))
			return
		}
	}

	trend, err := h.analyticsService.GetMonthlyTrend(userID, months, h.now())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"months": trend})
}
