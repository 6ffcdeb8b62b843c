package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
	"pocketledger/internal/services"
)

// --- mock expense service ---

type mockExpenseService struct {
	createExpenseFn    func(userID string, in services.ExpenseInput) (*models.Expense, error)
	getUserExpensesFn  func(userID string, page pagination.PageRequest, filter services.ExpenseFilter) (*pagination.PageResponse[models.Expense], error)
	getUserTemplatesFn func(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Expense], error)
	getExpenseByIDFn   func(userID, expenseID string) (*models.Expense, error)
	updateExpenseFn    func(userID, expenseID string, in services.ExpenseUpdate) (*models.Expense, error)
	deleteExpenseFn    func(userID, expenseID string) error
}

func (m *mockExpenseService) CreateExpense(userID string, in services.ExpenseInput) (*models.Expense, error) {
	if m.createExpenseFn != nil {
		return m.createExpenseFn(userID, in)
	}
	return &models.Expense{Base: models.Base{ID: testObjectID}}, nil
}

func (m *mockExpenseService) GetUserExpenses(userID string, page pagination.PageRequest, filter services.ExpenseFilter) (*pagination.PageResponse[models.Expense], error) {
	if m.getUserExpensesFn != nil {
		return m.getUserExpensesFn(userID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Expense{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockExpenseService) GetUserTemplates(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Expense], error) {
	if m.getUserTemplatesFn != nil {
		return m.getUserTemplatesFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.Expense{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockExpenseService) GetExpenseByID(userID, expenseID string) (*models.Expense, error) {
	if m.getExpenseByIDFn != nil {
		return m.getExpenseByIDFn(userID, expenseID)
	}
	return &models.Expense{Base: models.Base{ID: expenseID}}, nil
}

func (m *mockExpenseService) UpdateExpense(userID, expenseID string, in services.ExpenseUpdate) (*models.Expense, error) {
	if m.updateExpenseFn != nil {
		return m.updateExpenseFn(userID, expenseID, in)
	}
	return &models.Expense{Base: models.Base{ID: expenseID}}, nil
}

func (m *mockExpenseService) DeleteExpense(userID, expenseID string) error {
	if m.deleteExpenseFn != nil {
		return m.deleteExpenseFn(userID, expenseID)
	}
	return nil
}

var _ services.ExpenseServicer = (*mockExpenseService)(nil)

func setupExpenseRouter(handler *ExpenseHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/expenses", handler.CreateExpense)
	auth.GET("/expenses", handler.GetExpenses)
	auth.GET("/expenses/templates", handler.GetTemplates)
	auth.GET("/expenses/:id", handler.GetExpenseByID)
	auth.PUT("/expenses/:id", handler.UpdateExpense)
	auth.DELETE("/expenses/:id", handler.DeleteExpense)
	return r
}

func TestExpenseHandler_CreateExpense(t *testing.T) {
	t.Run("creates a one-off expense", func(t *testing.T) {
		var got services.ExpenseInput
		svc := &mockExpenseService{
			createExpenseFn: func(userID string, in services.ExpenseInput) (*models.Expense, error) {
				got = in
				return &models.Expense{
					Base:        models.Base{ID: testObjectID},
					UserID:      userID,
					CategoryID:  in.CategoryID,
					Title:       in.Title,
					Amount:      in.Amount,
					PaymentMode: in.PaymentMode,
					Date:        in.Date,
				}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupExpenseRouter(NewExpenseHandler(svc, audit))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Lunch","amount":1250,"payment_mode":"upi","date":"2024-03-10"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !got.Date.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("expected date 2024-03-10, got %v", got.Date)
		}
		if got.PaymentMode != models.PaymentModeUPI {
			t.Errorf("expected upi, got %q", got.PaymentMode)
		}
		expense := parseJSON(t, rec)["expense"].(map[string]interface{})
		if expense["title"] != "Lunch" {
			t.Errorf("expected Lunch, got %v", expense["title"])
		}
		if len(audit.entries) != 1 || audit.entries[0].resourceType != "expense" {
			t.Errorf("expected an expense audit entry, got %+v", audit.entries)
		}
	})

	t.Run("creates a template", func(t *testing.T) {
		var got services.ExpenseInput
		svc := &mockExpenseService{
			createExpenseFn: func(_ string, in services.ExpenseInput) (*models.Expense, error) {
				got = in
				return &models.Expense{Base: models.Base{ID: testObjectID}, IsRecurring: true, RecurringType: in.RecurringType}, nil
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Netflix","amount":1500,"is_recurring":true,"recurring_type":"monthly"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !got.IsRecurring || got.RecurringType == nil || *got.RecurringType != models.RecurringMonthly {
			t.Errorf("expected a monthly template, got %+v", got)
		}
		if got.Date.IsZero() {
			t.Error("expected the date to default to now")
		}
	})

	t.Run("returns 400 when template has no recurring type", func(t *testing.T) {
		svc := &mockExpenseService{
			createExpenseFn: func(string, services.ExpenseInput) (*models.Expense, error) {
				return nil, apperrors.ErrMissingRecurringType
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Gym","amount":3000,"is_recurring":true}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "MISSING_RECURRING_TYPE")
	})

	t.Run("returns 400 on unknown recurring type", func(t *testing.T) {
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Gym","amount":3000,"is_recurring":true,"recurring_type":"biweekly"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on invalid payment mode", func(t *testing.T) {
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Lunch","amount":1250,"payment_mode":"cheque"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on bad date", func(t *testing.T) {
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Lunch","amount":1250,"date":"10/03/2024"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on zero amount", func(t *testing.T) {
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/expenses",
			`{"category_id":"`+testOtherID+`","title":"Lunch","amount":0}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		handler := NewExpenseHandler(&mockExpenseService{}, &mockAuditService{})
		r := gin.New()
		r.POST("/expenses", handler.CreateExpense)

		rec := doRequest(r, "POST", "/expenses", `{}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestExpenseHandler_GetExpenses(t *testing.T) {
	t.Run("passes filters to service", func(t *testing.T) {
		var got services.ExpenseFilter
		var gotPage pagination.PageRequest
		svc := &mockExpenseService{
			getUserExpensesFn: func(_ string, page pagination.PageRequest, filter services.ExpenseFilter) (*pagination.PageResponse[models.Expense], error) {
				got = filter
				gotPage = page
				resp := pagination.NewPageResponse([]models.Expense{{Title: "Lunch"}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/expenses?from_date=2024-01-01&to_date=2024-01-31&category_id="+testOtherID+
			"&payment_mode=card&is_recurring=false&min_amount=100&max_amount=5000&search=lun&sort_by=amount&order=asc", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.FromDate == nil || got.ToDate == nil {
			t.Fatal("expected date range to be passed")
		}
		if got.CategoryID == nil || *got.CategoryID != testOtherID {
			t.Errorf("expected category filter, got %v", got.CategoryID)
		}
		if got.PaymentMode == nil || *got.PaymentMode != models.PaymentModeCard {
			t.Errorf("expected card filter, got %v", got.PaymentMode)
		}
		if got.IsRecurring == nil || *got.IsRecurring {
			t.Errorf("expected is_recurring=false, got %v", got.IsRecurring)
		}
		if *got.MinAmount != 100 || *got.MaxAmount != 5000 {
			t.Errorf("unexpected amount range %d..%d", *got.MinAmount, *got.MaxAmount)
		}
		if got.Search != "lun" {
			t.Errorf("expected search lun, got %q", got.Search)
		}
		if gotPage.SortBy != "amount" || gotPage.Order != "asc" {
			t.Errorf("unexpected ordering %+v", gotPage)
		}
	})

	tests := []struct {
		name  string
		query string
	}{
		{"bad from_date", "from_date=yesterday"},
		{"bad category", "category_id=7"},
		{"bad payment mode", "payment_mode=barter"},
		{"bad is_recurring", "is_recurring=maybe"},
		{"bad min_amount", "min_amount=ten"},
		{"bad order", "order=sideways"},
	}
	for _, tt := range tests {
		t.Run("returns 400 on "+tt.name, func(t *testing.T) {
			r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

			rec := doRequest(r, "GET", "/expenses?"+tt.query, "")

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestExpenseHandler_GetTemplates(t *testing.T) {
	svc := &mockExpenseService{
		getUserTemplatesFn: func(userID string, _ pagination.PageRequest) (*pagination.PageResponse[models.Expense], error) {
			if userID != testUserID {
				t.Errorf("expected user %s, got %s", testUserID, userID)
			}
			resp := pagination.NewPageResponse([]models.Expense{{Title: "Netflix", IsRecurring: true}}, 1, 20, 1)
			return &resp, nil
		},
	}
	r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/expenses/templates", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := parseJSON(t, rec)["data"].([]interface{})
	if len(data) != 1 {
		t.Errorf("expected 1 template, got %d", len(data))
	}
}

func TestExpenseHandler_GetExpenseByID(t *testing.T) {
	t.Run("returns 404 when not found", func(t *testing.T) {
		svc := &mockExpenseService{
			getExpenseByIDFn: func(_, _ string) (*models.Expense, error) {
				return nil, apperrors.ErrExpenseNotFound
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/expenses/"+testObjectID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "EXPENSE_NOT_FOUND")
	})

	t.Run("returns 400 on malformed id", func(t *testing.T) {
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/expenses/abc", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestExpenseHandler_UpdateExpense(t *testing.T) {
	t.Run("passes only provided fields", func(t *testing.T) {
		var got services.ExpenseUpdate
		svc := &mockExpenseService{
			updateExpenseFn: func(_, id string, in services.ExpenseUpdate) (*models.Expense, error) {
				got = in
				return &models.Expense{Base: models.Base{ID: id}, Amount: *in.Amount}, nil
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/expenses/"+testObjectID, `{"amount":1999,"date":"2024-05-01T10:00:00Z","subcategory_id":""}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Amount == nil || *got.Amount != 1999 {
			t.Errorf("expected amount 1999, got %v", got.Amount)
		}
		if got.Date == nil || got.Date.Month() != time.May {
			t.Errorf("expected May date, got %v", got.Date)
		}
		if got.SubcategoryID == nil || *got.SubcategoryID != "" {
			t.Errorf("expected subcategory to be cleared, got %v", got.SubcategoryID)
		}
		if got.Title != nil || got.CategoryID != nil {
			t.Error("expected omitted fields to stay nil")
		}
	})

	t.Run("returns 400 on invalid subcategory", func(t *testing.T) {
		svc := &mockExpenseService{
			updateExpenseFn: func(_, _ string, _ services.ExpenseUpdate) (*models.Expense, error) {
				return nil, apperrors.ErrInvalidSubcategory
			},
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/expenses/"+testObjectID, `{"subcategory_id":"`+testOtherID+`"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_SUBCATEGORY")
	})
}

func TestExpenseHandler_DeleteExpense(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		audit := &mockAuditService{}
		r := setupExpenseRouter(NewExpenseHandler(&mockExpenseService{}, audit))

		rec := doRequest(r, "DELETE", "/expenses/"+testObjectID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if len(audit.entries) != 1 || audit.entries[0].action != services.AuditActionDelete {
			t.Errorf("expected a DELETE audit entry, got %+v", audit.entries)
		}
	})

	t.Run("returns 404 when not found", func(t *testing.T) {
		svc := &mockExpenseService{
			deleteExpenseFn: func(_, _ string) error { return apperrors.ErrExpenseNotFound },
		}
		r := setupExpenseRouter(NewExpenseHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "DELETE", "/expenses/"+testObjectID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
