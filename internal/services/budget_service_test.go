package services

import (
	"testing"
	"time"

	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
	"pocketledger/internal/testutil"
)

func TestCreateBudget(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		budget, err := svc.CreateBudget(user.ID, cat.ID, "Groceries", 50000, models.BudgetPeriodMonthly, time.Now(), nil)
		testutil.AssertNoError(t, err)

		if budget.ID == "" {
			t.Fatal("expected budget ID to be set")
		}
		if budget.Amount != 50000 || budget.Period != models.BudgetPeriodMonthly || !budget.IsActive {
			t.Errorf("unexpected budget: %+v", budget)
		}
	})

	t.Run("end_before_start", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		end := time.Now().AddDate(0, -1, 0)
		_, err := svc.CreateBudget(user.ID, cat.ID, "Bad", 100, models.BudgetPeriodMonthly, time.Now(), &end)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("wrong_user_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

		_, err := svc.CreateBudget(user.ID, cat.ID, "Nope", 100, models.BudgetPeriodMonthly, time.Now(), nil)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestGetUserBudgets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewBudgetService(db)
	user := testutil.CreateTestUser(t, db)
	cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	testutil.CreateTestBudget(t, db, user.ID, cat.ID)
	yearly, err := svc.CreateBudget(user.ID, cat.ID, "Yearly", 120000, models.BudgetPeriodYearly, time.Now(), nil)
	testutil.AssertNoError(t, err)
	inactive := false
	_, err = svc.UpdateBudget(user.ID, yearly.ID, "", nil, nil, nil, &inactive)
	testutil.AssertNoError(t, err)

	all, err := svc.GetUserBudgets(user.ID, pagination.PageRequest{}, BudgetFilter{})
	testutil.AssertNoError(t, err)
	if all.TotalItems != 2 {
		t.Errorf("expected 2 budgets, got %d", all.TotalItems)
	}

	active := true
	onlyActive, err := svc.GetUserBudgets(user.ID, pagination.PageRequest{}, BudgetFilter{IsActive: &active})
	testutil.AssertNoError(t, err)
	if onlyActive.TotalItems != 1 {
		t.Errorf("expected 1 active budget, got %d", onlyActive.TotalItems)
	}

	period := models.BudgetPeriodYearly
	byPeriod, err := svc.GetUserBudgets(user.ID, pagination.PageRequest{}, BudgetFilter{Period: &period})
	testutil.AssertNoError(t, err)
	if byPeriod.TotalItems != 1 || byPeriod.Data[0].Category == nil {
		t.Errorf("expected 1 yearly budget with its category, got %+v", byPeriod.Data)
	}

	other := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestBudget(t, db, user.ID, other.ID)
	byCategory, err := svc.GetUserBudgets(user.ID, pagination.PageRequest{}, BudgetFilter{CategoryID: &other.ID})
	testutil.AssertNoError(t, err)
	if byCategory.TotalItems != 1 || byCategory.Data[0].CategoryID != other.ID {
		t.Errorf("expected only the budget of the other category, got %+v", byCategory.Data)
	}
}

func TestUpdateAndDeleteBudget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewBudgetService(db)
	user := testutil.CreateTestUser(t, db)
	cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	budget := testutil.CreateTestBudget(t, db, user.ID, cat.ID)

	amount := int64(25000)
	updated, err := svc.UpdateBudget(user.ID, budget.ID, "Food", &amount, nil, nil, nil)
	testutil.AssertNoError(t, err)
	if updated.Name != "Food" || updated.Amount != 25000 {
		t.Errorf("unexpected budget: %+v", updated)
	}

	zero := int64(0)
	_, err = svc.UpdateBudget(user.ID, budget.ID, "", &zero, nil, nil, nil)
	testutil.AssertAppError(t, err, "INVALID_INPUT")

	_, err = svc.UpdateBudget(user.ID, missingID, "x", nil, nil, nil, nil)
	testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")

	testutil.AssertNoError(t, svc.DeleteBudget(user.ID, budget.ID))
	_, err = svc.GetBudgetByID(user.ID, budget.ID)
	testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
}

func TestGetBudgetProgress(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("counts_category_and_subcategory_in_period", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := &budgetService{db: db, now: func() time.Time { return now }}
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		sub := testutil.CreateTestSubcategory(t, db, cat)
		other := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, user.ID, cat.ID)

		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 3000, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
		withSub := testutil.CreateTestExpense(t, db, user.ID, cat.ID, 1000, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
		db.Model(withSub).Update("subcategory_id", sub.ID)
		// Outside the period, another category, and a template: all ignored.
		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 9999, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC))
		testutil.CreateTestExpense(t, db, user.ID, other.ID, 9999, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
		testutil.CreateTestTemplate(t, db, user.ID, cat.ID, models.RecurringMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

		progress, err := svc.GetBudgetProgress(user.ID, budget.ID, time.Time{})
		testutil.AssertNoError(t, err)
		if progress.Spent != 4000 {
			t.Errorf("expected spent 4000, got %d", progress.Spent)
		}
		if progress.Remaining != 6000 {
			t.Errorf("expected remaining 6000, got %d", progress.Remaining)
		}
		if progress.Percentage != 40 {
			t.Errorf("expected 40%%, got %f", progress.Percentage)
		}
		if !progress.PeriodStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected period start %v", progress.PeriodStart)
		}
	})

	t.Run("over_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := &budgetService{db: db, now: func() time.Time { return now }}
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, user.ID, cat.ID)
		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 15000, now)

		progress, err := svc.GetBudgetProgress(user.ID, budget.ID, time.Time{})
		testutil.AssertNoError(t, err)
		if progress.Remaining != -5000 || progress.Percentage != 150 {
			t.Errorf("unexpected progress: %+v", progress)
		}
	})

	t.Run("as_of_previous_period", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := &budgetService{db: db, now: func() time.Time { return now }}
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, user.ID, cat.ID)
		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 2500, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))
		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 7000, now)

		progress, err := svc.GetBudgetProgress(user.ID, budget.ID, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
		testutil.AssertNoError(t, err)
		if progress.Spent != 2500 {
			t.Errorf("expected February spending only, got %d", progress.Spent)
		}
		if !progress.PeriodEnd.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected period end %v", progress.PeriodEnd)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		_, err := NewBudgetService(db).GetBudgetProgress(user.ID, missingID, time.Time{})
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})
}

func TestBudgetPeriodWindow(t *testing.T) {
	now := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	start, end := budgetPeriodWindow(models.BudgetPeriodMonthly, now)
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected monthly window %v - %v", start, end)
	}
	start, end = budgetPeriodWindow(models.BudgetPeriodYearly, now)
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected yearly window %v - %v", start, end)
	}
}
