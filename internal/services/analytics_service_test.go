package services

import (
	"testing"
	"time"

	"pocketledger/internal/models"
	"pocketledger/internal/testutil"
)

func TestGetSummary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewAnalyticsService(db, time.Minute)
	user := testutil.CreateTestUser(t, db)
	food := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	rent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	testutil.CreateTestExpense(t, db, user.ID, food.ID, 1000, day(1))
	testutil.CreateTestExpense(t, db, user.ID, food.ID, 2000, day(2))
	card := testutil.CreateTestExpense(t, db, user.ID, rent.ID, 60000, day(3))
	db.Model(card).Update("payment_mode", models.PaymentModeCard)
	testutil.CreateTestExpense(t, db, user.ID, food.ID, 5000, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	testutil.CreateTestTemplate(t, db, user.ID, food.ID, models.RecurringMonthly, day(1))

	summary, err := svc.GetSummary(user.ID, day(1), day(31))
	testutil.AssertNoError(t, err)

	if summary.TotalSpent != 63000 || summary.ExpenseCount != 3 || summary.Average != 21000 {
		t.Errorf("unexpected totals: %+v", summary)
	}
	if len(summary.ByCategory) != 2 || summary.ByCategory[0].CategoryID != rent.ID {
		t.Errorf("expected rent first, got %+v", summary.ByCategory)
	}
	if summary.ByCategory[0].CategoryName != rent.Name {
		t.Errorf("expected category name %q, got %q", rent.Name, summary.ByCategory[0].CategoryName)
	}
	if len(summary.ByPaymentMode) != 2 {
		t.Errorf("expected 2 payment modes, got %+v", summary.ByPaymentMode)
	}

	_, err = svc.GetSummary(user.ID, day(5), day(1))
	testutil.AssertAppError(t, err, "INVALID_INPUT")
}

func TestGetSummary_CacheAndInvalidate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewAnalyticsService(db, time.Minute)
	user := testutil.CreateTestUser(t, db)
	cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 1000, from)
	first, err := svc.GetSummary(user.ID, from, to)
	testutil.AssertNoError(t, err)

	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 1000, from)
	cached, err := svc.GetSummary(user.ID, from, to)
	testutil.AssertNoError(t, err)
	if cached.TotalSpent != first.TotalSpent {
		t.Errorf("expected cached total %d, got %d", first.TotalSpent, cached.TotalSpent)
	}

	svc.Invalidate(user.ID)
	fresh, err := svc.GetSummary(user.ID, from, to)
	testutil.AssertNoError(t, err)
	if fresh.TotalSpent != 2000 {
		t.Errorf("expected 2000 after invalidation, got %d", fresh.TotalSpent)
	}
}

func TestGetMonthlyTrend(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewAnalyticsService(db, time.Minute)
	user := testutil.CreateTestUser(t, db)
	cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 100, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 200, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 300, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))
	testutil.CreateTestExpense(t, db, user.ID, cat.ID, 999, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))

	trend, err := svc.GetMonthlyTrend(user.ID, 3, now)
	testutil.AssertNoError(t, err)

	want := []MonthlyTotal{
		{Month: "2024-01", Total: 100, Count: 1},
		{Month: "2024-02", Total: 0, Count: 0},
		{Month: "2024-03", Total: 500, Count: 2},
	}
	if len(trend) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(trend))
	}
	for i := range want {
		if trend[i] != want[i] {
			t.Errorf("month %d: expected %+v, got %+v", i, want[i], trend[i])
		}
	}

	defaults, err := svc.GetMonthlyTrend(user.ID, 0, now)
	testutil.AssertNoError(t, err)
	if len(defaults) != defaultTrendMonths {
		t.Errorf("expected %d months by default, got %d", defaultTrendMonths, len(defaults))
	}

	_, err = svc.GetMonthlyTrend(user.ID, 25, now)
	testutil.AssertAppError(t, err, "INVALID_INPUT")
}
