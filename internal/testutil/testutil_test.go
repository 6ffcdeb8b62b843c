package testutil_test

import (
	"testing"
	"time"

	"pocketledger/internal/errors"
	"pocketledger/internal/models"
	"pocketledger/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	var count int64
	for _, table := range []string{"users", "categories", "expenses", "budgets", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDB_Isolated(t *testing.T) {
	db1 := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db1)
	db2 := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db2)

	testutil.CreateTestUser(t, db1)

	var count int64
	db2.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Errorf("expected an empty second database, found %d users", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}

	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	sub := testutil.CreateTestSubcategory(t, db, category)
	if sub.ParentID == nil || *sub.ParentID != category.ID {
		t.Errorf("expected subcategory of %s", category.ID)
	}

	expense := testutil.CreateTestExpense(t, db, user.ID, category.ID, 1000, time.Now())
	if expense.Amount != 1000 || expense.IsRecurring {
		t.Errorf("unexpected expense: %+v", expense)
	}

	created := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	tpl := testutil.CreateTestTemplate(t, db, user.ID, category.ID, models.RecurringMonthly, created)
	var stored models.Expense
	if err := db.First(&stored, "id = ?", tpl.ID).Error; err != nil {
		t.Fatalf("failed to reload template: %v", err)
	}
	if !stored.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, stored.CreatedAt)
	}

	budget := testutil.CreateTestBudget(t, db, user.ID, category.ID)
	if budget.Amount != 10000 {
		t.Errorf("expected budget amount 10000, got %d", budget.Amount)
	}
}

func TestAssertAppError(t *testing.T) {
	testutil.AssertAppError(t, errors.ErrNotFound, "NOT_FOUND")
	testutil.AssertNoError(t, nil)
}
