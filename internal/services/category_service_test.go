package services

import (
	"testing"
	"time"

	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
	"pocketledger/internal/testutil"
)

const missingID = "0191d7a0-0000-7000-8000-000000000000"

func strPtr(s string) *string { return &s }

func TestCreateCategory(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)

		cat, err := svc.CreateCategory(user.ID, "Groceries", models.CategoryTypeExpense, "Food", "cart", "#00ff00", nil)
		testutil.AssertNoError(t, err)
		if cat.ID == "" || cat.Name != "Groceries" || cat.ParentID != nil {
			t.Errorf("unexpected category: %+v", cat)
		}
	})

	t.Run("duplicate_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(user.ID, "Rent", models.CategoryTypeExpense, "", "", "", nil)
		testutil.AssertNoError(t, err)
		_, err = svc.CreateCategory(user.ID, "Rent", models.CategoryTypeExpense, "", "", "", nil)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("duplicate_name_different_users_allowed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		u1 := testutil.CreateTestUser(t, db)
		u2 := testutil.CreateTestUser(t, db)

		_, err := svc.CreateCategory(u1.ID, "Rent", models.CategoryTypeExpense, "", "", "", nil)
		testutil.AssertNoError(t, err)
		_, err = svc.CreateCategory(u2.ID, "Rent", models.CategoryTypeExpense, "", "", "", nil)
		testutil.AssertNoError(t, err)
	})

	t.Run("with_parent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		child, err := svc.CreateCategory(user.ID, "Streaming", models.CategoryTypeExpense, "", "", "", &parent.ID)
		testutil.AssertNoError(t, err)
		if child.ParentID == nil || *child.ParentID != parent.ID {
			t.Errorf("expected parent %s", parent.ID)
		}
	})

	t.Run("parent_type_mismatch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)

		_, err := svc.CreateCategory(user.ID, "Streaming", models.CategoryTypeExpense, "", "", "", &parent.ID)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("nested_subcategory_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		child := testutil.CreateTestSubcategory(t, db, parent)

		_, err := svc.CreateCategory(user.ID, "Grandchild", models.CategoryTypeExpense, "", "", "", &child.ID)
		testutil.AssertAppError(t, err, "NESTED_SUBCATEGORY")
	})

	t.Run("parent_of_other_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

		_, err := svc.CreateCategory(user.ID, "Mine", models.CategoryTypeExpense, "", "", "", &parent.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("empty_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		_, err := NewCategoryService(db).CreateCategory(user.ID, "", models.CategoryTypeExpense, "", "", "", nil)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetUserCategories(t *testing.T) {
	t.Run("returns_user_categories_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)
		testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

		result, err := svc.GetUserCategories(user.ID, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 2 {
			t.Errorf("expected 2 categories, got %d", result.TotalItems)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		for i := 0; i < 5; i++ {
			testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		}

		result, err := svc.GetUserCategories(user.ID, pagination.PageRequest{Page: 2, PageSize: 2})
		testutil.AssertNoError(t, err)
		if len(result.Data) != 2 || result.TotalPages != 3 {
			t.Errorf("expected 2 items of 3 pages, got %d items of %d pages", len(result.Data), result.TotalPages)
		}
	})

	t.Run("by_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)

		result, err := svc.GetUserCategoriesByType(user.ID, models.CategoryTypeIncome, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 || result.Data[0].Type != models.CategoryTypeIncome {
			t.Errorf("expected one income category, got %+v", result.Data)
		}
	})
}

func TestGetCategoryByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewCategoryService(db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	testutil.CreateTestSubcategory(t, db, parent)

	got, err := svc.GetCategoryByID(user.ID, parent.ID)
	testutil.AssertNoError(t, err)
	if len(got.Children) != 1 {
		t.Errorf("expected 1 child, got %d", len(got.Children))
	}

	_, err = svc.GetCategoryByID(other.ID, parent.ID)
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")

	_, err = svc.GetCategoryByID(user.ID, missingID)
	testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
}

func TestUpdateCategory(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		updated, err := svc.UpdateCategory(user.ID, cat.ID, "Renamed", "desc", "", "#123456", nil)
		testutil.AssertNoError(t, err)
		if updated.Name != "Renamed" || updated.Color != "#123456" {
			t.Errorf("unexpected category: %+v", updated)
		}
	})

	t.Run("self_parent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		_, err := svc.UpdateCategory(user.ID, cat.ID, "", "", "", "", &cat.ID)
		testutil.AssertAppError(t, err, "SELF_PARENT_CATEGORY")
	})

	t.Run("parent_with_children_cannot_become_child", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		a := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestSubcategory(t, db, a)
		b := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		_, err := svc.UpdateCategory(user.ID, a.ID, "", "", "", "", &b.ID)
		testutil.AssertAppError(t, err, "NESTED_SUBCATEGORY")
	})

	t.Run("detach_from_parent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		child := testutil.CreateTestSubcategory(t, db, parent)

		updated, err := svc.UpdateCategory(user.ID, child.ID, "", "", "", "", strPtr(""))
		testutil.AssertNoError(t, err)
		if updated.ParentID != nil {
			t.Errorf("expected no parent, got %v", *updated.ParentID)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		_, err := NewCategoryService(db).UpdateCategory(user.ID, missingID, "x", "", "", "", nil)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestDeleteCategory(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		testutil.AssertNoError(t, svc.DeleteCategory(user.ID, cat.ID))
		_, err := svc.GetCategoryByID(user.ID, cat.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})

	t.Run("has_children", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		parent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestSubcategory(t, db, parent)

		err := svc.DeleteCategory(user.ID, parent.ID)
		testutil.AssertAppError(t, err, "CATEGORY_HAS_CHILDREN")
	})

	t.Run("used_by_expense", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestExpense(t, db, user.ID, cat.ID, 500, time.Now())

		err := svc.DeleteCategory(user.ID, cat.ID)
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})

	t.Run("used_by_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewCategoryService(db)
		user := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		testutil.CreateTestBudget(t, db, user.ID, cat.ID)

		err := svc.DeleteCategory(user.ID, cat.ID)
		testutil.AssertAppError(t, err, "CATEGORY_IN_USE")
	})

	t.Run("wrong_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		cat := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		err := NewCategoryService(db).DeleteCategory(other.ID, cat.ID)
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}
