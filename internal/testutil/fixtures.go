package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"pocketledger/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// TestPassword is the plain-text password of users created by CreateTestUser.
const TestPassword = "password123"

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCategory creates a top-level category.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()
	return createCategory(t, db, userID, categoryType, nil)
}

// CreateTestSubcategory creates a child of parent.
func CreateTestSubcategory(t *testing.T, db *gorm.DB, parent *models.Category) *models.Category {
	t.Helper()
	parentID := parent.ID
	return createCategory(t, db, parent.UserID, parent.Type, &parentID)
}

func createCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType, parentID *string) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Category %d", nextID()),
		Type:     categoryType,
		ParentID: parentID,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestExpense creates a one-off expense dated at date.
func CreateTestExpense(t *testing.T, db *gorm.DB, userID, categoryID string, amount int64, date time.Time) *models.Expense {
	t.Helper()

	expense := &models.Expense{
		UserID:      userID,
		CategoryID:  categoryID,
		Title:       fmt.Sprintf("Test Expense %d", nextID()),
		Amount:      amount,
		PaymentMode: models.PaymentModeCash,
		Date:        date,
	}
	if err := db.Create(expense).Error; err != nil {
		t.Fatalf("failed to create test expense: %v", err)
	}
	return expense
}

// CreateTestTemplate creates a recurring template whose creation timestamp is
// createdAt, which anchors the first materialization.
func CreateTestTemplate(t *testing.T, db *gorm.DB, userID, categoryID string, recurringType models.RecurringType, createdAt time.Time) *models.Expense {
	t.Helper()

	typ := recurringType
	template := &models.Expense{
		Base:          models.Base{CreatedAt: createdAt, UpdatedAt: createdAt},
		UserID:        userID,
		CategoryID:    categoryID,
		Title:         fmt.Sprintf("Subscription %d", nextID()),
		Amount:        1500,
		PaymentMode:   models.PaymentModeCard,
		Date:          createdAt,
		IsRecurring:   true,
		RecurringType: &typ,
	}
	if err := db.Create(template).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}
	return template
}

// CreateTestBudget creates a monthly budget of 10000 starting today.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID, categoryID string) *models.Budget {
	t.Helper()

	budget := &models.Budget{
		UserID:     userID,
		CategoryID: categoryID,
		Name:       fmt.Sprintf("Test Budget %d", nextID()),
		Amount:     10000,
		Period:     models.BudgetPeriodMonthly,
		StartDate:  time.Now(),
		IsActive:   true,
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}
