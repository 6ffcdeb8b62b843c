// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"regexp"

	"pocketledger/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var hexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn registers the custom tags on v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("hex_color", validateHexColor)
	_ = v.RegisterValidation("category_type", validateCategoryType)
	_ = v.RegisterValidation("budget_period", validateBudgetPeriod)
	_ = v.RegisterValidation("recurring_type", validateRecurringType)
	_ = v.RegisterValidation("payment_mode", validatePaymentMode)
}

func validateHexColor(fl validator.FieldLevel) bool {
	return hexColorRegex.MatchString(fl.Field().String())
}

func validateCategoryType(fl validator.FieldLevel) bool {
	switch models.CategoryType(fl.Field().String()) {
	case models.CategoryTypeIncome, models.CategoryTypeExpense:
		return true
	}
	return false
}

func validateBudgetPeriod(fl validator.FieldLevel) bool {
	switch models.BudgetPeriod(fl.Field().String()) {
	case models.BudgetPeriodMonthly, models.BudgetPeriodYearly:
		return true
	}
	return false
}

func validateRecurringType(fl validator.FieldLevel) bool {
	return models.RecurringType(fl.Field().String()).Known()
}

func validatePaymentMode(fl validator.FieldLevel) bool {
	return models.PaymentMode(fl.Field().String()).Known()
}
