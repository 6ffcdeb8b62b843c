package models

// CategoryType represents the type of category
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// Category groups expenses. A category with a ParentID is a subcategory;
// nesting is limited to one level.
type Category struct {
	Base
	UserID      string       `gorm:"type:uuid;not null;index" json:"user_id"`
	Name        string       `gorm:"not null" json:"name"`
	Type        CategoryType `gorm:"not null" json:"type"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Color       string       `json:"color"`
	ParentID    *string      `gorm:"type:uuid;index" json:"parent_id,omitempty"`

	Children []Category `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

// IsSubcategory reports whether c has a parent.
func (c *Category) IsSubcategory() bool {
	return c.ParentID != nil && *c.ParentID != ""
}
