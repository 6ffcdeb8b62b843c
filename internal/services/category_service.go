package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/models"
	"pocketledger/internal/pagination"
)

// categoryService handles category-related business logic.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

var categorySortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
}

// CreateCategory creates a new category. A parentID makes it a subcategory.
func (s *categoryService) CreateCategory(
	userID string,
	name string,
	categoryType models.CategoryType,
	description string,
	icon string,
	color string,
	parentID *string,
) (*models.Category, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	if err := s.ensureUniqueName(userID, name, ""); err != nil {
		return nil, err
	}

	if parentID != nil && *parentID != "" {
		parent, err := s.loadParent(userID, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.Type != categoryType {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "subcategory type must match its parent")
		}
	} else {
		parentID = nil
	}

	category := &models.Category{
		UserID:      userID,
		Name:        name,
		Type:        categoryType,
		Description: description,
		Icon:        icon,
		Color:       color,
		ParentID:    parentID,
	}

	if err := s.db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return category, nil
}

func (s *categoryService) ensureUniqueName(userID, name, excludeID string) error {
	q := s.db.Model(&models.Category{}).Where("user_id = ? AND name = ?", userID, name)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "category with this name already exists")
	}
	return nil
}

// loadParent returns the would-be parent, which must be a top-level category of the user.
func (s *categoryService) loadParent(userID, parentID string) (*models.Category, error) {
	var parent models.Category
	if err := s.db.Where("id = ? AND user_id = ?", parentID, userID).First(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrCategoryNotFound, "parent category not found")
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if parent.IsSubcategory() {
		return nil, apperrors.ErrNestedSubcategory
	}
	return &parent, nil
}

// GetUserCategories retrieves a paginated list of categories for a user.
func (s *categoryService) GetUserCategories(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	return s.list(s.db.Model(&models.Category{}).Where("user_id = ?", userID), page)
}

// GetUserCategoriesByType retrieves a paginated list of categories of a specific type for a user.
func (s *categoryService) GetUserCategoriesByType(userID string, categoryType models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	return s.list(s.db.Model(&models.Category{}).Where("user_id = ? AND type = ?", userID, categoryType), page)
}

func (s *categoryService) list(base *gorm.DB, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	page.Defaults()

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	if err := base.Order(page.OrderClause(categorySortColumns, "name")).
		Scopes(pagination.Paginate(page)).
		Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryByID retrieves a category and its subcategories for a specific user
func (s *categoryService) GetCategoryByID(userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Preload("Children").Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// UpdateCategory updates an existing category. An empty parentID detaches it from its parent.
func (s *categoryService) UpdateCategory(
	userID string,
	categoryID string,
	name string,
	description string,
	icon string,
	color string,
	parentID *string,
) (*models.Category, error) {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name != "" && name != category.Name {
		if err := s.ensureUniqueName(userID, name, categoryID); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if description != "" {
		updates["description"] = description
	}
	if icon != "" {
		updates["icon"] = icon
	}
	if color != "" {
		updates["color"] = color
	}

	if parentID != nil {
		if *parentID == "" {
			updates["parent_id"] = nil
		} else {
			if *parentID == categoryID {
				return nil, apperrors.ErrSelfParentCategory
			}
			if len(category.Children) > 0 {
				return nil, apperrors.ErrNestedSubcategory
			}
			parent, err := s.loadParent(userID, *parentID)
			if err != nil {
				return nil, err
			}
			if parent.Type != category.Type {
				return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "subcategory type must match its parent")
			}
			updates["parent_id"] = *parentID
		}
	}

	if len(updates) > 0 {
		if err := s.db.Model(category).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetCategoryByID(userID, categoryID)
}

// DeleteCategory soft-deletes a category that has no subcategories and is not
// referenced by expenses or budgets.
func (s *categoryService) DeleteCategory(userID, categoryID string) error {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return err
	}

	if len(category.Children) > 0 {
		return apperrors.ErrCategoryHasChildren
	}

	var used int64
	if err := s.db.Model(&models.Expense{}).
		Where("category_id = ? OR subcategory_id = ?", categoryID, categoryID).
		Count(&used).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if used == 0 {
		if err := s.db.Model(&models.Budget{}).Where("category_id = ?", categoryID).Count(&used).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	if used > 0 {
		return apperrors.ErrCategoryInUse
	}

	if err := s.db.Delete(category).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
