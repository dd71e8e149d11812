package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"edukeeper/internal/util"
	"edukeeper/pkg/domain"
)

// CreateCategory adds a named grouping owned by the user.
func (a *App) CreateCategory(owner domain.User, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, errors.New("category name required")
	}
	existing, err := a.store.ListCategoriesByOwner(owner.ID)
	if err != nil {
		return domain.Category{}, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return domain.Category{}, errors.New("category name already used")
		}
	}
	cat := domain.Category{
		ID:        util.NewID(),
		OwnerID:   owner.ID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveCategory(cat); err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return cat, nil
}

// ListCategories returns the user's categories.
func (a *App) ListCategories(owner domain.User) ([]domain.Category, error) {
	return a.store.ListCategoriesByOwner(owner.ID)
}

// DeleteCategory removes the grouping. Documents keep existing with their
// category reference cleared.
func (a *App) DeleteCategory(user domain.User, id string) error {
	cat, ok, err := a.store.GetCategory(id)
	if err != nil {
		return fmt.Errorf("fetch category: %w", err)
	}
	if !ok {
		return ErrCategoryNotFound
	}
	if cat.OwnerID != user.ID && user.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return a.store.DeleteCategory(id)
}
