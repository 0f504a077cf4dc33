package service

import (
	"context"
	"sort"
	"strings"

	"timeblocker/internal/repository"
)

// CategoryService lists the free-form categories a user has used.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

// List returns the distinct categories of the user's tasks and blocks, sorted case-insensitively.
func (s *CategoryService) List(ctx context.Context, userID string) ([]string, error) {
	used, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(used))
	names := make([]string, 0, len(used))
	for _, name := range used {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names, nil
}
