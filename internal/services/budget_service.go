package services

import (
	"context"
	"fmt"

	"tally/internal/core"
	"tally/internal/storage"
)

// BudgetService manages budgets, their allocations and the performance
// calculation.
type BudgetService struct {
	store BudgetStore
}

func NewBudgetService(store BudgetStore) *BudgetService {
	return &BudgetService{store: store}
}

func (s *BudgetService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	saved, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	return saved, nil
}

func (s *BudgetService) GetBudget(ctx context.Context, userID, id int64) (core.Budget, error) {
	return s.store.GetBudget(ctx, userID, id)
}

func (s *BudgetService) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, userID)
}

func (s *BudgetService) DeleteBudget(ctx context.Context, userID, id int64) error {
	return s.store.DeleteBudget(ctx, userID, id)
}

// ReplaceAllocations swaps a budget's allocation set. Each category may
// appear at most once.
func (s *BudgetService) ReplaceAllocations(ctx context.Context, userID, budgetID int64, allocs []core.Allocation) error {
	seen := make(map[int64]struct{}, len(allocs))
	for _, a := range allocs {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.CategoryID]; dup {
			return storage.ErrDuplicate
		}
		seen[a.CategoryID] = struct{}{}
	}
	return s.store.ReplaceAllocations(ctx, userID, budgetID, allocs)
}

func (s *BudgetService) ListAllocations(ctx context.Context, userID, budgetID int64) ([]core.Allocation, error) {
	return s.store.ListAllocations(ctx, userID, budgetID)
}

// Performance reports per-category allocated versus spent amounts over the
// budget's date range.
func (s *BudgetService) Performance(ctx context.Context, userID, budgetID int64) (core.BudgetPerformance, error) {
	b, err := s.store.GetBudget(ctx, userID, budgetID)
	if err != nil {
		return core.BudgetPerformance{}, err
	}
	allocs, err := s.store.ListAllocations(ctx, userID, budgetID)
	if err != nil {
		return core.BudgetPerformance{}, fmt.Errorf("list allocations: %w", err)
	}
	spent, err := s.store.SumExpensesByCategory(ctx, userID, b.Start, b.End)
	if err != nil {
		return core.BudgetPerformance{}, fmt.Errorf("sum expenses: %w", err)
	}
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return core.BudgetPerformance{}, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return core.ComputeBudgetPerformance(b, allocs, spent, names), nil
}
