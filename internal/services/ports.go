// Package services orchestrates the domain operations on top of a store,
// publishing export messages where bookkeeping requires it.
package services

import (
	"context"

	"tally/internal/core"
)

// TaxonomyStore persists categories and subcategories.
type TaxonomyStore interface {
	CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error)
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
	DeleteCategory(ctx context.Context, userID, id int64) error

	CreateSubcategory(ctx context.Context, userID, categoryID int64, name string) (core.Subcategory, error)
	ListSubcategories(ctx context.Context, userID, categoryID int64) ([]core.Subcategory, error)
	DeleteSubcategory(ctx context.Context, userID, id int64) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
}

// IncomeStore persists incomes.
type IncomeStore interface {
	CreateIncome(ctx context.Context, in core.Income) (core.Income, error)
	ListIncomes(ctx context.Context, userID int64, year, month int) ([]core.Income, error)
	DeleteIncome(ctx context.Context, userID, id int64) error
}

// BudgetStore persists budgets and their allocations, and answers the
// aggregation queries budget performance needs.
type BudgetStore interface {
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	GetBudget(ctx context.Context, userID, id int64) (core.Budget, error)
	ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	DeleteBudget(ctx context.Context, userID, id int64) error

	ReplaceAllocations(ctx context.Context, userID, budgetID int64, allocs []core.Allocation) error
	ListAllocations(ctx context.Context, userID, budgetID int64) ([]core.Allocation, error)

	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	SumExpensesByCategory(ctx context.Context, userID int64, start, end core.Date) (map[int64]int64, error)
}

// ReportStore answers the monthly report queries.
type ReportStore interface {
	MonthCategorySums(ctx context.Context, userID int64, year, month int) ([]core.CategoryAmount, error)
	SumIncomes(ctx context.Context, userID int64, year, month int) (int64, error)
}

// Publisher emits export messages for expense writes.
type Publisher interface {
	PublishExpenseRecorded(ctx context.Context, id int64) error
	PublishExpenseDeleted(ctx context.Context, id int64) error
}
