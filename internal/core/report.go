package core

import "sort"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID int64
	Name       string
	Amount     Money
}

// MonthReport is a compact summary for a specific year+month.
type MonthReport struct {
	Year       int
	Month      int // 1-12
	Expenses   Money
	Incomes    Money
	Net        Money // incomes minus expenses
	ByCategory []CategoryAmount
}

// CategoryPerformance is one row of a budget performance report.
// Remaining can be negative when the category overspent its allocation.
type CategoryPerformance struct {
	CategoryID int64
	Name       string
	Allocated  Money
	Spent      Money
	Remaining  Money
}

// BudgetPerformance aggregates spending against a budget's allocations.
//
// Categories holds one row per allocated category, in descending spent order,
// plus a trailing unallocated row when expenses inside the range hit
// categories with no allocation. Totals reconcile: TotalSpent equals the sum
// of all Spent columns including the unallocated row.
type BudgetPerformance struct {
	Budget         Budget
	Categories     []CategoryPerformance
	TotalAllocated Money
	TotalSpent     Money
	TotalRemaining Money // target minus total spent
}

// ComputeBudgetPerformance joins per-category spending inside the budget's
// range against the budget's allocations. spentByCategory comes from a SQL
// GROUP BY over the date range; names resolves category IDs for display.
func ComputeBudgetPerformance(b Budget, allocations []Allocation, spentByCategory map[int64]int64, names map[int64]string) BudgetPerformance {
	perf := BudgetPerformance{Budget: b}

	seen := make(map[int64]bool, len(allocations))
	for _, a := range allocations {
		spent := spentByCategory[a.CategoryID]
		perf.Categories = append(perf.Categories, CategoryPerformance{
			CategoryID: a.CategoryID,
			Name:       names[a.CategoryID],
			Allocated:  a.Amount,
			Spent:      Money{Cents: spent},
			Remaining:  Money{Cents: a.Amount.Cents - spent},
		})
		perf.TotalAllocated.Cents += a.Amount.Cents
		perf.TotalSpent.Cents += spent
		seen[a.CategoryID] = true
	}

	// Spending outside any allocated category still counts toward the budget.
	var unallocated int64
	for catID, cents := range spentByCategory {
		if !seen[catID] {
			unallocated += cents
		}
	}
	if unallocated > 0 {
		perf.Categories = append(perf.Categories, CategoryPerformance{
			Name:      "unallocated",
			Spent:     Money{Cents: unallocated},
			Remaining: Money{Cents: -unallocated},
		})
		perf.TotalSpent.Cents += unallocated
	}

	// Rows ordered by spent descending, name for ties, unallocated last.
	sort.SliceStable(perf.Categories, func(i, j int) bool {
		a, b := perf.Categories[i], perf.Categories[j]
		if (a.CategoryID == 0) != (b.CategoryID == 0) {
			return b.CategoryID == 0
		}
		if a.Spent.Cents != b.Spent.Cents {
			return a.Spent.Cents > b.Spent.Cents
		}
		return a.Name < b.Name
	})

	perf.TotalRemaining = Money{Cents: b.Target.Cents - perf.TotalSpent.Cents}
	return perf
}
