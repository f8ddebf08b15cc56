package core

import "testing"

func perfFixtureBudget() Budget {
	return Budget{
		ID:     1,
		UserID: 1,
		Name:   "March",
		Start:  NewDate(2025, 3, 1),
		End:    NewDate(2025, 3, 31),
		Target: Money{Cents: 100000},
	}
}

func TestComputeBudgetPerformance(t *testing.T) {
	b := perfFixtureBudget()
	allocations := []Allocation{
		{BudgetID: 1, CategoryID: 10, Amount: Money{Cents: 40000}},
		{BudgetID: 1, CategoryID: 20, Amount: Money{Cents: 30000}},
	}
	spent := map[int64]int64{
		10: 25000, // under allocation
		20: 35000, // over allocation
	}
	names := map[int64]string{10: "Groceries", 20: "Transport"}

	perf := ComputeBudgetPerformance(b, allocations, spent, names)

	if len(perf.Categories) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(perf.Categories))
	}
	// Sorted by spent descending: Transport first.
	if perf.Categories[0].Name != "Transport" {
		t.Fatalf("expected Transport first, got %s", perf.Categories[0].Name)
	}
	if perf.Categories[0].Remaining.Cents != -5000 {
		t.Fatalf("overspent remaining: expected -5000, got %d", perf.Categories[0].Remaining.Cents)
	}
	if perf.Categories[1].Remaining.Cents != 15000 {
		t.Fatalf("underspent remaining: expected 15000, got %d", perf.Categories[1].Remaining.Cents)
	}
	if perf.TotalAllocated.Cents != 70000 {
		t.Fatalf("total allocated: expected 70000, got %d", perf.TotalAllocated.Cents)
	}
	if perf.TotalSpent.Cents != 60000 {
		t.Fatalf("total spent: expected 60000, got %d", perf.TotalSpent.Cents)
	}
	if perf.TotalRemaining.Cents != 40000 {
		t.Fatalf("total remaining: expected 40000, got %d", perf.TotalRemaining.Cents)
	}
}

func TestComputeBudgetPerformanceUnallocated(t *testing.T) {
	b := perfFixtureBudget()
	allocations := []Allocation{
		{BudgetID: 1, CategoryID: 10, Amount: Money{Cents: 40000}},
	}
	spent := map[int64]int64{
		10: 10000,
		30: 7000, // no allocation for this category
		40: 3000, // nor this one
	}
	names := map[int64]string{10: "Groceries", 30: "Gifts", 40: "Bar"}

	perf := ComputeBudgetPerformance(b, allocations, spent, names)

	if len(perf.Categories) != 2 {
		t.Fatalf("expected allocated row + unallocated row, got %d", len(perf.Categories))
	}
	last := perf.Categories[len(perf.Categories)-1]
	if last.Name != "unallocated" || last.CategoryID != 0 {
		t.Fatalf("expected trailing unallocated row, got %+v", last)
	}
	if last.Spent.Cents != 10000 {
		t.Fatalf("unallocated spent: expected 10000, got %d", last.Spent.Cents)
	}
	if last.Allocated.Cents != 0 || last.Remaining.Cents != -10000 {
		t.Fatalf("unallocated row totals wrong: %+v", last)
	}
	// Totals reconcile with the expense table.
	if perf.TotalSpent.Cents != 20000 {
		t.Fatalf("total spent: expected 20000, got %d", perf.TotalSpent.Cents)
	}
	if perf.TotalRemaining.Cents != 80000 {
		t.Fatalf("total remaining: expected 80000, got %d", perf.TotalRemaining.Cents)
	}
}

func TestComputeBudgetPerformanceEmpty(t *testing.T) {
	b := perfFixtureBudget()
	perf := ComputeBudgetPerformance(b, nil, nil, nil)
	if len(perf.Categories) != 0 {
		t.Fatalf("expected no rows, got %d", len(perf.Categories))
	}
	if perf.TotalSpent.Cents != 0 || perf.TotalAllocated.Cents != 0 {
		t.Fatalf("expected zero totals, got %+v", perf)
	}
	if perf.TotalRemaining.Cents != b.Target.Cents {
		t.Fatalf("remaining should equal target: got %d", perf.TotalRemaining.Cents)
	}
}
