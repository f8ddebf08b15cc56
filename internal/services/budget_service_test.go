package services

import (
	"context"
	"errors"
	"testing"

	"tally/internal/core"
	"tally/internal/storage"
	"tally/internal/storage/memory"
)

func TestBudgetPerformanceEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u, _ := store.CreateUser(ctx, "test@example.com", "hash")

	groceries, _ := store.CreateCategory(ctx, u.ID, "Groceries")
	transport, _ := store.CreateCategory(ctx, u.ID, "Transport")
	other, _ := store.CreateCategory(ctx, u.ID, "Other")

	budgets := NewBudgetService(store)
	expenses := NewExpenseService(store, nil, nil)

	b, err := budgets.CreateBudget(ctx, core.Budget{
		UserID: u.ID,
		Name:   "March",
		Start:  core.NewDate(2026, 3, 1),
		End:    core.NewDate(2026, 3, 31),
		Target: core.Money{Cents: 100_000},
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	err = budgets.ReplaceAllocations(ctx, u.ID, b.ID, []core.Allocation{
		{CategoryID: groceries.ID, Amount: core.Money{Cents: 40_000}},
		{CategoryID: transport.ID, Amount: core.Money{Cents: 20_000}},
	})
	if err != nil {
		t.Fatalf("ReplaceAllocations: %v", err)
	}

	spend := func(day int, cents int64, catID int64) {
		t.Helper()
		_, err := expenses.CreateExpense(ctx, core.Expense{
			UserID:      u.ID,
			Date:        core.NewDate(2026, 3, day),
			Description: "x",
			Amount:      core.Money{Cents: cents},
			CategoryID:  catID,
		})
		if err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}
	spend(1, 15_000, groceries.ID)  // range start, inclusive
	spend(31, 10_000, groceries.ID) // range end, inclusive
	spend(10, 25_000, transport.ID) // overspends its allocation
	spend(12, 5_000, other.ID)      // no allocation: unallocated bucket

	// Outside the range, must not count.
	_, err = expenses.CreateExpense(ctx, core.Expense{
		UserID: u.ID, Date: core.NewDate(2026, 4, 1), Description: "x",
		Amount: core.Money{Cents: 77_777}, CategoryID: groceries.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	// Soft-deleted expenses must not count either.
	doomed, err := expenses.CreateExpense(ctx, core.Expense{
		UserID: u.ID, Date: core.NewDate(2026, 3, 20), Description: "x",
		Amount: core.Money{Cents: 99_999}, CategoryID: groceries.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if err := expenses.DeleteExpense(ctx, u.ID, doomed.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	perf, err := budgets.Performance(ctx, u.ID, b.ID)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}

	if got, want := perf.TotalAllocated.Cents, int64(60_000); got != want {
		t.Errorf("TotalAllocated = %d, want %d", got, want)
	}
	if got, want := perf.TotalSpent.Cents, int64(55_000); got != want {
		t.Errorf("TotalSpent = %d, want %d", got, want)
	}
	if got, want := perf.TotalRemaining.Cents, int64(45_000); got != want {
		t.Errorf("TotalRemaining = %d, want %d", got, want)
	}

	if len(perf.Categories) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(perf.Categories), perf.Categories)
	}
	// Ordered by spent descending, unallocated last.
	if perf.Categories[0].CategoryID != groceries.ID {
		t.Errorf("row 0 should be groceries, got %+v", perf.Categories[0])
	}
	if got := perf.Categories[0].Remaining.Cents; got != 15_000 {
		t.Errorf("groceries remaining = %d, want 15000", got)
	}
	if got := perf.Categories[1].Remaining.Cents; got != -5_000 {
		t.Errorf("transport remaining = %d, want -5000", got)
	}
	last := perf.Categories[2]
	if last.CategoryID != 0 || last.Spent.Cents != 5_000 {
		t.Errorf("expected trailing unallocated row with 5000 spent, got %+v", last)
	}
}

func TestReplaceAllocationsRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u, _ := store.CreateUser(ctx, "test@example.com", "hash")
	c, _ := store.CreateCategory(ctx, u.ID, "Groceries")

	budgets := NewBudgetService(store)
	b, _ := budgets.CreateBudget(ctx, core.Budget{
		UserID: u.ID, Name: "March",
		Start: core.NewDate(2026, 3, 1), End: core.NewDate(2026, 3, 31),
		Target: core.Money{Cents: 100_000},
	})

	err := budgets.ReplaceAllocations(ctx, u.ID, b.ID, []core.Allocation{
		{CategoryID: c.ID, Amount: core.Money{Cents: 1_000}},
		{CategoryID: c.ID, Amount: core.Money{Cents: 2_000}},
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestBudgetOwnershipIsOpaque(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	alice, _ := store.CreateUser(ctx, "alice@example.com", "hash")
	bob, _ := store.CreateUser(ctx, "bob@example.com", "hash")

	budgets := NewBudgetService(store)
	b, _ := budgets.CreateBudget(ctx, core.Budget{
		UserID: alice.ID, Name: "March",
		Start: core.NewDate(2026, 3, 1), End: core.NewDate(2026, 3, 31),
		Target: core.Money{Cents: 100_000},
	})

	if _, err := budgets.Performance(ctx, bob.ID, b.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign budget must look absent, got %v", err)
	}
}
