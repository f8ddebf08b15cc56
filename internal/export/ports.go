// Package export defines the outbound ports for mirroring recorded expenses
// to an external spreadsheet.
package export

import "context"

// Row is one exported expense. ExpenseID is written as the first column and
// is the key used to reconcile deletions.
type Row struct {
	ExpenseID   int64
	Date        string // YYYY-MM-DD
	Description string
	Amount      float64 // whole units, for spreadsheet display
	Category    string
	Subcategory string
}

type (
	// RowWriter appends one expense row to the export target.
	RowWriter interface {
		AppendRow(ctx context.Context, row Row) error
	}

	// RowDeleter removes the row previously exported for an expense.
	// Deleting a row that was never exported is not an error.
	RowDeleter interface {
		DeleteRow(ctx context.Context, expenseID int64) error
	}
)
