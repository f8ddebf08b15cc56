package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the persistent store backing every resource: users,
// sessions, taxonomy, expenses, incomes, budgets and export bookkeeping.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// monthBounds returns the [from, to) date strings covering a calendar month.
func monthBounds(year, month int) (string, string) {
	from := core.NewDate(year, month, 1)
	to := core.NewDate(year, month+1, 1) // time.Date normalizes month 13
	return from.String(), to.String()
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	u, err := r.queries.CreateUser(ctx, CreateUserParams{Email: email, PasswordHash: passwordHash})
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.queries.GetUserByEmail(ctx, email)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	return r.queries.GetUser(ctx, id)
}

// --- sessions ---

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	if err := r.queries.CreateSession(ctx, CreateSessionParams{Token: token, UserID: userID, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (int64, time.Time, error) {
	return r.queries.GetSession(ctx, token)
}

func (r *SQLiteRepository) TouchSession(ctx context.Context, token string, expiresAt time.Time) error {
	return r.queries.UpdateSessionExpiry(ctx, token, expiresAt)
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	return r.queries.DeleteSession(ctx, token)
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.queries.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		slog.DebugContext(ctx, "Expired sessions removed", "count", n)
	}
	return n, nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	c, err := r.queries.CreateCategory(ctx, CreateCategoryParams{UserID: userID, Name: name})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	out, err := r.queries.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	return r.queries.GetCategory(ctx, userID, id)
}

// DeleteCategory refuses to delete a category that recorded expenses or
// incomes still reference; history wins over taxonomy edits.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	if _, err := r.queries.GetCategory(ctx, userID, id); err != nil {
		return err
	}
	refs, err := r.queries.CountCategoryRefs(ctx, id)
	if err != nil {
		return fmt.Errorf("count category refs: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}
	return r.queries.DeleteCategory(ctx, userID, id)
}

func (r *SQLiteRepository) CreateSubcategory(ctx context.Context, userID, categoryID int64, name string) (core.Subcategory, error) {
	if _, err := r.queries.GetCategory(ctx, userID, categoryID); err != nil {
		return core.Subcategory{}, err
	}
	s, err := r.queries.CreateSubcategory(ctx, CreateSubcategoryParams{CategoryID: categoryID, Name: name})
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("create subcategory: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListSubcategories(ctx context.Context, userID, categoryID int64) ([]core.Subcategory, error) {
	if _, err := r.queries.GetCategory(ctx, userID, categoryID); err != nil {
		return nil, err
	}
	out, err := r.queries.ListSubcategories(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetSubcategory(ctx context.Context, userID, id int64) (core.Subcategory, error) {
	s, ownerID, err := r.queries.GetSubcategory(ctx, id)
	if err != nil {
		return core.Subcategory{}, err
	}
	if ownerID != userID {
		return core.Subcategory{}, ErrNotFound
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteSubcategory(ctx context.Context, userID, id int64) error {
	_, ownerID, err := r.queries.GetSubcategory(ctx, id)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrNotFound
	}
	refs, err := r.queries.CountSubcategoryRefs(ctx, id)
	if err != nil {
		return fmt.Errorf("count subcategory refs: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}
	return r.queries.DeleteSubcategory(ctx, id)
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if _, err := r.queries.GetCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}
	var sub sql.NullInt64
	if e.SubcategoryID != 0 {
		s, ownerID, err := r.queries.GetSubcategory(ctx, e.SubcategoryID)
		if err != nil {
			return core.Expense{}, err
		}
		if ownerID != e.UserID || s.CategoryID != e.CategoryID {
			return core.Expense{}, ErrNotFound
		}
		sub = sql.NullInt64{Int64: e.SubcategoryID, Valid: true}
	}

	id, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		UserID:        e.UserID,
		Date:          e.Date.String(),
		Description:   e.Description,
		AmountCents:   e.Amount.Cents,
		CategoryID:    e.CategoryID,
		SubcategoryID: sub,
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"category_id", e.CategoryID)

	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	return r.queries.GetExpense(ctx, userID, id)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error) {
	from, to := monthBounds(year, month)
	out, err := r.queries.ListExpensesByRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	if err := r.queries.SoftDeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Expense deleted", "expense_id", id, "user_id", userID)
	return nil
}

// SumExpensesByCategory returns per-category spending over the budget's
// inclusive [start, end] range.
func (r *SQLiteRepository) SumExpensesByCategory(ctx context.Context, userID int64, start, end core.Date) (map[int64]int64, error) {
	// end is inclusive; the query upper bound is exclusive.
	to := core.Date{Time: end.AddDate(0, 0, 1)}
	rows, err := r.queries.SumExpensesByCategory(ctx, userID, start.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("sum expenses by category: %w", err)
	}
	sums := make(map[int64]int64, len(rows))
	for _, row := range rows {
		sums[row.CategoryID] = row.TotalCents
	}
	return sums, nil
}

// MonthCategorySums returns the per-category expense breakdown for a month.
func (r *SQLiteRepository) MonthCategorySums(ctx context.Context, userID int64, year, month int) ([]core.CategoryAmount, error) {
	from, to := monthBounds(year, month)
	rows, err := r.queries.SumExpensesByCategory(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("month category sums: %w", err)
	}
	out := make([]core.CategoryAmount, len(rows))
	for i, row := range rows {
		out[i] = core.CategoryAmount{
			CategoryID: row.CategoryID,
			Name:       row.Name,
			Amount:     core.Money{Cents: row.TotalCents},
		}
	}
	return out, nil
}

// --- incomes ---

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if _, err := r.queries.GetCategory(ctx, in.UserID, in.CategoryID); err != nil {
		return core.Income{}, err
	}
	id, err := r.queries.CreateIncome(ctx, CreateIncomeParams{
		UserID:      in.UserID,
		Date:        in.Date.String(),
		Description: in.Description,
		AmountCents: in.Amount.Cents,
		CategoryID:  in.CategoryID,
	})
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	in.ID = id
	slog.InfoContext(ctx, "Income saved",
		"income_id", in.ID,
		"user_id", in.UserID,
		"amount_cents", in.Amount.Cents)
	return in, nil
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context, userID int64, year, month int) ([]core.Income, error) {
	from, to := monthBounds(year, month)
	out, err := r.queries.ListIncomesByRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, userID, id int64) error {
	return r.queries.DeleteIncome(ctx, userID, id)
}

func (r *SQLiteRepository) SumIncomes(ctx context.Context, userID int64, year, month int) (int64, error) {
	from, to := monthBounds(year, month)
	total, err := r.queries.SumIncomes(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("sum incomes: %w", err)
	}
	return total, nil
}

// --- budgets ---

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	id, err := r.queries.CreateBudget(ctx, CreateBudgetParams{
		UserID:      b.UserID,
		Name:        b.Name,
		StartDate:   b.Start.String(),
		EndDate:     b.End.String(),
		TargetCents: b.Target.Cents,
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	b.ID = id
	slog.InfoContext(ctx, "Budget created",
		"budget_id", b.ID,
		"user_id", b.UserID,
		"target_cents", b.Target.Cents)
	return b, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID, id int64) (core.Budget, error) {
	return r.queries.GetBudget(ctx, userID, id)
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	out, err := r.queries.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id int64) error {
	return r.queries.DeleteBudget(ctx, userID, id)
}

// ReplaceAllocations swaps a budget's allocation set atomically. Every
// referenced category must belong to the budget's owner.
func (r *SQLiteRepository) ReplaceAllocations(ctx context.Context, userID, budgetID int64, allocs []core.Allocation) error {
	if _, err := r.queries.GetBudget(ctx, userID, budgetID); err != nil {
		return err
	}
	for _, a := range allocs {
		if _, err := r.queries.GetCategory(ctx, userID, a.CategoryID); err != nil {
			return fmt.Errorf("allocation category %d: %w", a.CategoryID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	if err := qtx.DeleteAllocations(ctx, budgetID); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	for _, a := range allocs {
		err := qtx.CreateAllocation(ctx, CreateAllocationParams{
			BudgetID:    budgetID,
			CategoryID:  a.CategoryID,
			AmountCents: a.Amount.Cents,
		})
		if err != nil {
			return fmt.Errorf("insert allocation for category %d: %w", a.CategoryID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocations: %w", err)
	}

	slog.InfoContext(ctx, "Budget allocations replaced",
		"budget_id", budgetID,
		"user_id", userID,
		"count", len(allocs))
	return nil
}

func (r *SQLiteRepository) ListAllocations(ctx context.Context, userID, budgetID int64) ([]core.Allocation, error) {
	if _, err := r.queries.GetBudget(ctx, userID, budgetID); err != nil {
		return nil, err
	}
	out, err := r.queries.ListAllocations(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}

// --- export bookkeeping (worker side) ---

func (r *SQLiteRepository) GetExpenseForExport(ctx context.Context, id int64) (core.Expense, bool, error) {
	return r.queries.GetExpenseAny(ctx, id)
}

func (r *SQLiteRepository) GetPendingExportExpenses(ctx context.Context, limit int) ([]PendingExportExpense, error) {
	out, err := r.queries.GetPendingExportExpenses(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if err := r.queries.MarkExpenseExported(ctx, id); err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as exported", "expense_id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64, cause error) error {
	if err := r.queries.MarkExpenseExportError(ctx, id, cause.Error()); err != nil {
		return fmt.Errorf("mark expense export error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with export error", "expense_id", id, "error", cause)
	return nil
}
