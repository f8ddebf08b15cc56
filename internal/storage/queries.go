package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tally/internal/core"
)

// DBTX is the subset of database/sql used by the query layer, satisfied by
// both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// mapConstraintErr translates SQLite constraint failures into the package's
// sentinel errors so callers do not depend on driver error strings.
func mapConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrDuplicate
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ErrInUse
	}
	return err
}

// --- users ---

type CreateUserParams struct {
	Email        string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?)
		 RETURNING id, email, password_hash, created_at`,
		arg.Email, arg.PasswordHash,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, mapConstraintErr(err)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return core.User{}, ErrNotFound
	}
	return u, err
}

func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return core.User{}, ErrNotFound
	}
	return u, err
}

// --- sessions ---

type CreateSessionParams struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		arg.Token, arg.UserID, arg.ExpiresAt.UTC(),
	)
	return mapConstraintErr(err)
}

func (q *Queries) GetSession(ctx context.Context, token string) (int64, time.Time, error) {
	var userID int64
	var expiresAt time.Time
	err := q.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = ?`,
		token,
	).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, ErrNotFound
	}
	return userID, expiresAt, err
}

func (q *Queries) UpdateSessionExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE token = ?`,
		expiresAt.UTC(), token,
	)
	return err
}

func (q *Queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (q *Queries) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- categories ---

type CreateCategoryParams struct {
	UserID int64
	Name   string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO categories (user_id, name) VALUES (?, ?)
		 RETURNING id, user_id, name`,
		arg.UserID, arg.Name,
	).Scan(&c.ID, &c.UserID, &c.Name)
	return c, mapConstraintErr(err)
}

func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM categories WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name)
	if err == sql.ErrNoRows {
		return core.Category{}, ErrNotFound
	}
	return c, err
}

func (q *Queries) CountCategoryRefs(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM expenses WHERE category_id = ? AND deleted_at IS NULL)
		      + (SELECT COUNT(*) FROM incomes WHERE category_id = ?)`,
		id, id,
	).Scan(&n)
	return n, err
}

func (q *Queries) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return mapConstraintErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CreateSubcategoryParams struct {
	CategoryID int64
	Name       string
}

func (q *Queries) CreateSubcategory(ctx context.Context, arg CreateSubcategoryParams) (core.Subcategory, error) {
	var s core.Subcategory
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO subcategories (category_id, name) VALUES (?, ?)
		 RETURNING id, category_id, name`,
		arg.CategoryID, arg.Name,
	).Scan(&s.ID, &s.CategoryID, &s.Name)
	return s, mapConstraintErr(err)
}

func (q *Queries) ListSubcategories(ctx context.Context, categoryID int64) ([]core.Subcategory, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, category_id, name FROM subcategories WHERE category_id = ? ORDER BY name`,
		categoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Subcategory
	for rows.Next() {
		var s core.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSubcategory resolves a subcategory together with its owning user so the
// caller can enforce ownership.
func (q *Queries) GetSubcategory(ctx context.Context, id int64) (core.Subcategory, int64, error) {
	var s core.Subcategory
	var ownerID int64
	err := q.db.QueryRowContext(ctx,
		`SELECT s.id, s.category_id, s.name, c.user_id
		 FROM subcategories s JOIN categories c ON c.id = s.category_id
		 WHERE s.id = ?`,
		id,
	).Scan(&s.ID, &s.CategoryID, &s.Name, &ownerID)
	if err == sql.ErrNoRows {
		return core.Subcategory{}, 0, ErrNotFound
	}
	return s, ownerID, err
}

func (q *Queries) CountSubcategoryRefs(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE subcategory_id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&n)
	return n, err
}

func (q *Queries) DeleteSubcategory(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id)
	if err != nil {
		return mapConstraintErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- expenses ---

type CreateExpenseParams struct {
	UserID        int64
	Date          string
	Description   string
	AmountCents   int64
	CategoryID    int64
	SubcategoryID sql.NullInt64
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO expenses (user_id, date, description, amount_cents, category_id, subcategory_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		arg.UserID, arg.Date, arg.Description, arg.AmountCents, arg.CategoryID, arg.SubcategoryID,
	).Scan(&id)
	return id, mapConstraintErr(err)
}

func scanExpense(rows interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var date string
	var sub sql.NullInt64
	if err := rows.Scan(&e.ID, &e.UserID, &date, &e.Description, &e.Amount.Cents, &e.CategoryID, &sub); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	e.SubcategoryID = sub.Int64
	return e, nil
}

const expenseColumns = `id, user_id, date, description, amount_cents, category_id, subcategory_id`

func (q *Queries) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id, userID,
	)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return core.Expense{}, ErrNotFound
	}
	return e, err
}

// GetExpenseAny fetches an expense by ID regardless of owner or soft-delete
// state. Used by the export worker, which reconciles deleted rows too.
func (q *Queries) GetExpenseAny(ctx context.Context, id int64) (core.Expense, bool, error) {
	var e core.Expense
	var date string
	var sub sql.NullInt64
	var deletedAt sql.NullTime
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, date, description, amount_cents, category_id, subcategory_id, deleted_at
		 FROM expenses WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.UserID, &date, &e.Description, &e.Amount.Cents, &e.CategoryID, &sub, &deletedAt)
	if err == sql.ErrNoRows {
		return core.Expense{}, false, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, false, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	e.SubcategoryID = sub.Int64
	return e, deletedAt.Valid, nil
}

func (q *Queries) ListExpensesByRange(ctx context.Context, userID int64, from, to string) ([]core.Expense, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = ? AND date >= ? AND date < ? AND deleted_at IS NULL
		 ORDER BY date, id`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) SoftDeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CategorySumRow struct {
	CategoryID int64
	Name       string
	TotalCents int64
}

// SumExpensesByCategory groups non-deleted expense amounts by category over
// [from, to). This is the aggregation behind budget performance and reports.
func (q *Queries) SumExpensesByCategory(ctx context.Context, userID int64, from, to string) ([]CategorySumRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT e.category_id, c.name, SUM(e.amount_cents)
		 FROM expenses e JOIN categories c ON c.id = e.category_id
		 WHERE e.user_id = ? AND e.date >= ? AND e.date < ? AND e.deleted_at IS NULL
		 GROUP BY e.category_id, c.name
		 ORDER BY SUM(e.amount_cents) DESC`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategorySumRow
	for rows.Next() {
		var r CategorySumRow
		if err := rows.Scan(&r.CategoryID, &r.Name, &r.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- export bookkeeping ---

type PendingExportExpense struct {
	ID       int64
	Attempts int64
}

func (q *Queries) GetPendingExportExpenses(ctx context.Context, limit int64) ([]PendingExportExpense, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, export_attempts FROM expenses
		 WHERE exported = 0 AND deleted_at IS NULL
		 ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingExportExpense
	for rows.Next() {
		var p PendingExportExpense
		if err := rows.Scan(&p.ID, &p.Attempts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) MarkExpenseExported(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET exported = 1, export_error = NULL WHERE id = ?`,
		id,
	)
	return err
}

func (q *Queries) MarkExpenseExportError(ctx context.Context, id int64, msg string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET export_attempts = export_attempts + 1, export_error = ? WHERE id = ?`,
		msg, id,
	)
	return err
}

// --- incomes ---

type CreateIncomeParams struct {
	UserID      int64
	Date        string
	Description string
	AmountCents int64
	CategoryID  int64
}

func (q *Queries) CreateIncome(ctx context.Context, arg CreateIncomeParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO incomes (user_id, date, description, amount_cents, category_id)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		arg.UserID, arg.Date, arg.Description, arg.AmountCents, arg.CategoryID,
	).Scan(&id)
	return id, mapConstraintErr(err)
}

func (q *Queries) ListIncomesByRange(ctx context.Context, userID int64, from, to string) ([]core.Income, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, date, description, amount_cents, category_id FROM incomes
		 WHERE user_id = ? AND date >= ? AND date < ?
		 ORDER BY date, id`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		var i core.Income
		var date string
		if err := rows.Scan(&i.ID, &i.UserID, &date, &i.Description, &i.Amount.Cents, &i.CategoryID); err != nil {
			return nil, err
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		i.Date = d
		out = append(out, i)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteIncome(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM incomes WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) SumIncomes(ctx context.Context, userID int64, from, to string) (int64, error) {
	var total sql.NullInt64
	err := q.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM incomes
		 WHERE user_id = ? AND date >= ? AND date < ?`,
		userID, from, to,
	).Scan(&total)
	return total.Int64, err
}

// --- budgets ---

type CreateBudgetParams struct {
	UserID      int64
	Name        string
	StartDate   string
	EndDate     string
	TargetCents int64
}

func (q *Queries) CreateBudget(ctx context.Context, arg CreateBudgetParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO budgets (user_id, name, start_date, end_date, target_cents)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id`,
		arg.UserID, arg.Name, arg.StartDate, arg.EndDate, arg.TargetCents,
	).Scan(&id)
	return id, mapConstraintErr(err)
}

func scanBudget(row interface{ Scan(...any) error }) (core.Budget, error) {
	var b core.Budget
	var start, end string
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &start, &end, &b.Target.Cents); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.Start, err = core.ParseDate(start); err != nil {
		return core.Budget{}, fmt.Errorf("stored start date %q: %w", start, err)
	}
	if b.End, err = core.ParseDate(end); err != nil {
		return core.Budget{}, fmt.Errorf("stored end date %q: %w", end, err)
	}
	return b, nil
}

const budgetColumns = `id, user_id, name, start_date, end_date, target_cents`

func (q *Queries) GetBudget(ctx context.Context, userID, id int64) (core.Budget, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return core.Budget{}, ErrNotFound
	}
	return b, err
}

func (q *Queries) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY start_date DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) DeleteAllocations(ctx context.Context, budgetID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM budget_allocations WHERE budget_id = ?`, budgetID)
	return err
}

type CreateAllocationParams struct {
	BudgetID    int64
	CategoryID  int64
	AmountCents int64
}

func (q *Queries) CreateAllocation(ctx context.Context, arg CreateAllocationParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO budget_allocations (budget_id, category_id, amount_cents) VALUES (?, ?, ?)`,
		arg.BudgetID, arg.CategoryID, arg.AmountCents,
	)
	return mapConstraintErr(err)
}

func (q *Queries) ListAllocations(ctx context.Context, budgetID int64) ([]core.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT budget_id, category_id, amount_cents FROM budget_allocations
		 WHERE budget_id = ? ORDER BY category_id`,
		budgetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Allocation
	for rows.Next() {
		var a core.Allocation
		if err := rows.Scan(&a.BudgetID, &a.CategoryID, &a.Amount.Cents); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
