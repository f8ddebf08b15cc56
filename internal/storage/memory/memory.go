// Package memory implements the full repository surface in process memory.
// It backs DATA_BACKEND=memory and the service tests; behavior mirrors the
// SQLite repository including sentinel errors and ownership scoping.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

type session struct {
	userID    int64
	expiresAt time.Time
}

type Store struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]core.User
	sessions map[string]session
	cats     map[int64]core.Category
	subs     map[int64]core.Subcategory
	expenses map[int64]core.Expense
	deleted  map[int64]bool // soft-deleted expense IDs
	incomes  map[int64]core.Income
	budgets  map[int64]core.Budget
	allocs   map[int64][]core.Allocation // by budget ID
}

func New() *Store {
	return &Store{
		users:    make(map[int64]core.User),
		sessions: make(map[string]session),
		cats:     make(map[int64]core.Category),
		subs:     make(map[int64]core.Subcategory),
		expenses: make(map[int64]core.Expense),
		deleted:  make(map[int64]bool),
		incomes:  make(map[int64]core.Income),
		budgets:  make(map[int64]core.Budget),
		allocs:   make(map[int64][]core.Allocation),
	}
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, email, passwordHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return core.User{}, storage.ErrDuplicate
		}
	}
	u := core.User{ID: s.id(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

// --- sessions ---

func (s *Store) CreateSession(_ context.Context, token string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[token]; exists {
		return storage.ErrDuplicate
	}
	s.sessions[token] = session{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return 0, time.Time{}, storage.ErrNotFound
	}
	return sess.userID, sess.expiresAt, nil
}

func (s *Store) TouchSession(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	sess.expiresAt = expiresAt
	s.sessions[token] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, sess := range s.sessions {
		if !sess.expiresAt.After(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, userID int64, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.UserID == userID && strings.EqualFold(c.Name, name) {
			return core.Category{}, storage.ErrDuplicate
		}
	}
	c := core.Category{ID: s.id(), UserID: userID, Name: name}
	s.cats[c.ID] = c
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.cats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCategoryLocked(userID, id)
}

func (s *Store) getCategoryLocked(userID, id int64) (core.Category, error) {
	c, ok := s.cats[id]
	if !ok || c.UserID != userID {
		return core.Category{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCategoryLocked(userID, id); err != nil {
		return err
	}
	for eid, e := range s.expenses {
		if e.CategoryID == id && !s.deleted[eid] {
			return storage.ErrInUse
		}
	}
	for _, in := range s.incomes {
		if in.CategoryID == id {
			return storage.ErrInUse
		}
	}
	for sid, sub := range s.subs {
		if sub.CategoryID == id {
			delete(s.subs, sid)
		}
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) CreateSubcategory(_ context.Context, userID, categoryID int64, name string) (core.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCategoryLocked(userID, categoryID); err != nil {
		return core.Subcategory{}, err
	}
	for _, sub := range s.subs {
		if sub.CategoryID == categoryID && strings.EqualFold(sub.Name, name) {
			return core.Subcategory{}, storage.ErrDuplicate
		}
	}
	sub := core.Subcategory{ID: s.id(), CategoryID: categoryID, Name: name}
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *Store) ListSubcategories(_ context.Context, userID, categoryID int64) ([]core.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCategoryLocked(userID, categoryID); err != nil {
		return nil, err
	}
	var out []core.Subcategory
	for _, sub := range s.subs {
		if sub.CategoryID == categoryID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetSubcategory(_ context.Context, userID, id int64) (core.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return core.Subcategory{}, storage.ErrNotFound
	}
	if _, err := s.getCategoryLocked(userID, sub.CategoryID); err != nil {
		return core.Subcategory{}, storage.ErrNotFound
	}
	return sub, nil
}

func (s *Store) DeleteSubcategory(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if _, err := s.getCategoryLocked(userID, sub.CategoryID); err != nil {
		return storage.ErrNotFound
	}
	for eid, e := range s.expenses {
		if e.SubcategoryID == id && !s.deleted[eid] {
			return storage.ErrInUse
		}
	}
	delete(s.subs, id)
	return nil
}

// --- expenses ---

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCategoryLocked(e.UserID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}
	if e.SubcategoryID != 0 {
		sub, ok := s.subs[e.SubcategoryID]
		if !ok || sub.CategoryID != e.CategoryID {
			return core.Expense{}, storage.ErrNotFound
		}
	}
	e.ID = s.id()
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, userID, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID || s.deleted[id] {
		return core.Expense{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, userID int64, year, month int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for id, e := range s.expenses {
		if e.UserID == userID && !s.deleted[id] && e.Date.Year() == year && e.Date.Month() == month {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID || s.deleted[id] {
		return storage.ErrNotFound
	}
	s.deleted[id] = true
	return nil
}

func (s *Store) SumExpensesByCategory(_ context.Context, userID int64, start, end core.Date) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumExpensesLocked(userID, start, end), nil
}

func (s *Store) sumExpensesLocked(userID int64, start, end core.Date) map[int64]int64 {
	sums := make(map[int64]int64)
	for id, e := range s.expenses {
		if e.UserID != userID || s.deleted[id] {
			continue
		}
		if e.Date.Before(start.Time) || e.Date.After(end.Time) {
			continue
		}
		sums[e.CategoryID] += e.Amount.Cents
	}
	return sums
}

func (s *Store) MonthCategorySums(_ context.Context, userID int64, year, month int) ([]core.CategoryAmount, error) {
	start := core.NewDate(year, month, 1)
	end := core.NewDate(year, month+1, 0) // day 0 normalizes to the last day

	s.mu.Lock()
	defer s.mu.Unlock()
	sums := s.sumExpensesLocked(userID, start, end)
	out := make([]core.CategoryAmount, 0, len(sums))
	for catID, cents := range sums {
		out = append(out, core.CategoryAmount{
			CategoryID: catID,
			Name:       s.cats[catID].Name,
			Amount:     core.Money{Cents: cents},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- incomes ---

func (s *Store) CreateIncome(_ context.Context, in core.Income) (core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCategoryLocked(in.UserID, in.CategoryID); err != nil {
		return core.Income{}, err
	}
	in.ID = s.id()
	s.incomes[in.ID] = in
	return in, nil
}

func (s *Store) ListIncomes(_ context.Context, userID int64, year, month int) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Income
	for _, in := range s.incomes {
		if in.UserID == userID && in.Date.Year() == year && in.Date.Month() == month {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteIncome(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.incomes[id]
	if !ok || in.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.incomes, id)
	return nil
}

func (s *Store) SumIncomes(_ context.Context, userID int64, year, month int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, in := range s.incomes {
		if in.UserID == userID && in.Date.Year() == year && in.Date.Month() == month {
			total += in.Amount.Cents
		}
	}
	return total, nil
}

// --- budgets ---

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) GetBudget(_ context.Context, userID, id int64) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBudgetLocked(userID, id)
}

func (s *Store) getBudgetLocked(userID, id int64) (core.Budget, error) {
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return core.Budget{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start.Time) {
			return out[i].Start.After(out[j].Start.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteBudget(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getBudgetLocked(userID, id); err != nil {
		return err
	}
	delete(s.budgets, id)
	delete(s.allocs, id)
	return nil
}

func (s *Store) ReplaceAllocations(_ context.Context, userID, budgetID int64, allocs []core.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getBudgetLocked(userID, budgetID); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(allocs))
	for _, a := range allocs {
		if _, err := s.getCategoryLocked(userID, a.CategoryID); err != nil {
			return err
		}
		if seen[a.CategoryID] {
			return storage.ErrDuplicate
		}
		seen[a.CategoryID] = true
	}
	replaced := make([]core.Allocation, len(allocs))
	for i, a := range allocs {
		a.BudgetID = budgetID
		replaced[i] = a
	}
	s.allocs[budgetID] = replaced
	return nil
}

func (s *Store) ListAllocations(_ context.Context, userID, budgetID int64) ([]core.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getBudgetLocked(userID, budgetID); err != nil {
		return nil, err
	}
	out := append([]core.Allocation(nil), s.allocs[budgetID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}
