package services

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/cache"
	"tally/internal/core"
)

// ReportService builds the monthly expense/income overview. Results are
// cached per user and month; writes invalidate the affected entry.
type ReportService struct {
	store ReportStore
	cache cache.Cache[core.MonthReport]

	mu sync.Mutex
	// gen bumps per user on whole-user invalidation; stale generation keys
	// age out of the cache by TTL.
	gen map[int64]uint64
}

func NewReportService(store ReportStore, c cache.Cache[core.MonthReport]) *ReportService {
	return &ReportService{
		store: store,
		cache: c,
		gen:   make(map[int64]uint64),
	}
}

// Month returns the report for one calendar month.
func (s *ReportService) Month(ctx context.Context, userID int64, year, month int) (core.MonthReport, error) {
	key := s.key(userID, year, month)
	if s.cache != nil {
		if report, ok := s.cache.Get(key); ok {
			return report, nil
		}
	}

	byCategory, err := s.store.MonthCategorySums(ctx, userID, year, month)
	if err != nil {
		return core.MonthReport{}, fmt.Errorf("month category sums: %w", err)
	}
	incomes, err := s.store.SumIncomes(ctx, userID, year, month)
	if err != nil {
		return core.MonthReport{}, fmt.Errorf("sum incomes: %w", err)
	}

	var expenses int64
	for _, c := range byCategory {
		expenses += c.Amount.Cents
	}

	report := core.MonthReport{
		Year:       year,
		Month:      month,
		Expenses:   core.Money{Cents: expenses},
		Incomes:    core.Money{Cents: incomes},
		Net:        core.Money{Cents: incomes - expenses},
		ByCategory: byCategory,
	}
	if s.cache != nil {
		s.cache.Set(key, report)
	}
	return report, nil
}

// Invalidate drops the cached report for one user month.
func (s *ReportService) Invalidate(userID int64, year, month int) {
	if s.cache == nil {
		return
	}
	s.cache.Delete(s.key(userID, year, month))
}

// InvalidateUser drops every cached report for a user.
func (s *ReportService) InvalidateUser(userID int64) {
	s.mu.Lock()
	s.gen[userID]++
	s.mu.Unlock()
}

func (s *ReportService) key(userID int64, year, month int) string {
	s.mu.Lock()
	g := s.gen[userID]
	s.mu.Unlock()
	return fmt.Sprintf("report:%d:%d:%d-%02d", userID, g, year, month)
}
