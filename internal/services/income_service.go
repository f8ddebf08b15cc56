package services

import (
	"context"
	"fmt"

	"tally/internal/core"
)

// IncomeService orchestrates income operations. Incomes stay local; they are
// not mirrored to the export sheet.
type IncomeService struct {
	store   IncomeStore
	reports *ReportService
}

func NewIncomeService(store IncomeStore, reports *ReportService) *IncomeService {
	return &IncomeService{store: store, reports: reports}
}

func (s *IncomeService) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	saved, err := s.store.CreateIncome(ctx, in)
	if err != nil {
		return core.Income{}, fmt.Errorf("save income: %w", err)
	}
	s.invalidateReport(saved.UserID, saved.Date)
	return saved, nil
}

func (s *IncomeService) ListIncomes(ctx context.Context, userID int64, year, month int) ([]core.Income, error) {
	return s.store.ListIncomes(ctx, userID, year, month)
}

func (s *IncomeService) DeleteIncome(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteIncome(ctx, userID, id); err != nil {
		return err
	}
	if s.reports != nil {
		s.reports.InvalidateUser(userID)
	}
	return nil
}

func (s *IncomeService) invalidateReport(userID int64, date core.Date) {
	if s.reports != nil {
		s.reports.Invalidate(userID, date.Year(), date.Month())
	}
}
