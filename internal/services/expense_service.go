package services

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/core"
)

// ExpenseService orchestrates expense operations across the store and AMQP.
type ExpenseService struct {
	store     ExpenseStore
	publisher Publisher
	reports   *ReportService
}

// NewExpenseService creates the service. publisher may be nil when no broker
// is configured; reports may be nil when report caching is disabled.
func NewExpenseService(store ExpenseStore, publisher Publisher, reports *ReportService) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		reports:   reports,
	}
}

// CreateExpense saves an expense locally and publishes an export message.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.invalidateReport(saved.UserID, saved.Date)

	// Non-blocking: the expense is saved locally even if publishing fails.
	if err := s.publishRecorded(ctx, saved.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"expense_id", saved.ID, "error", err)
	}

	return saved, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, userID, year, month)
}

// DeleteExpense soft deletes an expense locally and publishes a delete message.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id int64) error {
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.invalidateReport(userID, e.Date)

	if err := s.publishDeleted(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"expense_id", id, "error", err)
	}
	return nil
}

func (s *ExpenseService) invalidateReport(userID int64, date core.Date) {
	if s.reports != nil {
		s.reports.Invalidate(userID, date.Year(), date.Month())
	}
}

func (s *ExpenseService) publishRecorded(ctx context.Context, id int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping export message")
		return nil
	}
	return s.publisher.PublishExpenseRecorded(ctx, id)
}

func (s *ExpenseService) publishDeleted(ctx context.Context, id int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping delete message")
		return nil
	}
	return s.publisher.PublishExpenseDeleted(ctx, id)
}
