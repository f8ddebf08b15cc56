// Package worker mirrors recorded expenses to the export spreadsheet. It
// consumes broker messages for live traffic and periodically reconciles rows
// the broker path missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/storage"
)

// Store is the storage surface the worker needs: expense lookup regardless
// of owner, name resolution and export bookkeeping.
type Store interface {
	GetExpenseForExport(ctx context.Context, id int64) (core.Expense, bool, error)
	GetCategory(ctx context.Context, userID, id int64) (core.Category, error)
	GetSubcategory(ctx context.Context, userID, id int64) (core.Subcategory, error)
	GetPendingExportExpenses(ctx context.Context, limit int) ([]storage.PendingExportExpense, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64, cause error) error
}

// Config tunes the reconcile loop.
type Config struct {
	// Interval is how often to sweep for unexported expenses.
	Interval time.Duration

	// BatchSize is the max number of expenses per sweep.
	BatchSize int

	// MaxAttempts is the attempt count after which an expense is left for
	// manual inspection instead of being retried.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		BatchSize:   25,
		MaxAttempts: 3,
	}
}

type Worker struct {
	store   Store
	writer  export.RowWriter
	deleter export.RowDeleter
	config  Config
}

func New(store Store, writer export.RowWriter, deleter export.RowDeleter, config Config) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Worker{store: store, writer: writer, deleter: deleter, config: config}
}

// Handle processes one broker message. Returning an error makes the consumer
// nack the delivery for redelivery.
func (w *Worker) Handle(ctx context.Context, env amqp.Envelope) error {
	switch env.Type {
	case amqp.TypeExpenseRecorded:
		msg, err := amqp.DecodeExpenseRecorded(env)
		if err != nil {
			return fmt.Errorf("decode recorded message: %w", err)
		}
		return w.exportExpense(ctx, msg.ID)
	case amqp.TypeExpenseDeleted:
		msg, err := amqp.DecodeExpenseDeleted(env)
		if err != nil {
			return fmt.Errorf("decode deleted message: %w", err)
		}
		return w.deleteRow(ctx, msg.ID)
	default:
		slog.WarnContext(ctx, "Dropping message of unknown type", "type", env.Type)
		return nil
	}
}

func (w *Worker) exportExpense(ctx context.Context, id int64) error {
	e, deleted, err := w.store.GetExpenseForExport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Expense vanished before export, dropping", "expense_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense %d: %w", id, err)
	}
	if deleted {
		// The delete message owns the sheet row; nothing to append.
		slog.InfoContext(ctx, "Expense deleted before export, skipping", "expense_id", id)
		return w.store.MarkExported(ctx, id)
	}

	row, err := w.buildRow(ctx, e)
	if err != nil {
		return err
	}
	if err := w.writer.AppendRow(ctx, row); err != nil {
		if markErr := w.store.MarkExportError(ctx, id, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record export error",
				"expense_id", id, "error", markErr)
		}
		return fmt.Errorf("append expense %d: %w", id, err)
	}

	if err := w.store.MarkExported(ctx, id); err != nil {
		// The row landed; bookkeeping failure must not trigger a duplicate append.
		slog.ErrorContext(ctx, "Failed to mark expense exported",
			"expense_id", id, "error", err)
	}
	slog.InfoContext(ctx, "Expense exported", "expense_id", id)
	return nil
}

func (w *Worker) deleteRow(ctx context.Context, id int64) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No deleter configured, skipping row delete", "expense_id", id)
		return nil
	}
	if err := w.deleter.DeleteRow(ctx, id); err != nil {
		return fmt.Errorf("delete row for expense %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Exported row deleted", "expense_id", id)
	return nil
}

func (w *Worker) buildRow(ctx context.Context, e core.Expense) (export.Row, error) {
	row := export.Row{
		ExpenseID:   e.ID,
		Date:        e.Date.String(),
		Description: e.Description,
		Amount:      e.Amount.Units(),
	}
	cat, err := w.store.GetCategory(ctx, e.UserID, e.CategoryID)
	if err != nil {
		return export.Row{}, fmt.Errorf("resolve category %d: %w", e.CategoryID, err)
	}
	row.Category = cat.Name
	if e.SubcategoryID != 0 {
		sub, err := w.store.GetSubcategory(ctx, e.UserID, e.SubcategoryID)
		if err != nil {
			return export.Row{}, fmt.Errorf("resolve subcategory %d: %w", e.SubcategoryID, err)
		}
		row.Subcategory = sub.Name
	}
	return row, nil
}

// Reconcile sweeps one batch of unexported expenses. It returns how many
// were exported in this pass.
func (w *Worker) Reconcile(ctx context.Context) (int, error) {
	pending, err := w.store.GetPendingExportExpenses(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}

	exported := 0
	for _, p := range pending {
		if p.Attempts >= int64(w.config.MaxAttempts) {
			slog.WarnContext(ctx, "Expense exceeded export attempts, leaving for inspection",
				"expense_id", p.ID, "attempts", p.Attempts)
			continue
		}
		if err := w.exportExpense(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Reconcile export failed",
				"expense_id", p.ID, "error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

// ReconcileLoop runs Reconcile on the configured interval until the context
// ends. A sweep runs immediately on startup to drain anything left behind by
// a previous crash.
func (w *Worker) ReconcileLoop(ctx context.Context) error {
	if n, err := w.Reconcile(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconcile failed", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Startup reconcile exported expenses", "count", n)
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.Reconcile(ctx); err != nil {
				slog.ErrorContext(ctx, "Reconcile failed", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "Reconcile exported expenses", "count", n)
			}
		}
	}
}
