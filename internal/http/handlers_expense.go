package http

import (
	"net/http"

	"tally/internal/core"
)

type expenseRequest struct {
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	CategoryID    int64  `json:"category_id"`
	SubcategoryID int64  `json:"subcategory_id,omitempty"`
}

type expenseResponse struct {
	ID            int64  `json:"id"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount"`
	CategoryID    int64  `json:"category_id"`
	SubcategoryID int64  `json:"subcategory_id,omitempty"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:            e.ID,
		Date:          e.Date.String(),
		Description:   e.Description,
		AmountCents:   e.Amount.Cents,
		Amount:        e.Amount.String(),
		CategoryID:    e.CategoryID,
		SubcategoryID: e.SubcategoryID,
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	year, month := parseYearMonth(r)

	items, err := s.expenses.ListExpenses(r.Context(), user.ID, year, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]expenseResponse, 0, len(items))
	for _, e := range items {
		out = append(out, toExpenseResponse(e))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error())
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error())
		return
	}

	saved, err := s.expenses.CreateExpense(r.Context(), core.Expense{
		UserID:        user.ID,
		Date:          date,
		Description:   sanitizeInput(req.Description),
		Amount:        core.Money{Cents: cents},
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseResponse(saved))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.expenses.GetExpense(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
