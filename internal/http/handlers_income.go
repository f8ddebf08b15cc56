package http

import (
	"net/http"

	"tally/internal/core"
)

type incomeRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	CategoryID  int64  `json:"category_id"`
}

type incomeResponse struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	CategoryID  int64  `json:"category_id"`
}

func toIncomeResponse(in core.Income) incomeResponse {
	return incomeResponse{
		ID:          in.ID,
		Date:        in.Date.String(),
		Description: in.Description,
		AmountCents: in.Amount.Cents,
		Amount:      in.Amount.String(),
		CategoryID:  in.CategoryID,
	}
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	year, month := parseYearMonth(r)

	items, err := s.incomes.ListIncomes(r.Context(), user.ID, year, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]incomeResponse, 0, len(items))
	for _, in := range items {
		out = append(out, toIncomeResponse(in))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	var req incomeRequest
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

	saved, err := s.incomes.CreateIncome(r.Context(), core.Income{
		UserID:      user.ID,
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toIncomeResponse(saved))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.incomes.DeleteIncome(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
