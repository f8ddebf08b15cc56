package http

import (
	"net/http"

	"tally/internal/core"
)

type budgetRequest struct {
	Name   string `json:"name"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Target string `json:"target"`
}

type budgetResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Start       string `json:"start"`
	End         string `json:"end"`
	TargetCents int64  `json:"target_cents"`
	Target      string `json:"target"`
}

type allocationRequest struct {
	CategoryID int64  `json:"category_id"`
	Amount     string `json:"amount"`
}

type allocationsRequest struct {
	Allocations []allocationRequest `json:"allocations"`
}

type allocationResponse struct {
	CategoryID  int64  `json:"category_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type performanceRowResponse struct {
	CategoryID     int64  `json:"category_id,omitempty"`
	Name           string `json:"name"`
	AllocatedCents int64  `json:"allocated_cents"`
	SpentCents     int64  `json:"spent_cents"`
	RemainingCents int64  `json:"remaining_cents"`
}

type performanceResponse struct {
	Budget              budgetResponse           `json:"budget"`
	Categories          []performanceRowResponse `json:"categories"`
	TotalAllocatedCents int64                    `json:"total_allocated_cents"`
	TotalSpentCents     int64                    `json:"total_spent_cents"`
	TotalRemainingCents int64                    `json:"total_remaining_cents"`
}

func toBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:          b.ID,
		Name:        b.Name,
		Start:       b.Start.String(),
		End:         b.End.String(),
		TargetCents: b.Target.Cents,
		Target:      b.Target.String(),
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	budgets, err := s.budgets.ListBudgets(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, err := core.ParseDate(req.Start)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid start date")
		return
	}
	end, err := core.ParseDate(req.End)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid end date")
		return
	}
	target, err := core.ParseDecimalToCents(req.Target)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error())
		return
	}

	saved, err := s.budgets.CreateBudget(r.Context(), core.Budget{
		UserID: user.ID,
		Name:   sanitizeInput(req.Name),
		Start:  start,
		End:    end,
		Target: core.Money{Cents: target},
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toBudgetResponse(saved))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.budgets.GetBudget(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toBudgetResponse(b))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.budgets.DeleteBudget(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceAllocations(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	budgetID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req allocationsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	allocs := make([]core.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		cents, err := core.ParseDecimalToCents(a.Amount)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error())
			return
		}
		allocs = append(allocs, core.Allocation{
			BudgetID:   budgetID,
			CategoryID: a.CategoryID,
			Amount:     core.Money{Cents: cents},
		})
	}

	if err := s.budgets.ReplaceAllocations(r.Context(), user.ID, budgetID, allocs); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	budgetID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	allocs, err := s.budgets.ListAllocations(r.Context(), user.ID, budgetID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]allocationResponse, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, allocationResponse{
			CategoryID:  a.CategoryID,
			AmountCents: a.Amount.Cents,
			Amount:      a.Amount.String(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleBudgetPerformance(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	budgetID, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	perf, err := s.budgets.Performance(r.Context(), user.ID, budgetID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := performanceResponse{
		Budget:              toBudgetResponse(perf.Budget),
		Categories:          make([]performanceRowResponse, 0, len(perf.Categories)),
		TotalAllocatedCents: perf.TotalAllocated.Cents,
		TotalSpentCents:     perf.TotalSpent.Cents,
		TotalRemainingCents: perf.TotalRemaining.Cents,
	}
	for _, row := range perf.Categories {
		resp.Categories = append(resp.Categories, performanceRowResponse{
			CategoryID:     row.CategoryID,
			Name:           row.Name,
			AllocatedCents: row.Allocated.Cents,
			SpentCents:     row.Spent.Cents,
			RemainingCents: row.Remaining.Cents,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
