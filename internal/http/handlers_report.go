package http

import (
	"net/http"

	"tally/internal/core"
)

type categoryAmountResponse struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type monthReportResponse struct {
	Year          int                      `json:"year"`
	Month         int                      `json:"month"`
	ExpensesCents int64                    `json:"expenses_cents"`
	IncomesCents  int64                    `json:"incomes_cents"`
	NetCents      int64                    `json:"net_cents"`
	ByCategory    []categoryAmountResponse `json:"by_category"`
}

func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r)
	year, month := parseYearMonth(r)

	report, err := s.reports.Month(r.Context(), user.ID, year, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := monthReportResponse{
		Year:          report.Year,
		Month:         report.Month,
		ExpensesCents: report.Expenses.Cents,
		IncomesCents:  report.Incomes.Cents,
		NetCents:      report.Net.Cents,
		ByCategory:    make([]categoryAmountResponse, 0, len(report.ByCategory)),
	}
	for _, c := range report.ByCategory {
		resp.ByCategory = append(resp.ByCategory, toCategoryAmount(c))
	}
	respondJSON(w, http.StatusOK, resp)
}

func toCategoryAmount(c core.CategoryAmount) categoryAmountResponse {
	return categoryAmountResponse{
		CategoryID:  c.CategoryID,
		Name:        c.Name,
		AmountCents: c.Amount.Cents,
		Amount:      c.Amount.String(),
	}
}
