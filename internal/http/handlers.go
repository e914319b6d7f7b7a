package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"karmacash/internal/core"
	"karmacash/internal/log"
	"karmacash/internal/services"
)

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	payload, err := decodeRulePayload(r.Body)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}
	rule, err := payload.toRule(uuid.NewString(), budgetID)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}

	if err := s.repo.CreateRule(r.Context(), rule); err != nil {
		s.fail(w, r, "create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(&rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	rules, err := s.repo.ListRules(r.Context(), budgetID)
	if err != nil {
		s.fail(w, r, "list rules", err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, toRuleResponse(&rules[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := s.repo.GetRule(r.Context(), budgetID, ruleID)
	if err != nil {
		s.fail(w, r, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	ruleID := chi.URLParam(r, "ruleID")

	payload, err := decodeRulePayload(r.Body)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}
	rule, err := payload.toRule(ruleID, budgetID)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}

	if err := s.repo.UpdateRule(r.Context(), rule); err != nil {
		s.fail(w, r, "update rule", err)
		return
	}
	updated, err := s.repo.GetRule(r.Context(), budgetID, ruleID)
	if err != nil {
		s.fail(w, r, "reload rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	ruleID := chi.URLParam(r, "ruleID")

	deleted, err := s.repo.DeleteRule(r.Context(), budgetID, ruleID)
	if err != nil {
		s.fail(w, r, "delete rule", err)
		return
	}
	s.invalidateSummaries(budgetID)
	writeJSON(w, http.StatusOK, map[string]int{"instancesDeleted": deleted})
}

type instancesRequest struct {
	Action string `json:"action"`
}

type instancesResponse struct {
	Success             bool   `json:"success"`
	Deleted             int    `json:"deleted"`
	Generated           int    `json:"generated"`
	NextCalculationDate string `json:"nextCalculationDate,omitempty"`
}

func (s *Server) handleRuleInstances(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	ruleID := chi.URLParam(r, "ruleID")

	var req instancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, KindInvalidArgument, "malformed JSON body")
		return
	}

	result, err := s.expander.Expand(r.Context(), budgetID, ruleID, s.today(r), services.ExpandMode(req.Action))
	if err != nil {
		s.fail(w, r, "expand rule", err)
		return
	}
	s.invalidateSummaries(budgetID)

	resp := instancesResponse{Success: true, Deleted: result.Deleted, Generated: result.Generated}
	if !result.NextDate.IsZero() {
		resp.NextCalculationDate = result.NextDate.Format(dateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExpandAll(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")

	result, err := s.expander.ExpandAll(r.Context(), budgetID, s.today(r))
	if err != nil {
		s.fail(w, r, "expand budget", err)
		return
	}
	s.invalidateSummaries(budgetID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	month := chi.URLParam(r, "month")

	key, err := core.ParseMonthKey(month)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}

	cacheKey := summaryCacheKey(budgetID, key.String())
	if cached, ok := s.summaryCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	summary, err := s.repo.GetMonthlySummary(r.Context(), budgetID, key)
	if err != nil {
		s.fail(w, r, "get summary", err)
		return
	}
	resp := toSummaryResponse(summary)
	s.summaryCache.Set(cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

type recalculateResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Summary summaryResponse `json:"summary"`
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	month := chi.URLParam(r, "month")

	summary, err := s.recalculator.Recalculate(r.Context(), budgetID, month)
	if err != nil {
		s.fail(w, r, "recalculate month", err)
		return
	}
	s.invalidateSummaries(budgetID)
	writeJSON(w, http.StatusOK, recalculateResponse{
		Success: true,
		Message: "month " + summary.Month.String() + " recalculated",
		Summary: toSummaryResponse(summary),
	})
}

type allocationsRequest struct {
	Allocations map[string]decimal.Decimal `json:"allocations"`
}

func (s *Server) handleSetAllocations(w http.ResponseWriter, r *http.Request) {
	budgetID := chi.URLParam(r, "budgetID")
	month := chi.URLParam(r, "month")

	key, err := core.ParseMonthKey(month)
	if err != nil {
		writeError(w, KindInvalidArgument, err.Error())
		return
	}

	var req allocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, KindInvalidArgument, "malformed JSON body")
		return
	}

	if err := s.repo.SetAllocations(r.Context(), budgetID, key, req.Allocations); err != nil {
		s.fail(w, r, "set allocations", err)
		return
	}

	// Allocation changes shift the derived block, so recompute right away.
	summary, err := s.recalculator.Recalculate(r.Context(), budgetID, key.String())
	if err != nil {
		s.fail(w, r, "recalculate month", err)
		return
	}
	s.invalidateSummaries(budgetID)
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// today resolves the reference date for expansion. An asOf query parameter
// pins it for backfills and reproducible runs.
func (s *Server) today(r *http.Request) time.Time {
	if v := r.URL.Query().Get("asOf"); v != "" {
		if t, err := time.Parse(dateLayout, v); err == nil {
			return t
		}
	}
	return core.StartOfDay(time.Now().UTC())
}

func summaryCacheKey(budgetID, month string) string {
	return "summary:" + budgetID + ":" + month
}

func (s *Server) invalidateSummaries(budgetID string) {
	s.summaryCache.DeletePrefix("summary:" + budgetID + ":")
}

// fail logs the error with request context and writes the mapped envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := kindForError(err)
	if kind == KindInternal {
		s.logger.ErrorContext(r.Context(), "request failed",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldError, err,
		)
		writeError(w, kind, "internal error")
		return
	}
	writeError(w, kind, err.Error())
}
