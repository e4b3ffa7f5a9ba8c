package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tevra-automation-go/internal/models"
	"tevra-automation-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// createRuleRequest is the wire form of a new rule. Quantities travel as
// strings to keep decimal precision; the interval is a Go duration string.
type createRuleRequest struct {
	Owner            string `json:"owner"`
	Direction        string `json:"direction"`
	Asset            string `json:"asset"`
	Recipient        string `json:"recipient"`
	Amount           string `json:"amount"`
	Threshold        string `json:"threshold"`
	MaxBalance       string `json:"max_balance,omitempty"`
	ScheduleInterval string `json:"schedule_interval"`
	PriceMin         string `json:"price_min,omitempty"`
	PriceMax         string `json:"price_max,omitempty"`
}

type updateRuleRequest struct {
	Amount           *string `json:"amount,omitempty"`
	Threshold        *string `json:"threshold,omitempty"`
	MaxBalance       *string `json:"max_balance,omitempty"`
	ScheduleInterval *string `json:"schedule_interval,omitempty"`
	PriceMin         *string `json:"price_min,omitempty"`
	PriceMax         *string `json:"price_max,omitempty"`
	Recipient        *string `json:"recipient,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params, err := req.toParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.rules.CreateRule(r.Context(), params)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusUnprocessableEntity, result.Error)
		return
	}
	writeJSON(w, http.StatusCreated, result.Rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	rules, err := s.rules.ListRules(r.Context(), owner)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if rules == nil {
		rules = []models.AutomationRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req updateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params, err := req.toParams()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.rules.UpdateRule(r.Context(), mux.Vars(r)["id"], params)
	if err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusUnprocessableEntity, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result.Rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	result, err := s.rules.DeleteRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusNotFound, result.Error)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseRule(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.rules.PauseRule)
}

func (s *Server) handleReactivateRule(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.rules.ReactivateRule)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) (*models.RuleResult, error)) {
	result, err := apply(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusConflict, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result.Rule)
}

func (s *Server) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := s.rules.GetExecutionHistory(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if records == nil {
		records = []models.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"healthy": false,
			"error":   err.Error(),
		})
		return
	}

	payload := map[string]any{"healthy": true}
	if s.status != nil {
		payload["engine"] = s.status()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r createRuleRequest) toParams() (store.CreateRuleParams, error) {
	params := store.CreateRuleParams{
		Owner:     r.Owner,
		Direction: models.Direction(r.Direction),
		Asset:     r.Asset,
		Recipient: r.Recipient,
	}

	for _, field := range []struct {
		dst      *decimal.Decimal
		src      string
		name     string
		required bool
	}{
		{&params.Amount, r.Amount, "amount", true},
		{&params.Threshold, r.Threshold, "threshold", true},
		{&params.MaxBalance, r.MaxBalance, "max_balance", false},
		{&params.PriceMin, r.PriceMin, "price_min", false},
		{&params.PriceMax, r.PriceMax, "price_max", false},
	} {
		if field.src == "" {
			if field.required {
				return params, fmt.Errorf("%s is required", field.name)
			}
			continue
		}
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return params, fmt.Errorf("invalid %s: %v", field.name, err)
		}
		*field.dst = d
	}

	if r.ScheduleInterval == "" {
		return params, fmt.Errorf("schedule_interval is required")
	}
	interval, err := time.ParseDuration(r.ScheduleInterval)
	if err != nil {
		return params, fmt.Errorf("invalid schedule_interval: %v", err)
	}
	params.ScheduleInterval = interval

	return params, nil
}

func (r updateRuleRequest) toParams() (store.UpdateRuleParams, error) {
	var params store.UpdateRuleParams

	for _, field := range []struct {
		dst  **decimal.Decimal
		src  *string
		name string
	}{
		{&params.Amount, r.Amount, "amount"},
		{&params.Threshold, r.Threshold, "threshold"},
		{&params.MaxBalance, r.MaxBalance, "max_balance"},
		{&params.PriceMin, r.PriceMin, "price_min"},
		{&params.PriceMax, r.PriceMax, "price_max"},
	} {
		if field.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*field.src)
		if err != nil {
			return params, fmt.Errorf("invalid %s: %v", field.name, err)
		}
		*field.dst = &d
	}

	if r.ScheduleInterval != nil {
		interval, err := time.ParseDuration(*r.ScheduleInterval)
		if err != nil {
			return params, fmt.Errorf("invalid schedule_interval: %v", err)
		}
		params.ScheduleInterval = &interval
	}
	params.Recipient = r.Recipient

	return params, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	zap.L().Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
