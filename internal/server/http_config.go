package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// setConfigRequest is the JSON body for PUT /v1/configs/{key}.
type setConfigRequest struct {
	Value json.RawMessage `json:"value"`
}

// validateConfig rejects values the engine could not use. Keys in the
// throttle namespace must hold a valid throttle policy, and the builtin
// default is read-only because it comes from server configuration.
func validateConfig(key string, value json.RawMessage) error {
	if key == "" {
		return &model.ParameterError{Name: "key", Reason: "is required"}
	}
	if !json.Valid(value) {
		return &model.ParameterError{Name: "value", Reason: "must be valid JSON"}
	}
	if !strings.HasPrefix(key, model.ThrottleConfigKey("")) {
		return nil
	}
	if key == defaultThrottleKey {
		return &model.ParameterError{Name: "key", Reason: key + " is set by BUDGETS_THROTTLE_CUT_BPS"}
	}
	_, err := budget.ParseThrottleConfig(value)
	return err
}

// handleSetConfig handles PUT /v1/configs/{key}.
func (s *BudgetServer) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req setConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateConfig(key, req.Value); err != nil {
		writeServiceError(w, r, err)
		return
	}

	cfg := &model.Config{Key: key, Value: req.Value}
	if err := s.store.SetConfig(r.Context(), cfg); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleGetConfig handles GET /v1/configs/{key}. Builtin values are
// served for keys with nothing stored.
func (s *BudgetServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg, err := s.store.GetConfig(r.Context(), key)
	if errors.Is(err, sql.ErrNoRows) {
		builtin, ok := s.builtinConfigs()[key]
		if !ok {
			writeServiceError(w, r, &model.NotFoundError{Entity: "config", ID: key})
			return
		}
		cfg, err = builtin, nil
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleListConfigs handles GET /v1/configs?namespace=...
func (s *BudgetServer) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		writeError(w, http.StatusBadRequest, "namespace query parameter is required")
		return
	}

	configs, err := s.listConfigsWithBuiltins(r.Context(), namespace)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if configs == nil {
		configs = []*model.Config{}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Key < configs[j].Key })
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

// handleDeleteConfig handles DELETE /v1/configs/{key}. Deleting a segment's
// throttle config reverts it to the default policy.
func (s *BudgetServer) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	err := s.store.DeleteConfig(r.Context(), key)
	if errors.Is(err, sql.ErrNoRows) {
		err = &model.NotFoundError{Entity: "config", ID: key}
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
