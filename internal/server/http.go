package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *BudgetServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", serve(http.StatusOK, s.health, nil))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/cycles", serve(http.StatusCreated, s.createCycle, nil))
	mux.HandleFunc("GET /v1/cycles", serve(http.StatusOK, s.listCycles, bindListCycles))
	mux.HandleFunc("GET /v1/cycles/current", serve(http.StatusOK, s.currentCycle, nil))
	mux.HandleFunc("GET /v1/cycles/{id}", serve(http.StatusOK, s.getCycle, bindID))
	mux.HandleFunc("POST /v1/cycles/{id}/transition", serve(http.StatusOK, s.transitionCycle, bindTransition))
	mux.HandleFunc("PATCH /v1/cycles/{id}/limits", serve(http.StatusOK, s.updateCycleLimits, bindCycleLimits))
	mux.HandleFunc("POST /v1/cycles/{id}/refresh", serve(http.StatusOK, s.refreshSpend, bindRefresh))
	mux.HandleFunc("GET /v1/cycles/{id}/segments", serve(http.StatusOK, s.listSegmentCycles, bindID))
	mux.HandleFunc("POST /v1/cycles/{id}/segments", serve(http.StatusCreated, s.openSegmentCycles, bindOpenSegmentCycles))
	mux.HandleFunc("POST /v1/cycles/{id}/simulate", serve(http.StatusOK, s.simulate, bindSimulateCycle))

	mux.HandleFunc("POST /v1/segments", serve(http.StatusCreated, s.createSegment, nil))
	mux.HandleFunc("GET /v1/segments", serve(http.StatusOK, s.listSegments, bindListSegments))
	mux.HandleFunc("GET /v1/segments/{id}", serve(http.StatusOK, s.getSegment, bindID))
	mux.HandleFunc("PATCH /v1/segments/{id}", serve(http.StatusOK, s.updateSegment, bindUpdateSegment))
	mux.HandleFunc("DELETE /v1/segments/{id}", serve(http.StatusOK, s.deleteSegment, bindDeleteSegment))
	mux.HandleFunc("GET /v1/segments/{id}/throttle", serve(http.StatusOK, s.getThrottleConfig, bindID))
	mux.HandleFunc("PUT /v1/segments/{id}/throttle", serve(http.StatusOK, s.setThrottleConfig, bindThrottle))

	mux.HandleFunc("GET /v1/segment-cycles/{id}", serve(http.StatusOK, s.getSegmentCycle, bindID))
	mux.HandleFunc("POST /v1/segment-cycles/{id}/transition", serve(http.StatusOK, s.transitionSegmentCycle, bindTransition))
	mux.HandleFunc("POST /v1/segment-cycles/{id}/authorize", serve(http.StatusOK, s.authorizePayout, bindAuthorize))

	mux.HandleFunc("POST /v1/simulate", serve(http.StatusOK, s.simulate, nil))
	mux.HandleFunc("POST /v1/funnel", serve(http.StatusOK, s.projectFunnel, nil))

	mux.HandleFunc("GET /v1/events", serve(http.StatusOK, s.listEvents, bindListEvents))
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("POST /v1/events/rollback", serve(http.StatusOK, s.rollback, nil))

	mux.HandleFunc("PUT /v1/configs/{key...}", s.handleSetConfig)
	mux.HandleFunc("GET /v1/configs/{key...}", s.handleGetConfig)
	mux.HandleFunc("GET /v1/configs", s.handleListConfigs)
	mux.HandleFunc("DELETE /v1/configs/{key...}", s.handleDeleteConfig)
	return MetricsMiddleware(AuthMiddleware(authToken, mux))
}

// serve adapts an operation to an HTTP handler. The JSON body (if any) is
// decoded first, then bind copies path and query values over it.
func serve[Req any](code int, op func(context.Context, *Req) (any, error), bind func(*http.Request, *Req) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if bind != nil {
			if err := bind(r, &req); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		resp, err := op(r.Context(), &req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, code, resp)
	}
}

// decodeBody decodes a JSON request body. GET requests and empty bodies
// are accepted as-is.
func decodeBody(r *http.Request, v any) error {
	if r.Method == http.MethodGet || r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func bindID(r *http.Request, req *idRequest) error {
	req.ID = r.PathValue("id")
	return nil
}

func bindListCycles(r *http.Request, req *listCyclesRequest) error {
	n, err := queryInt(r, "limit")
	req.Limit = n
	return err
}

func bindTransition(r *http.Request, req *transitionRequest) error {
	req.ID = r.PathValue("id")
	return nil
}

func bindCycleLimits(r *http.Request, req *cycleLimitsRequest) error {
	req.ID = r.PathValue("id")
	return nil
}

func bindRefresh(r *http.Request, req *refreshRequest) error {
	req.ID = r.PathValue("id")
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return &model.ParameterError{Name: "as_of", Reason: "must be an RFC 3339 timestamp"}
		}
		req.AsOf = &t
	}
	return nil
}

func bindOpenSegmentCycles(r *http.Request, req *openSegmentCyclesRequest) error {
	req.CycleID = r.PathValue("id")
	return nil
}

func bindSimulateCycle(r *http.Request, req *simulateRequest) error {
	req.CycleID = r.PathValue("id")
	return nil
}

func bindListSegments(r *http.Request, req *listSegmentsRequest) error {
	if v := r.URL.Query().Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &model.ParameterError{Name: "include_deleted", Reason: "must be a boolean"}
		}
		req.IncludeDeleted = b
	}
	return nil
}

func bindUpdateSegment(r *http.Request, req *updateSegmentRequest) error {
	req.ID = r.PathValue("id")
	return nil
}

func bindDeleteSegment(r *http.Request, req *deleteSegmentRequest) error {
	req.ID = r.PathValue("id")
	q := r.URL.Query()
	if v := q.Get("actor"); v != "" {
		req.Actor = v
	}
	if v := q.Get("notes"); v != "" {
		req.Notes = v
	}
	return nil
}

func bindThrottle(r *http.Request, req *throttleRequest) error {
	req.SegmentID = r.PathValue("id")
	return nil
}

func bindAuthorize(r *http.Request, req *authorizeRequest) error {
	req.ID = r.PathValue("id")
	return nil
}

// bindListEvents handles GET /v1/events?cycle_id=&entity_id=&action=a,b&since=&limit=&rollback_token=&reverts_event_id=
func bindListEvents(r *http.Request, req *listEventsRequest) error {
	q := r.URL.Query()
	req.CycleID = q.Get("cycle_id")
	req.EntityID = q.Get("entity_id")
	req.RollbackToken = q.Get("rollback_token")
	if v := q.Get("reverts_event_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return &model.ParameterError{Name: "reverts_event_id", Reason: "must be a positive integer"}
		}
		req.RevertsEventID = id
	}
	if v := q.Get("action"); v != "" {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				req.Actions = append(req.Actions, a)
			}
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return &model.ParameterError{Name: "since", Reason: "must be an RFC 3339 timestamp"}
		}
		req.Since = &t
	}
	n, err := queryInt(r, "limit")
	req.Limit = n
	return err
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &model.ParameterError{Name: name, Reason: "must be an integer"}
	}
	return n, nil
}

// writeServiceError writes an engine error with its mapped status code.
// Internal errors are logged and replaced by a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, code, "internal server error")
		return
	}
	writeError(w, code, err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
