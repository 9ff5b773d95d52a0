package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// HTTPClient implements BudgetClient using the budgets HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Cycles ---

func (c *HTTPClient) CreateCycle(ctx context.Context, req *CreateCycleRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.doJSON(ctx, http.MethodPost, "/v1/cycles", req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *HTTPClient) GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.doJSON(ctx, http.MethodGet, "/v1/cycles/"+url.PathEscape(id), nil, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *HTTPClient) CurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.doJSON(ctx, http.MethodGet, "/v1/cycles/current", nil, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *HTTPClient) ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error) {
	path := "/v1/cycles"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp cyclesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cycles, nil
}

func (c *HTTPClient) TransitionCycle(ctx context.Context, req *TransitionRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	path := "/v1/cycles/" + url.PathEscape(req.ID) + "/transition"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *HTTPClient) UpdateCycleLimits(ctx context.Context, req *UpdateLimitsRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	path := "/v1/cycles/" + url.PathEscape(req.ID) + "/limits"
	if err := c.doJSON(ctx, http.MethodPatch, path, req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *HTTPClient) RefreshSpend(ctx context.Context, cycleID string, asOf time.Time) ([]*budget.SegmentCycleView, error) {
	path := "/v1/cycles/" + url.PathEscape(cycleID) + "/refresh"
	if !asOf.IsZero() {
		path += "?as_of=" + url.QueryEscape(asOf.UTC().Format(time.RFC3339))
	}
	var resp segmentCycleViewsResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

// --- Segment cycles ---

func (c *HTTPClient) ListSegmentCycles(ctx context.Context, cycleID string) ([]*budget.SegmentCycleView, error) {
	var resp segmentCycleViewsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/cycles/"+url.PathEscape(cycleID)+"/segments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

func (c *HTTPClient) OpenSegmentCycles(ctx context.Context, req *OpenSegmentCyclesRequest) ([]*model.SegmentCycle, error) {
	var resp segmentCyclesResponse
	path := "/v1/cycles/" + url.PathEscape(req.CycleID) + "/segments"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

func (c *HTTPClient) GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error) {
	var sc model.SegmentCycle
	if err := c.doJSON(ctx, http.MethodGet, "/v1/segment-cycles/"+url.PathEscape(id), nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *HTTPClient) TransitionSegmentCycle(ctx context.Context, req *TransitionRequest) (*model.SegmentCycle, error) {
	var sc model.SegmentCycle
	path := "/v1/segment-cycles/" + url.PathEscape(req.ID) + "/transition"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *HTTPClient) AuthorizePayout(ctx context.Context, segmentCycleID string, amountCents int64) (*budget.PayoutDecision, error) {
	body := map[string]int64{"amount_cents": amountCents}
	var d budget.PayoutDecision
	path := "/v1/segment-cycles/" + url.PathEscape(segmentCycleID) + "/authorize"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Segments ---

func (c *HTTPClient) CreateSegment(ctx context.Context, req *CreateSegmentRequest) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.doJSON(ctx, http.MethodPost, "/v1/segments", req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *HTTPClient) GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.doJSON(ctx, http.MethodGet, "/v1/segments/"+url.PathEscape(id), nil, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *HTTPClient) ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	path := "/v1/segments"
	if includeDeleted {
		path += "?include_deleted=true"
	}
	var resp segmentsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

func (c *HTTPClient) UpdateSegment(ctx context.Context, req *UpdateSegmentRequest) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/segments/"+url.PathEscape(req.ID), req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *HTTPClient) DeleteSegment(ctx context.Context, id, actor, notes string) error {
	q := url.Values{}
	if actor != "" {
		q.Set("actor", actor)
	}
	if notes != "" {
		q.Set("notes", notes)
	}
	path := "/v1/segments/" + url.PathEscape(id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) GetThrottleConfig(ctx context.Context, segmentID string) (*model.Config, error) {
	var cfg model.Config
	if err := c.doJSON(ctx, http.MethodGet, "/v1/segments/"+url.PathEscape(segmentID)+"/throttle", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) SetThrottleConfig(ctx context.Context, segmentID string, tc budget.ThrottleConfig) (*model.Config, error) {
	var cfg model.Config
	if err := c.doJSON(ctx, http.MethodPut, "/v1/segments/"+url.PathEscape(segmentID)+"/throttle", tc, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// --- Forecasting ---

func (c *HTTPClient) Simulate(ctx context.Context, req *SimulateRequest) (*budget.Forecast, error) {
	path := "/v1/simulate"
	if req.CycleID != "" {
		path = "/v1/cycles/" + url.PathEscape(req.CycleID) + "/simulate"
	}
	var fc budget.Forecast
	if err := c.doJSON(ctx, http.MethodPost, path, req, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (c *HTTPClient) ProjectFunnel(ctx context.Context, req *FunnelRequest) ([]*funnel.Projection, error) {
	var resp projectionsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/funnel", req, &resp); err != nil {
		return nil, err
	}
	return resp.Projections, nil
}

// --- Audit log ---

func (c *HTTPClient) ListEvents(ctx context.Context, filter *model.EventFilter) ([]*model.BudgetEvent, error) {
	q := url.Values{}
	if filter != nil {
		if filter.CycleID != "" {
			q.Set("cycle_id", filter.CycleID)
		}
		if filter.EntityID != "" {
			q.Set("entity_id", filter.EntityID)
		}
		if len(filter.Actions) > 0 {
			q.Set("action", strings.Join(filter.Actions, ","))
		}
		if filter.Since != nil {
			q.Set("since", filter.Since.UTC().Format(time.RFC3339))
		}
		if filter.Limit > 0 {
			q.Set("limit", strconv.Itoa(filter.Limit))
		}
		if filter.RollbackToken != "" {
			q.Set("rollback_token", filter.RollbackToken)
		}
		if filter.RevertsEventID > 0 {
			q.Set("reverts_event_id", strconv.FormatInt(filter.RevertsEventID, 10))
		}
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp eventsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) Rollback(ctx context.Context, token, actor string) (*model.BudgetEvent, error) {
	body := map[string]string{"token": token, "actor": actor}
	var evt model.BudgetEvent
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events/rollback", body, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// StreamEvent is one server-sent event from /v1/events/stream.
type StreamEvent struct {
	ID    string
	Topic string
	Data  json.RawMessage
}

// StreamEvents follows the server's event stream and calls fn for each
// event until ctx is cancelled, the stream ends, or fn returns an error.
// Empty topics and cycleID receive everything.
func (c *HTTPClient) StreamEvents(ctx context.Context, topics []string, cycleID string, fn func(StreamEvent) error) error {
	q := url.Values{}
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	if cycleID != "" {
		q.Set("cycle_id", cycleID)
	}
	path := "/v1/events/stream"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, resp.Body)
	}

	var evt StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if evt.Topic != "" || evt.Data != nil {
				if err := fn(evt); err != nil {
					return err
				}
			}
			evt = StreamEvent{}
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "id:"):
			evt.ID = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			evt.Topic = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			evt.Data = json.RawMessage(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// --- Config ---

func (c *HTTPClient) SetConfig(ctx context.Context, key string, value json.RawMessage) (*model.Config, error) {
	body := map[string]json.RawMessage{"value": value}
	var config model.Config
	if err := c.doJSON(ctx, http.MethodPut, "/v1/configs/"+key, body, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *HTTPClient) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	var config model.Config
	if err := c.doJSON(ctx, http.MethodGet, "/v1/configs/"+key, nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *HTTPClient) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	var resp struct {
		Configs []*model.Config `json:"configs"`
	}
	path := "/v1/configs?namespace=" + url.QueryEscape(namespace)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Configs, nil
}

func (c *HTTPClient) DeleteConfig(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/configs/"+key, nil, nil)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, resp.Body)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(code int, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return &APIError{StatusCode: code, Message: err.Error()}
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: code, Message: errResp.Error}
	}
	return &APIError{StatusCode: code, Message: string(data)}
}
