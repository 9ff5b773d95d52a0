package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	method        string
	path          string
	rawPath       string
	query         string
	body          string
	contentType   string
	authorization string

	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.authorization = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", token)
}

func TestHTTPClient_BearerToken(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c := newTestClient(t, h, "secret")

	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.authorization != "Bearer secret" {
		t.Fatalf("Authorization = %q", h.authorization)
	}
	if h.path != "/v1/health" {
		t.Fatalf("path = %q, trailing slash of base URL should be trimmed", h.path)
	}
}

func TestHTTPClient_PathEscape(t *testing.T) {
	h := &testHandler{responseBody: `{"id":"bc a/b"}`}
	c := newTestClient(t, h, "")

	if _, err := c.GetCycle(context.Background(), "bc a/b"); err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if h.rawPath != "/v1/cycles/bc%20a%2Fb" {
		t.Fatalf("raw path = %q", h.rawPath)
	}
}

func TestHTTPClient_TransitionBody(t *testing.T) {
	h := &testHandler{responseBody: `{"id":"bc-1","status":"approved"}`}
	c := newTestClient(t, h, "")

	got, err := c.TransitionCycle(context.Background(), &TransitionRequest{ID: "bc-1", Status: "approved", Actor: "bob"})
	if err != nil {
		t.Fatalf("TransitionCycle: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/cycles/bc-1/transition" {
		t.Fatalf("request = %s %s", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Fatalf("Content-Type = %q", h.contentType)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(h.body), &body); err != nil {
		t.Fatalf("body %q: %v", h.body, err)
	}
	if body["status"] != "approved" || body["actor"] != "bob" {
		t.Fatalf("body = %v", body)
	}
	if got.Status != model.CycleStatusApproved {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestHTTPClient_ListEventsQuery(t *testing.T) {
	h := &testHandler{responseBody: `{"events":[]}`}
	c := newTestClient(t, h, "")

	since := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	_, err := c.ListEvents(context.Background(), &model.EventFilter{
		CycleID: "bc-1",
		Actions: []string{model.ActionCycleKill, model.ActionCycleApprove},
		Since:   &since,
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	q, _ := url.ParseQuery(h.query)
	if q.Get("cycle_id") != "bc-1" || q.Get("limit") != "5" || q.Get("since") != "2026-03-02T12:00:00Z" {
		t.Fatalf("query = %q", h.query)
	}
	if q.Get("action") != "cycle.kill,cycle.approve" {
		t.Fatalf("action = %q", q.Get("action"))
	}
}

func TestHTTPClient_DeleteSegmentQuery(t *testing.T) {
	h := &testHandler{responseBody: `{"id":"sg-1","deleted":true}`}
	c := newTestClient(t, h, "")

	if err := c.DeleteSegment(context.Background(), "sg-1", "alice", "retired"); err != nil {
		t.Fatalf("DeleteSegment: %v", err)
	}
	q, _ := url.ParseQuery(h.query)
	if h.method != http.MethodDelete || q.Get("actor") != "alice" || q.Get("notes") != "retired" {
		t.Fatalf("request = %s ?%s", h.method, h.query)
	}
}

func TestHTTPClient_SimulateRoutesByCycle(t *testing.T) {
	h := &testHandler{responseBody: `{"total_clips":1}`}
	c := newTestClient(t, h, "")

	if _, err := c.Simulate(context.Background(), &SimulateRequest{}); err != nil {
		t.Fatal(err)
	}
	if h.path != "/v1/simulate" {
		t.Fatalf("path = %q", h.path)
	}
	if _, err := c.Simulate(context.Background(), &SimulateRequest{CycleID: "bc-1"}); err != nil {
		t.Fatal(err)
	}
	if h.path != "/v1/cycles/bc-1/simulate" {
		t.Fatalf("path = %q", h.path)
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	for _, tc := range []struct {
		name    string
		code    int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusConflict, `{"error":"cycle bc-1: invalid transition"}`, "cycle bc-1: invalid transition"},
		{"plain body", http.StatusBadGateway, `upstream down`, "upstream down"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.code, responseBody: tc.body}
			c := newTestClient(t, h, "")

			_, err := c.GetSegment(context.Background(), "sg-1")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tc.code || apiErr.Message != tc.wantMsg {
				t.Fatalf("got %d %q", apiErr.StatusCode, apiErr.Message)
			}
		})
	}
}

func TestHTTPClient_NoContent(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNoContent}
	c := newTestClient(t, h, "")

	if err := c.DeleteConfig(context.Background(), "throttle:sg-1"); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}
	if h.path != "/v1/configs/throttle:sg-1" {
		t.Fatalf("path = %q", h.path)
	}
}

func TestHTTPClient_StreamEvents(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, ":keepalive\n\n")
		_, _ = io.WriteString(w, "id:1\nevent:budgets.cycle.approve\ndata:{\"n\":1}\n\n")
		_, _ = io.WriteString(w, "id:2\nevent:budgets.cycle.kill\ndata:{\"n\":2}\n\n")
	}))
	t.Cleanup(srv.Close)
	c := NewHTTPClient(srv.URL, "")

	var got []StreamEvent
	err := c.StreamEvents(context.Background(), []string{"budgets.cycle.*"}, "bc-1", func(e StreamEvent) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %+v", got)
	}
	if got[0].ID != "1" || got[0].Topic != "budgets.cycle.approve" || string(got[0].Data) != `{"n":1}` {
		t.Fatalf("first event = %+v", got[0])
	}
	q, _ := url.ParseQuery(gotQuery)
	if q.Get("topics") != "budgets.cycle.*" || q.Get("cycle_id") != "bc-1" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestHTTPClient_StreamEventsStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "id:1\nevent:a\ndata:{}\n\nid:2\nevent:b\ndata:{}\n\n")
	}))
	t.Cleanup(srv.Close)
	c := NewHTTPClient(srv.URL, "")

	stop := errors.New("stop")
	calls := 0
	err := c.StreamEvents(context.Background(), nil, "", func(StreamEvent) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}
