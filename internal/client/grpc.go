package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/funnel"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// serviceName is the fully-qualified gRPC service the server registers.
const serviceName = "budgets.v1.BudgetService"

// GRPCClient implements BudgetClient using the gRPC transport. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the REST API.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
	owned bool
}

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token, owned: true}, nil
}

// NewGRPCClientFromConn wraps an existing connection. Close leaves the
// connection open.
func NewGRPCClientFromConn(conn *grpc.ClientConn, token string) *GRPCClient {
	return &GRPCClient{conn: conn, token: token}
}

func (c *GRPCClient) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// --- Cycles ---

func (c *GRPCClient) CreateCycle(ctx context.Context, req *CreateCycleRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.invoke(ctx, "CreateCycle", req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *GRPCClient) GetCycle(ctx context.Context, id string) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.invoke(ctx, "GetCycle", map[string]string{"id": id}, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *GRPCClient) CurrentCycle(ctx context.Context) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.invoke(ctx, "CurrentCycle", struct{}{}, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *GRPCClient) ListCycles(ctx context.Context, limit int) ([]*model.BudgetCycle, error) {
	var resp cyclesResponse
	if err := c.invoke(ctx, "ListCycles", map[string]int{"limit": limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Cycles, nil
}

func (c *GRPCClient) TransitionCycle(ctx context.Context, req *TransitionRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.invoke(ctx, "TransitionCycle", req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *GRPCClient) UpdateCycleLimits(ctx context.Context, req *UpdateLimitsRequest) (*model.BudgetCycle, error) {
	var cycle model.BudgetCycle
	if err := c.invoke(ctx, "UpdateCycleLimits", req, &cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (c *GRPCClient) RefreshSpend(ctx context.Context, cycleID string, asOf time.Time) ([]*budget.SegmentCycleView, error) {
	req := struct {
		ID   string     `json:"id"`
		AsOf *time.Time `json:"as_of,omitempty"`
	}{ID: cycleID}
	if !asOf.IsZero() {
		req.AsOf = &asOf
	}
	var resp segmentCycleViewsResponse
	if err := c.invoke(ctx, "RefreshSpend", req, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

// --- Segment cycles ---

func (c *GRPCClient) ListSegmentCycles(ctx context.Context, cycleID string) ([]*budget.SegmentCycleView, error) {
	var resp segmentCycleViewsResponse
	if err := c.invoke(ctx, "ListSegmentCycles", map[string]string{"id": cycleID}, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

func (c *GRPCClient) OpenSegmentCycles(ctx context.Context, req *OpenSegmentCyclesRequest) ([]*model.SegmentCycle, error) {
	var resp segmentCyclesResponse
	if err := c.invoke(ctx, "OpenSegmentCycles", req, &resp); err != nil {
		return nil, err
	}
	return resp.SegmentCycles, nil
}

func (c *GRPCClient) GetSegmentCycle(ctx context.Context, id string) (*model.SegmentCycle, error) {
	var sc model.SegmentCycle
	if err := c.invoke(ctx, "GetSegmentCycle", map[string]string{"id": id}, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *GRPCClient) TransitionSegmentCycle(ctx context.Context, req *TransitionRequest) (*model.SegmentCycle, error) {
	var sc model.SegmentCycle
	if err := c.invoke(ctx, "TransitionSegmentCycle", req, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (c *GRPCClient) AuthorizePayout(ctx context.Context, segmentCycleID string, amountCents int64) (*budget.PayoutDecision, error) {
	req := struct {
		ID          string `json:"id"`
		AmountCents int64  `json:"amount_cents"`
	}{segmentCycleID, amountCents}
	var d budget.PayoutDecision
	if err := c.invoke(ctx, "AuthorizePayout", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Segments ---

func (c *GRPCClient) CreateSegment(ctx context.Context, req *CreateSegmentRequest) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.invoke(ctx, "CreateSegment", req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *GRPCClient) GetSegment(ctx context.Context, id string) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.invoke(ctx, "GetSegment", map[string]string{"id": id}, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *GRPCClient) ListSegments(ctx context.Context, includeDeleted bool) ([]*model.BudgetSegment, error) {
	var resp segmentsResponse
	if err := c.invoke(ctx, "ListSegments", map[string]bool{"include_deleted": includeDeleted}, &resp); err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

func (c *GRPCClient) UpdateSegment(ctx context.Context, req *UpdateSegmentRequest) (*model.BudgetSegment, error) {
	var seg model.BudgetSegment
	if err := c.invoke(ctx, "UpdateSegment", req, &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

func (c *GRPCClient) DeleteSegment(ctx context.Context, id, actor, notes string) error {
	req := map[string]string{"id": id, "actor": actor, "notes": notes}
	return c.invoke(ctx, "DeleteSegment", req, nil)
}

func (c *GRPCClient) GetThrottleConfig(ctx context.Context, segmentID string) (*model.Config, error) {
	var cfg model.Config
	if err := c.invoke(ctx, "GetThrottleConfig", map[string]string{"id": segmentID}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *GRPCClient) SetThrottleConfig(ctx context.Context, segmentID string, tc budget.ThrottleConfig) (*model.Config, error) {
	req := struct {
		budget.ThrottleConfig
		SegmentID string `json:"segment_id"`
	}{tc, segmentID}
	var cfg model.Config
	if err := c.invoke(ctx, "SetThrottleConfig", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// --- Forecasting ---

func (c *GRPCClient) Simulate(ctx context.Context, req *SimulateRequest) (*budget.Forecast, error) {
	var fc budget.Forecast
	if err := c.invoke(ctx, "Simulate", req, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (c *GRPCClient) ProjectFunnel(ctx context.Context, req *FunnelRequest) ([]*funnel.Projection, error) {
	var resp projectionsResponse
	if err := c.invoke(ctx, "ProjectFunnel", req, &resp); err != nil {
		return nil, err
	}
	return resp.Projections, nil
}

// --- Audit log ---

func (c *GRPCClient) ListEvents(ctx context.Context, filter *model.EventFilter) ([]*model.BudgetEvent, error) {
	if filter == nil {
		filter = &model.EventFilter{}
	}
	var resp eventsResponse
	if err := c.invoke(ctx, "ListEvents", filter, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *GRPCClient) Rollback(ctx context.Context, token, actor string) (*model.BudgetEvent, error) {
	var evt model.BudgetEvent
	if err := c.invoke(ctx, "Rollback", map[string]string{"token": token, "actor": actor}, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// --- Health ---

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	if err := c.invoke(ctx, "Health", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- conversion helpers ---

// invoke calls a BudgetService method with req encoded as a Struct and
// decodes the reply into out. A nil out discards the reply.
func (c *GRPCClient) invoke(ctx context.Context, method string, req, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, reply); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(reply, out)
}

// toStruct converts v into a protobuf Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("convert request: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert response: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
