package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/budgets/internal/model"
)

func TestErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err      error
		wantHTTP int
		wantGRPC codes.Code
	}{
		{&model.NotFoundError{Entity: model.EntityCycle, ID: "bc-1"}, http.StatusNotFound, codes.NotFound},
		{&model.TransitionError{Entity: model.EntityCycle, ID: "bc-1", From: "locked", To: "approved"}, http.StatusConflict, codes.FailedPrecondition},
		{&model.ParameterError{Name: "rpm_cents", Reason: "must be positive"}, http.StatusBadRequest, codes.InvalidArgument},
		{&model.ValidationError{Errors: []model.FieldError{{Field: "name", Message: "is required"}}}, http.StatusBadRequest, codes.InvalidArgument},
		{&model.ConflictError{Entity: model.EntityCycle, ID: "bc-1", Expected: "approved", Actual: "killed"}, http.StatusConflict, codes.Aborted},
		{fmt.Errorf("sum: %w", model.ErrArithmeticOverflow), http.StatusUnprocessableEntity, codes.OutOfRange},
		{errors.New("connection reset"), http.StatusInternalServerError, codes.Internal},
	} {
		if got := httpStatus(tc.err); got != tc.wantHTTP {
			t.Errorf("httpStatus(%v) = %d, want %d", tc.err, got, tc.wantHTTP)
		}
		if got := grpcCode(tc.err); got != tc.wantGRPC {
			t.Errorf("grpcCode(%v) = %s, want %s", tc.err, got, tc.wantGRPC)
		}
	}
}

func TestToStatus(t *testing.T) {
	st := status.Convert(toStatus(&model.NotFoundError{Entity: model.EntitySegment, ID: "sg-1"}))
	if st.Code() != codes.NotFound || st.Message() != `segment "sg-1" not found` {
		t.Fatalf("unexpected status %s: %s", st.Code(), st.Message())
	}

	internal := status.Convert(toStatus(errors.New("pq: password authentication failed")))
	if internal.Code() != codes.Internal || internal.Message() != "internal server error" {
		t.Fatalf("internal details leaked: %s", internal.Message())
	}

	already := status.Error(codes.Unauthenticated, "invalid token")
	if got := toStatus(already); status.Code(got) != codes.Unauthenticated {
		t.Fatalf("existing status rewritten to %s", status.Code(got))
	}
}

func TestStructRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	in := &createCycleRequest{
		BudgetCycle: model.BudgetCycle{
			StartDate:              start,
			EndDate:                start.AddDate(0, 0, 7),
			GlobalWeeklyLimitCents: 123456789012,
		},
		Actor: "alice",
	}
	st, err := toStruct(in)
	if err != nil {
		t.Fatalf("toStruct: %v", err)
	}
	if got := st.Fields["actor"].GetStringValue(); got != "alice" {
		t.Fatalf("actor = %q", got)
	}

	var out createCycleRequest
	if err := fromStruct(st, &out); err != nil {
		t.Fatalf("fromStruct: %v", err)
	}
	if out.GlobalWeeklyLimitCents != in.GlobalWeeklyLimitCents || !out.StartDate.Equal(start) || out.Actor != "alice" {
		t.Fatalf("round trip = %+v", out)
	}

	var untouched idRequest
	if err := fromStruct(nil, &untouched); err != nil || untouched.ID != "" {
		t.Fatalf("nil struct decoded to %+v, %v", untouched, err)
	}
}
