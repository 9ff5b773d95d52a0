package budget

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/budgets/internal/model"
)

var (
	allCycleStatuses = []model.CycleStatus{
		model.CycleStatusPendingApproval,
		model.CycleStatusApproved,
		model.CycleStatusLocked,
		model.CycleStatusKilled,
	}
	allSegmentStatuses = []model.SegmentStatus{
		model.SegmentStatusPending,
		model.SegmentStatusApproved,
		model.SegmentStatusThrottled,
		model.SegmentStatusKilled,
	}
)

func TestCycleAction_Grid(t *testing.T) {
	allowed := map[[2]model.CycleStatus]string{
		{model.CycleStatusPendingApproval, model.CycleStatusApproved}: model.ActionCycleApprove,
		{model.CycleStatusApproved, model.CycleStatusKilled}:          model.ActionCycleKill,
		{model.CycleStatusApproved, model.CycleStatusLocked}:          model.ActionCycleLock,
		{model.CycleStatusKilled, model.CycleStatusApproved}:          model.ActionCycleReactivate,
		{model.CycleStatusKilled, model.CycleStatusLocked}:            model.ActionCycleLock,
	}
	for _, from := range allCycleStatuses {
		for _, to := range allCycleStatuses {
			want, wantOK := allowed[[2]model.CycleStatus{from, to}]
			got, ok := CycleAction(from, to)
			if ok != wantOK || got != want {
				t.Errorf("CycleAction(%s, %s) = %q, %v; want %q, %v", from, to, got, ok, want, wantOK)
			}
		}
	}
}

func TestSegmentAction_Grid(t *testing.T) {
	allowed := map[[2]model.SegmentStatus]string{
		{model.SegmentStatusPending, model.SegmentStatusApproved}:   model.ActionSegmentCycleApprove,
		{model.SegmentStatusPending, model.SegmentStatusKilled}:     model.ActionSegmentCycleKill,
		{model.SegmentStatusApproved, model.SegmentStatusThrottled}: model.ActionSegmentCycleThrottle,
		{model.SegmentStatusApproved, model.SegmentStatusKilled}:    model.ActionSegmentCycleKill,
		{model.SegmentStatusThrottled, model.SegmentStatusApproved}: model.ActionSegmentCycleReopen,
		{model.SegmentStatusThrottled, model.SegmentStatusKilled}:   model.ActionSegmentCycleKill,
		{model.SegmentStatusKilled, model.SegmentStatusApproved}:    model.ActionSegmentCycleReopen,
	}
	for _, from := range allSegmentStatuses {
		for _, to := range allSegmentStatuses {
			want, wantOK := allowed[[2]model.SegmentStatus{from, to}]
			got, ok := SegmentAction(from, to)
			if ok != wantOK || got != want {
				t.Errorf("SegmentAction(%s, %s) = %q, %v; want %q, %v", from, to, got, ok, want, wantOK)
			}
		}
	}
}

func TestCheckCycleTransition_UnknownStatus(t *testing.T) {
	c := &model.BudgetCycle{ID: "bc-1", Status: model.CycleStatusApproved}
	if _, err := checkCycleTransition(c, "paused"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestCheckSegmentTransition_FrozenCycle(t *testing.T) {
	sc := &model.SegmentCycle{ID: "sc-1", Status: model.SegmentStatusThrottled}
	for _, status := range []model.CycleStatus{model.CycleStatusKilled, model.CycleStatusLocked} {
		cycle := &model.BudgetCycle{ID: "bc-1", Status: status}

		_, err := checkSegmentTransition(sc, cycle, model.SegmentStatusApproved)
		var te *model.TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("cycle %s: expected TransitionError, got %v", status, err)
		}
		if te.Reason != "cycle bc-1 is "+string(status) {
			t.Errorf("reason = %q", te.Reason)
		}

		action, err := checkSegmentTransition(sc, cycle, model.SegmentStatusKilled)
		if err != nil || action != model.ActionSegmentCycleKill {
			t.Errorf("cycle %s: kill should pass, got %q, %v", status, action, err)
		}
	}

	pending := &model.BudgetCycle{ID: "bc-2", Status: model.CycleStatusPendingApproval}
	if _, err := checkSegmentTransition(sc, pending, model.SegmentStatusApproved); err != nil {
		t.Errorf("pending cycle should not freeze segments: %v", err)
	}
}
