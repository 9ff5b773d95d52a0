package budget

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/budgets/internal/model"
)

func TestAuthorize(t *testing.T) {
	for _, tc := range []struct {
		name        string
		cycle       model.CycleStatus
		segment     model.SegmentStatus
		maxPerClip  int64
		policy      ThrottlePolicy
		requested   int64
		wantAllowed bool
		wantCents   int64
		wantReason  string
		wantPolicy  string
	}{
		{"Approved", model.CycleStatusApproved, model.SegmentStatusApproved, 0, nil, 800, true, 800, "", ""},
		{"CycleKilled", model.CycleStatusKilled, model.SegmentStatusApproved, 0, nil, 800, false, 0, ReasonCycleKilled, ""},
		{"CyclePending", model.CycleStatusPendingApproval, model.SegmentStatusApproved, 0, nil, 800, false, 0, ReasonCycleNotApproved, ""},
		{"CycleLocked", model.CycleStatusLocked, model.SegmentStatusApproved, 0, nil, 800, false, 0, ReasonCycleNotApproved, ""},
		{"SegmentKilled", model.CycleStatusApproved, model.SegmentStatusKilled, 0, nil, 800, false, 0, ReasonSegmentKilled, ""},
		{"SegmentPending", model.CycleStatusApproved, model.SegmentStatusPending, 0, nil, 800, false, 0, ReasonSegmentNotApproved, ""},
		{"ThrottledDefault", model.CycleStatusApproved, model.SegmentStatusThrottled, 0, nil, 800, true, 400, "", "percent_cut"},
		{"ThrottledCap", model.CycleStatusApproved, model.SegmentStatusThrottled, 0, CapPolicy{MaxCents: 300}, 800, true, 300, "", "cap"},
		{"PerClipCap", model.CycleStatusApproved, model.SegmentStatusApproved, 500, nil, 800, true, 500, "", ""},
		{"PerClipCapAfterThrottle", model.CycleStatusApproved, model.SegmentStatusThrottled, 300, nil, 800, true, 300, "", "percent_cut"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cycle := &model.BudgetCycle{ID: "bc-1", Status: tc.cycle, MaxPayoutPerClipCents: tc.maxPerClip}
			sc := &model.SegmentCycle{ID: "sc-1", Status: tc.segment, SpentCents: 96000}
			d, err := Authorize(cycle, sc, 100000, tc.requested, tc.policy)
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if d.Allowed != tc.wantAllowed || d.ApprovedCents != tc.wantCents || d.Reason != tc.wantReason || d.Policy != tc.wantPolicy {
				t.Errorf("decision = %+v", d)
			}
			if d.Warning != WarningSoftThrottle {
				t.Errorf("warning = %s, want SOFT_THROTTLE", d.Warning)
			}
		})
	}
}

func TestAuthorize_NegativeAmount(t *testing.T) {
	cycle := &model.BudgetCycle{Status: model.CycleStatusApproved}
	sc := &model.SegmentCycle{Status: model.SegmentStatusApproved}
	if _, err := Authorize(cycle, sc, 100, -1, nil); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}
