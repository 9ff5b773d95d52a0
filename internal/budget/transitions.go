package budget

import "github.com/alfredjeanlab/budgets/internal/model"

// cycleTransitions lists, for each cycle status, the statuses it may move to
// and the audit action recorded for the move. locked has no exits.
var cycleTransitions = map[model.CycleStatus]map[model.CycleStatus]string{
	model.CycleStatusPendingApproval: {
		model.CycleStatusApproved: model.ActionCycleApprove,
	},
	model.CycleStatusApproved: {
		model.CycleStatusKilled: model.ActionCycleKill,
		model.CycleStatusLocked: model.ActionCycleLock,
	},
	model.CycleStatusKilled: {
		model.CycleStatusApproved: model.ActionCycleReactivate,
		model.CycleStatusLocked:   model.ActionCycleLock,
	},
}

// segmentTransitions is the independent sub-machine for segment cycles.
var segmentTransitions = map[model.SegmentStatus]map[model.SegmentStatus]string{
	model.SegmentStatusPending: {
		model.SegmentStatusApproved: model.ActionSegmentCycleApprove,
		model.SegmentStatusKilled:   model.ActionSegmentCycleKill,
	},
	model.SegmentStatusApproved: {
		model.SegmentStatusThrottled: model.ActionSegmentCycleThrottle,
		model.SegmentStatusKilled:    model.ActionSegmentCycleKill,
	},
	model.SegmentStatusThrottled: {
		model.SegmentStatusApproved: model.ActionSegmentCycleReopen,
		model.SegmentStatusKilled:   model.ActionSegmentCycleKill,
	},
	model.SegmentStatusKilled: {
		model.SegmentStatusApproved: model.ActionSegmentCycleReopen,
	},
}

// CycleAction returns the audit action for moving a cycle from one status to
// another, and false when the move is not allowed.
func CycleAction(from, to model.CycleStatus) (string, bool) {
	action, ok := cycleTransitions[from][to]
	return action, ok
}

// SegmentAction returns the audit action for moving a segment cycle from one
// status to another, and false when the move is not allowed.
func SegmentAction(from, to model.SegmentStatus) (string, bool) {
	action, ok := segmentTransitions[from][to]
	return action, ok
}

// checkCycleTransition validates a cycle move and returns its action.
func checkCycleTransition(c *model.BudgetCycle, to model.CycleStatus) (string, error) {
	if !to.IsValid() {
		return "", &model.ParameterError{Name: "status", Reason: "unknown cycle status " + string(to)}
	}
	action, ok := CycleAction(c.Status, to)
	if !ok {
		return "", &model.TransitionError{
			Entity: model.EntityCycle,
			ID:     c.ID,
			From:   string(c.Status),
			To:     string(to),
		}
	}
	return action, nil
}

// checkSegmentTransition validates a segment cycle move against both the
// sub-machine and the owning cycle. Only kills are accepted while the cycle
// is killed or locked.
func checkSegmentTransition(sc *model.SegmentCycle, cycle *model.BudgetCycle, to model.SegmentStatus) (string, error) {
	if !to.IsValid() {
		return "", &model.ParameterError{Name: "status", Reason: "unknown segment status " + string(to)}
	}
	action, ok := SegmentAction(sc.Status, to)
	if !ok {
		return "", &model.TransitionError{
			Entity: model.EntitySegmentCycle,
			ID:     sc.ID,
			From:   string(sc.Status),
			To:     string(to),
		}
	}
	if to != model.SegmentStatusKilled &&
		(cycle.Status == model.CycleStatusKilled || cycle.Status == model.CycleStatusLocked) {
		return "", &model.TransitionError{
			Entity: model.EntitySegmentCycle,
			ID:     sc.ID,
			From:   string(sc.Status),
			To:     string(to),
			Reason: "cycle " + cycle.ID + " is " + string(cycle.Status),
		}
	}
	return action, nil
}
