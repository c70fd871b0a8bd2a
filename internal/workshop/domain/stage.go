package domain

import (
	"errors"
	"math"
)

// Transition precondition errors.
var (
	// ErrNotTerminalStage is returned when a terminal-stage-only action is
	// attempted on an order that has not reached ready-shipment.
	ErrNotTerminalStage = errors.New("order is not in the ready-shipment stage")
	// ErrNotCompleted is returned when Finalize is attempted before the
	// order was explicitly marked ready.
	ErrNotCompleted = errors.New("order has not been confirmed complete")
)

// ProgressForStageIndex is the canonical progress value for a pipeline
// position: round(index / (stageCount-1) * 100).
func ProgressForStageIndex(index int) int {
	if index < 0 {
		index = 0
	}
	last := len(stageOrder) - 1
	if index > last {
		index = last
	}
	return int(math.Round(float64(index) / float64(last) * 100))
}

// stageIndexOf treats a foreign stage as the initial pipeline position so
// transitions on unrecognized backend text still behave.
func stageIndexOf(s Stage) int {
	if idx := s.Index(); idx >= 0 {
		return idx
	}
	return 0
}

// Advance moves the order one stage forward and recomputes its progress,
// except when the destination is the terminal stage: reaching
// ready-shipment only relabels the stage. "Ready for shipment" must not be
// conflated with "confirmed complete", which is the separate MarkReady
// action.
func Advance(order WorkOrder) WorkOrder {
	idx := stageIndexOf(order.Stage)
	last := len(stageOrder) - 1
	if idx >= last {
		return order
	}

	next := idx + 1
	order.Stage = stageOrder[next]
	if next < last {
		order.ProgressPercent = ProgressForStageIndex(next)
	}
	return order
}

// Revert moves the order one stage back and recomputes the progress for the
// destination stage. Revert is the only transition allowed to decrease
// progress; it is available from any stage.
func Revert(order WorkOrder) WorkOrder {
	idx := stageIndexOf(order.Stage)
	prev := idx - 1
	if prev < 0 {
		prev = 0
	}
	order.Stage = stageOrder[prev]
	order.ProgressPercent = ProgressForStageIndex(prev)
	order.Completed = false
	return order
}

// MarkReady confirms a terminal-stage order complete. This is the only
// path to 100% progress in the terminal stage.
func MarkReady(order WorkOrder) (WorkOrder, error) {
	if !order.Stage.IsTerminal() {
		return order, ErrNotTerminalStage
	}
	order.ProgressPercent = 100
	order.Completed = true
	return order, nil
}

// Finalize validates that the order may leave the active board: terminal
// stage and explicitly confirmed complete. The caller emits the hide/delete
// intent; the transition is not reversible through this engine.
func Finalize(order WorkOrder) (WorkOrder, error) {
	if !order.Stage.IsTerminal() {
		return order, ErrNotTerminalStage
	}
	if !order.Completed {
		return order, ErrNotCompleted
	}
	order.Hidden = true
	return order, nil
}
