// Package domain provides core business rules for the workshop bounded
// context: the canonical work order model, the five-stage pipeline, material
// line normalization, and the safety checklist rules.
package domain

import "time"

// Stage is one of the five fixed pipeline positions a work order occupies.
// Unrecognized backend status text passes through as a foreign Stage value
// so the board can still render a default column for it.
type Stage string

const (
	StageMaterialReception Stage = "material-reception"
	StageSafetyChecklist   Stage = "safety-checklist"
	StageManufacturing     Stage = "manufacturing"
	StageQualityControl    Stage = "quality-control"
	StageReadyShipment     Stage = "ready-shipment"
)

// stageOrder fixes the pipeline ordering.
var stageOrder = []Stage{
	StageMaterialReception,
	StageSafetyChecklist,
	StageManufacturing,
	StageQualityControl,
	StageReadyShipment,
}

// Stages returns the ordered pipeline stages.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// StageCount is the number of pipeline stages.
func StageCount() int { return len(stageOrder) }

// Index returns the pipeline position of s, or -1 for a foreign stage.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// IsKnown reports whether s is one of the five canonical stages.
func (s Stage) IsKnown() bool { return s.Index() >= 0 }

// IsTerminal reports whether s is the final pipeline stage.
func (s Stage) IsTerminal() bool { return s == StageReadyShipment }

// SafetyState is the per-order safety checklist summary carried on the
// canonical work order.
type SafetyState struct {
	Completed bool     `json:"completed"`
	Missing   []string `json:"missing,omitempty"`
}

// ChangeOrder is one entry of an order's append-only change list.
type ChangeOrder struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WorkOrder is the canonical order shape every heterogeneous raw record is
// mapped into. Raw retains the original payload for lossless round-trip of
// fields the core does not model.
type WorkOrder struct {
	Key                 string        `json:"key"`
	Stage               Stage         `json:"stage"`
	ProgressPercent     int           `json:"progressPercent"`
	PriorityRank        int           `json:"priorityRank"`
	RequiredMaterials   int           `json:"requiredMaterials"`
	ReceivedMaterials   int           `json:"receivedMaterials"`
	AssignedTechnicians []string      `json:"assignedTechnicians,omitempty"`
	DueDate             string        `json:"dueDate,omitempty"`
	SafetyState         SafetyState   `json:"safetyState"`
	QualityState        string        `json:"qualityState,omitempty"`
	ChangeOrders        []ChangeOrder `json:"changeOrders,omitempty"`
	ClientLabel         string        `json:"clientLabel,omitempty"`
	ProjectRef          string        `json:"projectRef,omitempty"`
	Completed           bool          `json:"completed"`
	Hidden              bool          `json:"-"`

	// HasStage and HasProgress record whether the backend supplied a value
	// for the field. The reconciler needs the distinction between "server
	// said material-reception" and "server said nothing" (see overrides).
	HasStage    bool `json:"-"`
	HasProgress bool `json:"-"`

	Raw map[string]interface{} `json:"raw,omitempty"`
}

// Priority ranks, most urgent first. DefaultPriorityRank applies when the
// backend supplies no usable priority.
const (
	PriorityUrgent = 0
	PriorityHigh   = 1
	PriorityNormal = 2
	PriorityLow    = 3

	DefaultPriorityRank = PriorityNormal
)
