// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"workshop_portal_backend/platform/events"
	"workshop_portal_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event     = events.Event
	Bus       = events.Bus
	Handler   = events.Handler
	BaseEvent = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = events.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Workshop Domain Events
// =============================================================================

// OrderStageChanged is published after a work order transitions between
// pipeline stages (advance or revert).
type OrderStageChanged struct {
	BaseEvent
	OrderKey  string
	FromStage string
	ToStage   string
	Progress  int
}

func (e OrderStageChanged) EventName() string { return "workshop.order.stage_changed" }

// OrderMarkedReady is published when a terminal-stage order is explicitly
// confirmed complete.
type OrderMarkedReady struct {
	BaseEvent
	OrderKey string
}

func (e OrderMarkedReady) EventName() string { return "workshop.order.marked_ready" }

// OrderFinalized is published when a completed order is removed from the
// active board and its deletion is requested from the backend.
type OrderFinalized struct {
	BaseEvent
	OrderKey string
}

func (e OrderFinalized) EventName() string { return "workshop.order.finalized" }

// OrderSyncFailed is published when a remote update for an order could not
// be delivered. Advisory only: local state is retained.
type OrderSyncFailed struct {
	BaseEvent
	OrderKey string
	Reason   string
}

func (e OrderSyncFailed) EventName() string { return "workshop.order.sync_failed" }

// ReceptionRecorded is published after a material reception ledger is
// submitted for an order.
type ReceptionRecorded struct {
	BaseEvent
	OrderKey     string
	Status       string
	PendingTotal float64
}

func (e ReceptionRecorded) EventName() string { return "workshop.reception.recorded" }

// SafetyRecorded is published after a safety checklist is submitted for
// an order.
type SafetyRecorded struct {
	BaseEvent
	OrderKey     string
	Completed    bool
	MissingCount int
}

func (e SafetyRecorded) EventName() string { return "workshop.safety.recorded" }
