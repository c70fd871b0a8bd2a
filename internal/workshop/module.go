// Package workshop wires the workshop bounded context: board, material
// matching, reception ledger, and safety checklist.
package workshop

import (
	"workshop_portal_backend/internal/events"
	apphttp "workshop_portal_backend/internal/http"
	"workshop_portal_backend/internal/workshop/board"
	"workshop_portal_backend/internal/workshop/checklist"
	"workshop_portal_backend/internal/workshop/handler"
	"workshop_portal_backend/internal/workshop/matcher"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/internal/workshop/reception"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"
	"workshop_portal_backend/platform/validator"
)

// Sources bundles the remote collections the workshop context reads.
type Sources struct {
	Orders        ports.OrderStore
	Requisitions  ports.RequisitionSource
	ExpenseOrders ports.ExpenseOrderSource
}

// Module wires the workshop HTTP routes and services.
type Module struct {
	handler *handler.Handler
	Board   *board.Service
}

func NewModule(sources Sources, cache kvstore.Store, scheduler board.SyncScheduler, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	m := matcher.New(sources.Requisitions, sources.ExpenseOrders, cache, log)
	overrides := board.NewOverrideCache(cache, log)
	boardSvc := board.NewService(sources.Orders, overrides, scheduler, bus, log)
	receptionSvc := reception.NewService(sources.Orders, m, cache, bus, log)
	checklistSvc := checklist.NewService(sources.Orders, cache, bus, log)

	return &Module{
		handler: handler.New(boardSvc, m, receptionSvc, checklistSvc, val),
		Board:   boardSvc,
	}
}

func (m *Module) Name() string {
	return "workshop"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/workshop")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
