// Package board is the stage-pipeline surface: it fetches raw orders,
// normalizes them, reconciles optimistic local overrides against server
// truth, and exposes the stage transitions. Transitions apply locally first
// and sync to the backend through a per-order-key task queue; a failed sync
// never rolls the local state back.
package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/apperr"
	"workshop_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// SyncScheduler dispatches fire-and-forget backend writes, deduplicated
// per order key.
type SyncScheduler interface {
	EnqueueOrderSync(ctx context.Context, orderKey string, patch map[string]interface{}) error
	EnqueueOrderFinalize(ctx context.Context, orderKey string) error
}

// Column is one stage lane of the board.
type Column struct {
	Stage  domain.Stage       `json:"stage"`
	Orders []domain.WorkOrder `json:"orders"`
}

// Board is the full rendered pipeline. Foreign collects orders whose
// backend status text matched no canonical stage; Unkeyed collects raw
// records no stable key could be derived for, surfaced for data cleanup
// instead of being dropped silently.
type Board struct {
	Columns []Column           `json:"columns"`
	Foreign []domain.WorkOrder `json:"foreign,omitempty"`
	Unkeyed []ports.RawRecord  `json:"unkeyed,omitempty"`
}

// Summary is the aggregate board state for dashboard cards.
type Summary struct {
	Active           int                  `json:"active"`
	Completed        int                  `json:"completed"`
	Urgent           int                  `json:"urgent"`
	PendingMaterials int                  `json:"pendingMaterials"`
	PerStage         map[domain.Stage]int `json:"perStage"`
}

// Service owns the board and its stage transitions.
type Service struct {
	orders    ports.OrderStore
	overrides *OverrideCache
	scheduler SyncScheduler
	bus       events.Bus
	log       *logger.Logger
}

func NewService(orders ports.OrderStore, overrides *OverrideCache, scheduler SyncScheduler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{orders: orders, overrides: overrides, scheduler: scheduler, bus: bus, log: log}
}

// Board fetches, normalizes, and reconciles all orders matching the
// filters and groups them into stage columns. Hidden (finalized) orders
// are excluded.
func (s *Service) Board(ctx context.Context, filters map[string]string) (Board, error) {
	records, err := s.orders.FetchOrders(ctx, filters)
	if err != nil {
		return Board{}, apperr.Wrap(apperr.KindUnavailable, "fetch orders", err).WithOp("board.Board")
	}

	byStage := make(map[domain.Stage][]domain.WorkOrder)
	var board Board
	for _, record := range records {
		order, err := domain.Normalize(record)
		if errors.Is(err, domain.ErrNoStableKey) {
			board.Unkeyed = append(board.Unkeyed, record)
			continue
		}
		if err != nil {
			return Board{}, apperr.Wrap(apperr.KindInternal, "normalize order", err).WithOp("board.Board")
		}
		order = s.overrides.Reconcile(ctx, order)
		if order.Hidden {
			continue
		}
		if !order.Stage.IsKnown() {
			board.Foreign = append(board.Foreign, order)
			continue
		}
		byStage[order.Stage] = append(byStage[order.Stage], order)
	}

	for _, stage := range domain.Stages() {
		orders := byStage[stage]
		sortOrders(orders)
		board.Columns = append(board.Columns, Column{Stage: stage, Orders: orders})
	}
	sortOrders(board.Foreign)
	return board, nil
}

// Summary aggregates the reconciled board for dashboard consumption.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	board, err := s.Board(ctx, nil)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{PerStage: make(map[domain.Stage]int, domain.StageCount())}
	count := func(order domain.WorkOrder) {
		summary.Active++
		if order.Completed {
			summary.Completed++
		}
		if order.PriorityRank == domain.PriorityUrgent {
			summary.Urgent++
		}
		if pending := order.RequiredMaterials - order.ReceivedMaterials; pending > 0 {
			summary.PendingMaterials += pending
		}
	}
	for _, column := range board.Columns {
		summary.PerStage[column.Stage] = len(column.Orders)
		for _, order := range column.Orders {
			count(order)
		}
	}
	for _, order := range board.Foreign {
		count(order)
	}
	return summary, nil
}

// Order resolves one reconciled order by key, tolerating the fuzzy key
// shapes the backend produces.
func (s *Service) Order(ctx context.Context, orderKey string) (domain.WorkOrder, error) {
	records, err := s.orders.FetchOrders(ctx, map[string]string{"clave": orderKey})
	if err != nil {
		return domain.WorkOrder{}, apperr.Wrap(apperr.KindUnavailable, "fetch order", err).WithOp("board.Order")
	}
	for _, record := range records {
		order, err := domain.Normalize(record)
		if err != nil {
			continue
		}
		if order.Key == orderKey || domain.KeysMatch(order.Key, orderKey) {
			return s.overrides.Reconcile(ctx, order), nil
		}
	}
	return domain.WorkOrder{}, apperr.NotFound(fmt.Sprintf("work order %q", orderKey))
}

// Advance moves the order one stage forward.
func (s *Service) Advance(ctx context.Context, orderKey string) (domain.WorkOrder, error) {
	order, err := s.Order(ctx, orderKey)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	from := order.Stage
	order = domain.Advance(order)
	s.applyTransition(ctx, order)
	s.bus.Publish(ctx, events.OrderStageChanged{
		BaseEvent: events.NewBaseEvent(),
		OrderKey:  order.Key,
		FromStage: string(from),
		ToStage:   string(order.Stage),
		Progress:  order.ProgressPercent,
	})
	return order, nil
}

// Revert moves the order one stage back and drops any completion mark.
func (s *Service) Revert(ctx context.Context, orderKey string) (domain.WorkOrder, error) {
	order, err := s.Order(ctx, orderKey)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	from := order.Stage
	order = domain.Revert(order)
	s.applyTransition(ctx, order)
	s.bus.Publish(ctx, events.OrderStageChanged{
		BaseEvent: events.NewBaseEvent(),
		OrderKey:  order.Key,
		FromStage: string(from),
		ToStage:   string(order.Stage),
		Progress:  order.ProgressPercent,
	})
	return order, nil
}

// MarkReady confirms a terminal-stage order complete.
func (s *Service) MarkReady(ctx context.Context, orderKey string) (domain.WorkOrder, error) {
	order, err := s.Order(ctx, orderKey)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	order, err = domain.MarkReady(order)
	if err != nil {
		return domain.WorkOrder{}, apperr.Wrap(apperr.KindConflict, err.Error(), err).WithOp("board.MarkReady")
	}
	s.applyTransition(ctx, order)
	s.bus.Publish(ctx, events.OrderMarkedReady{BaseEvent: events.NewBaseEvent(), OrderKey: order.Key})
	return order, nil
}

// Finalize hides a confirmed-complete order from the active board and
// requests its deletion from the backend.
func (s *Service) Finalize(ctx context.Context, orderKey string) (domain.WorkOrder, error) {
	order, err := s.Order(ctx, orderKey)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	order, err = domain.Finalize(order)
	if err != nil {
		return domain.WorkOrder{}, apperr.Wrap(apperr.KindConflict, err.Error(), err).WithOp("board.Finalize")
	}

	hidden := true
	s.overrides.Put(ctx, order.Key, OverrideEntry{Hidden: &hidden})
	if err := s.scheduler.EnqueueOrderFinalize(ctx, order.Key); err != nil {
		s.advisorySyncFailure(ctx, order.Key, "finalize", err)
	}
	s.bus.Publish(ctx, events.OrderFinalized{BaseEvent: events.NewBaseEvent(), OrderKey: order.Key})
	return order, nil
}

// AddChangeOrder appends an entry to the order's change list and writes the
// full list back. The write is synchronous: a change order the user cannot
// see on reload was never recorded.
func (s *Service) AddChangeOrder(ctx context.Context, orderKey, description string) (domain.ChangeOrder, error) {
	if description == "" {
		return domain.ChangeOrder{}, apperr.Validation("change order description is required")
	}
	order, err := s.Order(ctx, orderKey)
	if err != nil {
		return domain.ChangeOrder{}, err
	}

	change := domain.ChangeOrder{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	list := make([]interface{}, 0, len(order.ChangeOrders)+1)
	for _, existing := range append(order.ChangeOrders, change) {
		list = append(list, map[string]interface{}{
			"id":          existing.ID,
			"descripcion": existing.Description,
			"fecha":       existing.CreatedAt.Format(time.RFC3339),
		})
	}
	if err := s.orders.UpdateOrder(ctx, order.Key, map[string]interface{}{"cambios": list}); err != nil {
		return domain.ChangeOrder{}, apperr.Wrap(apperr.KindUnavailable, "record change order", err).WithOp("board.AddChangeOrder")
	}
	return change, nil
}

// applyTransition records the optimistic local override and schedules the
// backend write. Scheduling failures are advisory.
func (s *Service) applyTransition(ctx context.Context, order domain.WorkOrder) {
	stage := order.Stage
	progress := order.ProgressPercent
	completed := order.Completed
	s.overrides.Put(ctx, order.Key, OverrideEntry{
		Stage:     &stage,
		Progress:  &progress,
		Completed: &completed,
	})

	patch := map[string]interface{}{
		"estado":     string(order.Stage),
		"progreso":   order.ProgressPercent,
		"completado": order.Completed,
	}
	if err := s.scheduler.EnqueueOrderSync(ctx, order.Key, patch); err != nil {
		s.advisorySyncFailure(ctx, order.Key, "stage sync", err)
	}
}

func (s *Service) advisorySyncFailure(ctx context.Context, orderKey, operation string, err error) {
	s.log.RemoteSyncError(operation, orderKey, err)
	s.bus.Publish(ctx, events.OrderSyncFailed{
		BaseEvent: events.NewBaseEvent(),
		OrderKey:  orderKey,
		Reason:    err.Error(),
	})
}

// sortOrders orders a column by urgency, then due date (undated last),
// then key for a stable layout.
func sortOrders(orders []domain.WorkOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank < b.PriorityRank
		}
		if a.DueDate != b.DueDate {
			if a.DueDate == "" {
				return false
			}
			if b.DueDate == "" {
				return true
			}
			return a.DueDate < b.DueDate
		}
		return a.Key < b.Key
	})
}
