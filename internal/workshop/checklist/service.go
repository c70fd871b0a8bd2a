// Package checklist owns the per-order safety checklist: fixed tooling and
// procedure items, conditionally applicable PPE items, and the flagged-missing
// list that gates completion. Local checkbox state is a durable draft merged
// against the backend-recorded missing list on every load.
package checklist

import (
	"context"
	"fmt"
	"time"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/apperr"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"
)

// CachePrefix namespaces checklist drafts in the durable cache.
const CachePrefix = "safety_"

// Service loads, edits, and submits safety checklists.
type Service struct {
	orders ports.OrderStore
	cache  kvstore.Store
	bus    events.Bus
	log    *logger.Logger
}

func NewService(orders ports.OrderStore, cache kvstore.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{orders: orders, cache: cache, bus: bus, log: log}
}

// Load derives the applicable checklist for the order, restores the local
// draft's checkbox and flagged-missing state, and merges the backend's
// recorded missing list on top. Server missing entries arrive as read-only
// locks; local flags on other labels survive.
func (s *Service) Load(ctx context.Context, order domain.WorkOrder) (domain.SafetyRecord, error) {
	record := domain.SafetyRecord{Items: domain.RequiredItems(order)}

	var draft domain.SafetyRecord
	found, err := s.cache.GetJSON(ctx, CachePrefix+order.Key, &draft)
	if err != nil {
		s.log.CacheError("load safety draft", order.Key, err)
		found = false
	}
	if found {
		record.Items = restoreChecks(record.Items, draft.Items)
		for _, m := range draft.Missing {
			if m.Source == domain.MissingSourceLocal {
				record.Missing = append(record.Missing, m)
			}
		}
		record.UpdatedAt = draft.UpdatedAt
	}

	record = domain.MergeServerMissing(record, order.SafetyState.Missing)
	return record, nil
}

// SetChecked toggles one checklist item and persists the draft. Locked
// items (flagged missing) reject the edit.
func (s *Service) SetChecked(ctx context.Context, order domain.WorkOrder, itemID string, checked bool) (domain.SafetyRecord, error) {
	record, err := s.Load(ctx, order)
	if err != nil {
		return domain.SafetyRecord{}, err
	}

	found := false
	for i := range record.Items {
		if record.Items[i].ID != itemID {
			continue
		}
		if record.Items[i].Locked && checked {
			return domain.SafetyRecord{}, apperr.Conflict(fmt.Sprintf("item %q is flagged missing and cannot be checked", itemID))
		}
		record.Items[i].Checked = checked
		found = true
		break
	}
	if !found {
		return domain.SafetyRecord{}, apperr.NotFound(fmt.Sprintf("no checklist item %q", itemID))
	}

	record.Completed = domain.IsChecklistComplete(record.Items, record.Missing)
	return s.saveDraft(ctx, order.Key, record)
}

// FlagMissing adds a locally flagged missing entry. Ad hoc labels outside
// the fixed catalogs are accepted and gate completion like any other.
func (s *Service) FlagMissing(ctx context.Context, order domain.WorkOrder, label string) (domain.SafetyRecord, error) {
	if label == "" {
		return domain.SafetyRecord{}, apperr.Validation("missing-item label is required")
	}
	record, err := s.Load(ctx, order)
	if err != nil {
		return domain.SafetyRecord{}, err
	}

	record.Missing = append(record.Missing, domain.MissingItem{Label: label, Source: domain.MissingSourceLocal})
	record.Items = domain.ApplyMissing(record.Items, record.Missing)
	record.Completed = domain.IsChecklistComplete(record.Items, record.Missing)
	return s.saveDraft(ctx, order.Key, record)
}

// ClearMissing removes a locally flagged entry. Server-recorded entries are
// read-only and stay until the backend clears them.
func (s *Service) ClearMissing(ctx context.Context, order domain.WorkOrder, label string) (domain.SafetyRecord, error) {
	record, err := s.Load(ctx, order)
	if err != nil {
		return domain.SafetyRecord{}, err
	}

	kept := record.Missing[:0]
	removed := false
	for _, m := range record.Missing {
		if !removed && m.Source == domain.MissingSourceLocal && domain.SameLabel(m.Label, label) {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	if !removed {
		for _, m := range record.Missing {
			if m.Source == domain.MissingSourceServer && domain.SameLabel(m.Label, label) {
				return domain.SafetyRecord{}, apperr.Conflict(fmt.Sprintf("missing item %q was recorded by the backend and cannot be cleared locally", label))
			}
		}
		return domain.SafetyRecord{}, apperr.NotFound(fmt.Sprintf("no flagged missing item %q", label))
	}

	record.Missing = kept
	record.Items = domain.ApplyMissing(record.Items, record.Missing)
	record.Completed = domain.IsChecklistComplete(record.Items, record.Missing)
	return s.saveDraft(ctx, order.Key, record)
}

// SubmitResult reports a checklist submission. RemoteSynced is advisory.
type SubmitResult struct {
	Record       domain.SafetyRecord `json:"record"`
	RemoteSynced bool                `json:"remoteSynced"`
	RemoteError  string              `json:"remoteError,omitempty"`
}

// Submit persists the current checklist state and mirrors the completion
// flag and missing list into the backend order record.
func (s *Service) Submit(ctx context.Context, order domain.WorkOrder) (SubmitResult, error) {
	record, err := s.Load(ctx, order)
	if err != nil {
		return SubmitResult{}, err
	}
	record.Completed = domain.IsChecklistComplete(record.Items, record.Missing)
	record, err = s.saveDraft(ctx, order.Key, record)
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Record: record, RemoteSynced: true}
	patch := map[string]interface{}{"seguridad": remotePayload(record)}
	if err := s.orders.UpdateOrder(ctx, order.Key, patch); err != nil {
		s.log.RemoteSyncError("safety submit", order.Key, err)
		result.RemoteSynced = false
		result.RemoteError = err.Error()
		s.bus.Publish(ctx, events.OrderSyncFailed{
			BaseEvent: events.NewBaseEvent(),
			OrderKey:  order.Key,
			Reason:    err.Error(),
		})
	}

	s.bus.Publish(ctx, events.SafetyRecorded{
		BaseEvent:    events.NewBaseEvent(),
		OrderKey:     order.Key,
		Completed:    record.Completed,
		MissingCount: len(record.Missing),
	})
	return result, nil
}

func (s *Service) saveDraft(ctx context.Context, orderKey string, record domain.SafetyRecord) (domain.SafetyRecord, error) {
	record.UpdatedAt = time.Now().UTC()
	if err := s.cache.SetJSON(ctx, CachePrefix+orderKey, record); err != nil {
		return domain.SafetyRecord{}, apperr.Wrap(apperr.KindUnavailable, "persist safety draft", err).WithOp("checklist.saveDraft")
	}
	return record, nil
}

// restoreChecks copies the draft's checkbox state onto a freshly derived
// item list, so catalog or applicability changes never resurrect stale
// items.
func restoreChecks(items, draft []domain.ChecklistItem) []domain.ChecklistItem {
	byID := make(map[string]domain.ChecklistItem, len(draft))
	for _, item := range draft {
		byID[item.ID] = item
	}
	for i := range items {
		if prev, ok := byID[items[i].ID]; ok {
			items[i].Checked = prev.Checked
		}
	}
	return items
}

// remotePayload renders the checklist state in the backend's field
// vocabulary, matching the shape order normalization reads back.
func remotePayload(record domain.SafetyRecord) map[string]interface{} {
	labels := make([]string, 0, len(record.Missing))
	for _, m := range record.Missing {
		labels = append(labels, m.Label)
	}
	return map[string]interface{}{
		"completado":    record.Completed,
		"faltantes":     labels,
		"actualizadoEn": record.UpdatedAt.Format(time.RFC3339),
	}
}
