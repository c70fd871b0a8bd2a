// Package reception tracks per-order material reception: received vs
// required quantities per line, free-text notes and issues, and the
// order-level pending total. Edits live as a local draft until explicitly
// submitted; a submitted ledger is mirrored into the backend order record
// and becomes the confirmed copy on reload.
package reception

import (
	"context"
	"fmt"
	"time"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/matcher"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/apperr"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"
)

// CachePrefix namespaces reception drafts in the durable cache.
const CachePrefix = "reception_"

// Status of an order's reception ledger.
type Status string

const (
	StatusPartial  Status = "partial"
	StatusComplete Status = "complete"
)

// Ledger is the per-order reception record.
type Ledger struct {
	OrderKey     string                `json:"orderKey"`
	Materials    []domain.MaterialLine `json:"materials"`
	Notes        string                `json:"notes,omitempty"`
	Issues       []string              `json:"issues,omitempty"`
	PendingTotal float64               `json:"pendingTotal"`
	Status       Status                `json:"status"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// HasData reports whether the ledger carries any material lines. An empty
// confirmed copy never shadows a local draft.
func (l Ledger) HasData() bool { return len(l.Materials) > 0 }

// Recalculate rederives the per-line missing quantities, the order-level
// pending total, and the status from the current quantities. Missing never
// goes negative; over-delivery counts as satisfied.
func (l *Ledger) Recalculate() {
	var required, received, pending float64
	for i := range l.Materials {
		line := &l.Materials[i]
		missing := line.QuantityRequired - line.QuantityReceived
		if missing < 0 {
			missing = 0
		}
		line.QuantityMissing = missing
		required += line.QuantityRequired
		received += line.QuantityReceived
		pending += missing
	}
	l.PendingTotal = pending
	if received >= required {
		l.Status = StatusComplete
	} else {
		l.Status = StatusPartial
	}
}

// LoadResult is a resolved ledger plus where it came from.
type LoadResult struct {
	Ledger     Ledger `json:"ledger"`
	FromServer bool   `json:"fromServer"`
}

// Service owns reception ledgers. It resolves the confirmed/draft pair on
// load, persists drafts on every change, and mirrors submissions into the
// backend order record.
type Service struct {
	orders  ports.OrderStore
	matcher *matcher.Matcher
	cache   kvstore.Store
	bus     events.Bus
	log     *logger.Logger
}

func NewService(orders ports.OrderStore, m *matcher.Matcher, cache kvstore.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{orders: orders, matcher: m, cache: cache, bus: bus, log: log}
}

// Load returns the ledger for the order. The backend-confirmed record wins
// whenever its materials list is non-empty; otherwise the local draft is
// used, seeded from the material match when no draft exists yet.
func (s *Service) Load(ctx context.Context, order domain.WorkOrder) (LoadResult, error) {
	state := domain.DualState[Ledger]{}

	if confirmed, ok := confirmedLedger(order); ok {
		state.Confirmed = &confirmed
	}

	found, err := s.cache.GetJSON(ctx, CachePrefix+order.Key, &state.Draft)
	if err != nil {
		s.log.CacheError("load reception draft", order.Key, err)
		found = false
	}
	if !found {
		draft, err := s.seedDraft(ctx, order)
		if err != nil {
			return LoadResult{}, err
		}
		state.Draft = draft
	}
	state.Draft.OrderKey = order.Key
	state.Draft.Recalculate()

	resolved := state.Resolve(Ledger.HasData)
	return LoadResult{Ledger: resolved, FromServer: state.FromServer(Ledger.HasData)}, nil
}

// SaveDraft recomputes the ledger totals and persists it as the order's
// local draft. Called on every edit so in-progress work survives reloads.
func (s *Service) SaveDraft(ctx context.Context, ledger Ledger) (Ledger, error) {
	if ledger.OrderKey == "" {
		return Ledger{}, apperr.Validation("reception ledger requires an order key")
	}
	ledger.Recalculate()
	ledger.UpdatedAt = time.Now().UTC()
	if err := s.cache.SetJSON(ctx, CachePrefix+ledger.OrderKey, ledger); err != nil {
		return Ledger{}, apperr.Wrap(apperr.KindUnavailable, "persist reception draft", err).WithOp("reception.SaveDraft")
	}
	return ledger, nil
}

// ReceiveLine applies a received quantity to the draft line matching the
// given identity key and persists the updated draft.
func (s *Service) ReceiveLine(ctx context.Context, order domain.WorkOrder, lineKey string, received float64) (Ledger, error) {
	result, err := s.Load(ctx, order)
	if err != nil {
		return Ledger{}, err
	}
	ledger := result.Ledger
	updated := false
	for i := range ledger.Materials {
		if ledger.Materials[i].IdentityKey() == lineKey {
			ledger.Materials[i].QuantityReceived = received
			updated = true
			break
		}
	}
	if !updated {
		return Ledger{}, apperr.NotFound(fmt.Sprintf("no material line %q on order %s", lineKey, order.Key))
	}
	return s.SaveDraft(ctx, ledger)
}

// SubmitResult reports a submission outcome. RemoteSynced is advisory: a
// failed backend write never discards the locally persisted ledger.
type SubmitResult struct {
	Ledger       Ledger `json:"ledger"`
	RemoteSynced bool   `json:"remoteSynced"`
	RemoteError  string `json:"remoteError,omitempty"`
}

// Submit upserts the full ledger into the durable cache and mirrors it into
// the backend order record as an idempotent overwrite of the reception field.
func (s *Service) Submit(ctx context.Context, ledger Ledger) (SubmitResult, error) {
	saved, err := s.SaveDraft(ctx, ledger)
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Ledger: saved, RemoteSynced: true}
	patch := map[string]interface{}{"recepcion": remotePayload(saved)}
	if err := s.orders.UpdateOrder(ctx, saved.OrderKey, patch); err != nil {
		s.log.RemoteSyncError("reception submit", saved.OrderKey, err)
		result.RemoteSynced = false
		result.RemoteError = err.Error()
		s.bus.Publish(ctx, events.OrderSyncFailed{
			BaseEvent: events.NewBaseEvent(),
			OrderKey:  saved.OrderKey,
			Reason:    err.Error(),
		})
	}

	s.bus.Publish(ctx, events.ReceptionRecorded{
		BaseEvent:    events.NewBaseEvent(),
		OrderKey:     saved.OrderKey,
		Status:       string(saved.Status),
		PendingTotal: saved.PendingTotal,
	})
	return result, nil
}

// seedDraft builds a fresh draft from the order's matched materials.
func (s *Service) seedDraft(ctx context.Context, order domain.WorkOrder) (Ledger, error) {
	match, err := s.matcher.Match(ctx, order, false)
	if err != nil {
		return Ledger{}, err
	}
	ledger := Ledger{OrderKey: order.Key, Materials: match.Lines}
	ledger.Recalculate()
	return ledger, nil
}

// confirmedLedger extracts the backend-recorded reception payload from the
// raw order record, if present.
func confirmedLedger(order domain.WorkOrder) (Ledger, bool) {
	if order.Raw == nil {
		return Ledger{}, false
	}
	var payload map[string]interface{}
	for _, field := range []string{"recepcion", "recepción", "reception"} {
		if m, ok := order.Raw[field].(map[string]interface{}); ok {
			payload = m
			break
		}
	}
	if payload == nil {
		return Ledger{}, false
	}

	ledger := Ledger{OrderKey: order.Key}
	if items, ok := payload["materiales"].([]interface{}); ok {
		ledger.Materials = linesFromItems(items)
	} else if items, ok := payload["materials"].([]interface{}); ok {
		ledger.Materials = linesFromItems(items)
	}
	if notes, ok := payload["notas"].(string); ok {
		ledger.Notes = notes
	} else if notes, ok := payload["notes"].(string); ok {
		ledger.Notes = notes
	}
	for _, field := range []string{"incidencias", "issues"} {
		items, ok := payload[field].([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				ledger.Issues = append(ledger.Issues, s)
			}
		}
		break
	}
	if stamp, ok := payload["actualizadoEn"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			ledger.UpdatedAt = parsed
		}
	}
	ledger.Recalculate()
	return ledger, true
}

func linesFromItems(items []interface{}) []domain.MaterialLine {
	var lines []domain.MaterialLine
	for _, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		lines = append(lines, domain.NormalizeLine(raw))
	}
	return lines
}

// remotePayload renders the ledger in the backend's field vocabulary.
func remotePayload(l Ledger) map[string]interface{} {
	lines := make([]interface{}, 0, len(l.Materials))
	for _, line := range l.Materials {
		entry := map[string]interface{}{
			"descripcion":      line.Description,
			"cantidad":         line.QuantityRequired,
			"cantidadRecibida": line.QuantityReceived,
		}
		if line.Code != "" {
			entry["codigo"] = line.Code
		}
		if line.Unit != "" {
			entry["unidad"] = line.Unit
		}
		lines = append(lines, entry)
	}
	payload := map[string]interface{}{
		"materiales":     lines,
		"pendienteTotal": l.PendingTotal,
		"estatus":        string(l.Status),
		"actualizadoEn":  l.UpdatedAt.Format(time.RFC3339),
	}
	if l.Notes != "" {
		payload["notas"] = l.Notes
	}
	if len(l.Issues) > 0 {
		payload["incidencias"] = l.Issues
	}
	return payload
}
