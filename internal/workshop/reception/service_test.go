package reception

import (
	"context"
	"errors"
	"sync"
	"testing"

	"workshop_portal_backend/internal/events"
	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/matcher"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeOrderStore struct {
	mu      sync.Mutex
	patches map[string][]map[string]interface{}
	fail    error
}

func (f *fakeOrderStore) FetchOrders(ctx context.Context, filters map[string]string) ([]ports.RawRecord, error) {
	return nil, nil
}

func (f *fakeOrderStore) UpdateOrder(ctx context.Context, key string, patch map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.patches == nil {
		f.patches = map[string][]map[string]interface{}{}
	}
	f.patches[key] = append(f.patches[key], patch)
	return nil
}

func (f *fakeOrderStore) DeleteOrder(ctx context.Context, key string) error { return nil }

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, e := range b.events {
		names = append(names, e.EventName())
	}
	return names
}

type emptyRequisitions struct{}

func (emptyRequisitions) FetchRequisitions(ctx context.Context, filter string) ([]ports.RawRecord, error) {
	return nil, nil
}

type emptyExpenseOrders struct{}

func (emptyExpenseOrders) FetchExpenseOrders(ctx context.Context) ([]ports.RawRecord, error) {
	return nil, nil
}

func newTestService(t *testing.T, orders *fakeOrderStore, bus *recordingBus) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kvstore.New(client)
	log := logger.New("development")
	m := matcher.New(emptyRequisitions{}, emptyExpenseOrders{}, store, log)
	return NewService(orders, m, store, bus, log)
}

func testOrder(t *testing.T, key string, raw map[string]interface{}) domain.WorkOrder {
	t.Helper()
	if raw == nil {
		raw = map[string]interface{}{}
	}
	raw["id"] = key
	order, err := domain.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return order
}

func TestRecalculate(t *testing.T) {
	ledger := Ledger{
		OrderKey: "OT-1",
		Materials: []domain.MaterialLine{
			{Description: "Lamina", QuantityRequired: 8, QuantityReceived: 3},
			{Description: "Tornillo", QuantityRequired: 20, QuantityReceived: 25},
		},
	}
	ledger.Recalculate()

	if got := ledger.Materials[0].QuantityMissing; got != 5 {
		t.Errorf("missing[0] = %v, want 5", got)
	}
	if got := ledger.Materials[1].QuantityMissing; got != 0 {
		t.Errorf("missing[1] = %v, want 0 (over-delivery clamps)", got)
	}
	if ledger.PendingTotal != 5 {
		t.Errorf("pendingTotal = %v, want 5", ledger.PendingTotal)
	}
	if ledger.Status != StatusComplete {
		t.Errorf("status = %q, want %q (28 received >= 28 required)", ledger.Status, StatusComplete)
	}

	ledger.Materials[1].QuantityReceived = 10
	ledger.Recalculate()
	if ledger.Status != StatusPartial {
		t.Errorf("status = %q, want %q", ledger.Status, StatusPartial)
	}
}

func TestLoadSeedsDraftFromMatchedMaterials(t *testing.T) {
	svc := newTestService(t, &fakeOrderStore{}, &recordingBus{})
	order := testOrder(t, "OT-1", map[string]interface{}{
		"materiales": []interface{}{
			map[string]interface{}{"descripcion": "Ducto", "cantidad": float64(4), "estado": "aprobado"},
		},
	})

	result, err := svc.Load(context.Background(), order)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.FromServer {
		t.Error("FromServer = true for a seeded draft")
	}
	if len(result.Ledger.Materials) != 1 || result.Ledger.Materials[0].Description != "Ducto" {
		t.Fatalf("materials = %+v", result.Ledger.Materials)
	}
	if result.Ledger.PendingTotal != 4 {
		t.Errorf("pendingTotal = %v, want 4", result.Ledger.PendingTotal)
	}
}

func TestDraftSurvivesReload(t *testing.T) {
	svc := newTestService(t, &fakeOrderStore{}, &recordingBus{})
	order := testOrder(t, "OT-2", nil)
	ctx := context.Background()

	draft := Ledger{
		OrderKey:  "OT-2",
		Materials: []domain.MaterialLine{{Description: "Brida", QuantityRequired: 2, QuantityReceived: 1}},
		Notes:     "llegó dañada una pieza",
	}
	if _, err := svc.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	result, err := svc.Load(ctx, order)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Ledger.Notes != "llegó dañada una pieza" {
		t.Errorf("notes = %q", result.Ledger.Notes)
	}
	if result.Ledger.Materials[0].QuantityMissing != 1 {
		t.Errorf("missing = %v, want 1", result.Ledger.Materials[0].QuantityMissing)
	}
}

func TestServerConfirmedWinsOverDraft(t *testing.T) {
	svc := newTestService(t, &fakeOrderStore{}, &recordingBus{})
	ctx := context.Background()

	draft := Ledger{
		OrderKey:  "OT-3",
		Materials: []domain.MaterialLine{{Description: "Cable", QuantityRequired: 10, QuantityReceived: 2}},
	}
	if _, err := svc.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	order := testOrder(t, "OT-3", map[string]interface{}{
		"recepcion": map[string]interface{}{
			"materiales": []interface{}{
				map[string]interface{}{"descripcion": "Cable", "cantidad": float64(10), "cantidadRecibida": float64(7)},
			},
		},
	})

	result, err := svc.Load(ctx, order)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !result.FromServer {
		t.Fatal("FromServer = false, want server precedence")
	}
	if got := result.Ledger.Materials[0].QuantityReceived; got != 7 {
		t.Errorf("received = %v, want 7 (backend copy)", got)
	}
}

func TestEmptyServerRecordFallsBackToDraft(t *testing.T) {
	svc := newTestService(t, &fakeOrderStore{}, &recordingBus{})
	ctx := context.Background()

	draft := Ledger{
		OrderKey:  "OT-4",
		Materials: []domain.MaterialLine{{Description: "Motor", QuantityRequired: 1}},
	}
	if _, err := svc.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	order := testOrder(t, "OT-4", map[string]interface{}{
		"recepcion": map[string]interface{}{"materiales": []interface{}{}, "notas": "sin registrar"},
	})

	result, err := svc.Load(ctx, order)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.FromServer {
		t.Error("empty backend materials list must not shadow the draft")
	}
	if len(result.Ledger.Materials) != 1 || result.Ledger.Materials[0].Description != "Motor" {
		t.Errorf("materials = %+v", result.Ledger.Materials)
	}
}

func TestReceiveLine(t *testing.T) {
	svc := newTestService(t, &fakeOrderStore{}, &recordingBus{})
	order := testOrder(t, "OT-5", map[string]interface{}{
		"materiales": []interface{}{
			map[string]interface{}{"descripcion": "Lamina", "cantidad": float64(8), "estado": "aprobado"},
		},
	})
	ctx := context.Background()

	ledger, err := svc.ReceiveLine(ctx, order, "lamina", 3)
	if err != nil {
		t.Fatalf("ReceiveLine: %v", err)
	}
	if ledger.PendingTotal != 5 {
		t.Errorf("pendingTotal = %v, want 5", ledger.PendingTotal)
	}

	if _, err := svc.ReceiveLine(ctx, order, "no-such-line", 1); err == nil {
		t.Error("ReceiveLine with unknown key: want error")
	}
}

func TestSubmitMirrorsLedgerToBackend(t *testing.T) {
	orders := &fakeOrderStore{}
	bus := &recordingBus{}
	svc := newTestService(t, orders, bus)

	ledger := Ledger{
		OrderKey:  "OT-6",
		Materials: []domain.MaterialLine{{Description: "Válvula", QuantityRequired: 3, QuantityReceived: 3}},
		Issues:    []string{"empaque roto"},
	}
	result, err := svc.Submit(context.Background(), ledger)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.RemoteSynced {
		t.Errorf("RemoteSynced = false: %s", result.RemoteError)
	}
	if result.Ledger.Status != StatusComplete {
		t.Errorf("status = %q", result.Ledger.Status)
	}

	patches := orders.patches["OT-6"]
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	payload, ok := patches[0]["recepcion"].(map[string]interface{})
	if !ok {
		t.Fatalf("patch missing recepcion payload: %+v", patches[0])
	}
	if payload["estatus"] != string(StatusComplete) {
		t.Errorf("estatus = %v", payload["estatus"])
	}

	names := bus.names()
	if len(names) != 1 || names[0] != "workshop.reception.recorded" {
		t.Errorf("events = %v", names)
	}
}

func TestSubmitRemoteFailureKeepsLocalState(t *testing.T) {
	orders := &fakeOrderStore{fail: errors.New("erp unavailable")}
	bus := &recordingBus{}
	svc := newTestService(t, orders, bus)
	ctx := context.Background()

	ledger := Ledger{
		OrderKey:  "OT-7",
		Materials: []domain.MaterialLine{{Description: "Ducto", QuantityRequired: 2, QuantityReceived: 1}},
	}
	result, err := svc.Submit(ctx, ledger)
	if err != nil {
		t.Fatalf("Submit must not fail on remote errors: %v", err)
	}
	if result.RemoteSynced {
		t.Error("RemoteSynced = true despite backend failure")
	}

	// The submitted ledger is still the durable draft.
	order := testOrder(t, "OT-7", nil)
	loaded, err := svc.Load(ctx, order)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Ledger.Materials) != 1 || loaded.Ledger.Materials[0].QuantityReceived != 1 {
		t.Errorf("draft = %+v", loaded.Ledger)
	}

	names := bus.names()
	if len(names) != 2 || names[0] != "workshop.order.sync_failed" || names[1] != "workshop.reception.recorded" {
		t.Errorf("events = %v", names)
	}
}
