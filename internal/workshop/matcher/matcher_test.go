package matcher

import (
	"context"
	"testing"

	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeRequisitions struct {
	records []ports.RawRecord
	calls   int
}

func (f *fakeRequisitions) FetchRequisitions(ctx context.Context, filter string) ([]ports.RawRecord, error) {
	f.calls++
	return f.records, nil
}

type fakeExpenseOrders struct {
	records []ports.RawRecord
	calls   int
}

func (f *fakeExpenseOrders) FetchExpenseOrders(ctx context.Context) ([]ports.RawRecord, error) {
	f.calls++
	return f.records, nil
}

func newTestMatcher(t *testing.T, reqs *fakeRequisitions, exps *fakeExpenseOrders) *Matcher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(reqs, exps, kvstore.New(client), logger.New("development"))
}

func orderWithRaw(key string, raw map[string]interface{}) domain.WorkOrder {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	raw["id"] = key
	order, err := domain.Normalize(raw)
	if err != nil {
		panic(err)
	}
	return order
}

func TestEmbeddedApprovedWinsWithoutQueryingRequisitions(t *testing.T) {
	reqs := &fakeRequisitions{records: []ports.RawRecord{
		{
			"ordenTrabajo": "OT-2025-013",
			"estado":       "aprobada",
			"materiales":   []interface{}{map[string]interface{}{"descripcion": "Requisición no esperada", "cantidad": float64(1)}},
		},
	}}
	exps := &fakeExpenseOrders{}
	m := newTestMatcher(t, reqs, exps)

	order := orderWithRaw("OT-2025-013", map[string]interface{}{
		"materiales": []interface{}{
			map[string]interface{}{"descripcion": "Lámina", "cantidad": float64(4), "estado": "aprobado"},
			map[string]interface{}{"descripcion": "Sin aprobar", "cantidad": float64(9), "estado": "cotizacion"},
		},
	})

	result, err := m.Match(context.Background(), order, false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceEmbedded {
		t.Fatalf("source = %q, want %q", result.Source, SourceEmbedded)
	}
	if len(result.Lines) != 1 || result.Lines[0].Description != "Lámina" {
		t.Errorf("lines = %+v", result.Lines)
	}
	if reqs.calls != 0 {
		t.Errorf("requisition source queried %d times; priority order requires 0", reqs.calls)
	}
	if exps.calls != 0 {
		t.Errorf("expense order source queried %d times; priority order requires 0", exps.calls)
	}
}

func TestManualMaterialsPassThrough(t *testing.T) {
	reqs := &fakeRequisitions{}
	m := newTestMatcher(t, reqs, &fakeExpenseOrders{})

	order := orderWithRaw("OT-7", map[string]interface{}{
		"materialesManuales": []interface{}{
			map[string]interface{}{"descripcion": "Tornillo 1/4", "cantidad": "20 pza"},
		},
	})

	result, err := m.Match(context.Background(), order, false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceManual {
		t.Fatalf("source = %q, want %q", result.Source, SourceManual)
	}
	if len(result.Lines) != 1 || result.Lines[0].QuantityRequired != 20 {
		t.Errorf("lines = %+v", result.Lines)
	}
	if reqs.calls != 0 {
		t.Errorf("requisitions queried for an order with manual materials")
	}
}

func TestRequisitionFuzzyMatch(t *testing.T) {
	reqs := &fakeRequisitions{records: []ports.RawRecord{
		{
			"referencia": "2025013",
			"estado":     "aprobada",
			"materiales": []interface{}{map[string]interface{}{"descripcion": "Ducto", "cantidad": float64(2)}},
		},
		{
			"referencia": "OT-2025-014",
			"estado":     "aprobada",
			"materiales": []interface{}{map[string]interface{}{"descripcion": "Otro", "cantidad": float64(5)}},
		},
	}}
	m := newTestMatcher(t, reqs, &fakeExpenseOrders{})

	result, err := m.Match(context.Background(), orderWithRaw("OT-2025-013", nil), false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceRequisition {
		t.Fatalf("source = %q, want %q", result.Source, SourceRequisition)
	}
	if len(result.Lines) != 1 || result.Lines[0].Description != "Ducto" {
		t.Errorf("lines = %+v (the OT-2025-014 requisition must not match)", result.Lines)
	}
}

func TestExpenseOrderFallback(t *testing.T) {
	exps := &fakeExpenseOrders{records: []ports.RawRecord{
		{
			"ot":       "OT-55",
			"estado":   "autorizada",
			"partidas": []interface{}{map[string]interface{}{"concepto": "Motor", "cantidad": float64(1)}},
		},
	}}
	m := newTestMatcher(t, &fakeRequisitions{}, exps)

	result, err := m.Match(context.Background(), orderWithRaw("OT-55", nil), false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceExpenseOrder {
		t.Fatalf("source = %q, want %q", result.Source, SourceExpenseOrder)
	}
	if len(result.Lines) != 1 || result.Lines[0].Description != "Motor" {
		t.Errorf("lines = %+v", result.Lines)
	}
}

func TestApprovedLineScanRetry(t *testing.T) {
	// Record-level status is not approved, but one line carries approval
	// metadata; the retry scan must find it.
	reqs := &fakeRequisitions{records: []ports.RawRecord{
		{
			"referencia": "OT-9",
			"estado":     "en revision",
			"materiales": []interface{}{
				map[string]interface{}{"descripcion": "Válvula", "cantidad": float64(3), "approvedBy": "jlopez"},
				map[string]interface{}{"descripcion": "Pendiente", "cantidad": float64(1)},
			},
		},
	}}
	m := newTestMatcher(t, reqs, &fakeExpenseOrders{})

	result, err := m.Match(context.Background(), orderWithRaw("OT-9", nil), false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceRequisition {
		t.Fatalf("source = %q, want %q", result.Source, SourceRequisition)
	}
	if len(result.Lines) != 1 || result.Lines[0].Description != "Válvula" {
		t.Errorf("lines = %+v", result.Lines)
	}
}

func TestNoMatchReturnsNone(t *testing.T) {
	m := newTestMatcher(t, &fakeRequisitions{}, &fakeExpenseOrders{})

	result, err := m.Match(context.Background(), orderWithRaw("OT-404", nil), false)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if result.Source != SourceNone {
		t.Errorf("source = %q, want %q", result.Source, SourceNone)
	}
	if len(result.Lines) != 0 {
		t.Errorf("lines = %+v, want empty", result.Lines)
	}
}

func TestMatchCachesPerOrderKey(t *testing.T) {
	reqs := &fakeRequisitions{records: []ports.RawRecord{
		{
			"referencia": "OT-1",
			"estado":     "aprobada",
			"materiales": []interface{}{map[string]interface{}{"descripcion": "Cable", "cantidad": float64(10)}},
		},
	}}
	m := newTestMatcher(t, reqs, &fakeExpenseOrders{})
	order := orderWithRaw("OT-1", nil)
	ctx := context.Background()

	if _, err := m.Match(ctx, order, false); err != nil {
		t.Fatalf("first Match: %v", err)
	}
	if _, err := m.Match(ctx, order, false); err != nil {
		t.Fatalf("second Match: %v", err)
	}
	if reqs.calls != 1 {
		t.Errorf("requisitions fetched %d times, want 1 (cached)", reqs.calls)
	}

	if _, err := m.Match(ctx, order, true); err != nil {
		t.Fatalf("forced Match: %v", err)
	}
	if reqs.calls != 2 {
		t.Errorf("requisitions fetched %d times after force, want 2", reqs.calls)
	}
}

func TestInvalidateDropsDurableEntry(t *testing.T) {
	reqs := &fakeRequisitions{records: []ports.RawRecord{
		{
			"referencia": "OT-2",
			"estado":     "aprobada",
			"materiales": []interface{}{map[string]interface{}{"descripcion": "Brida", "cantidad": float64(2)}},
		},
	}}
	m := newTestMatcher(t, reqs, &fakeExpenseOrders{})
	order := orderWithRaw("OT-2", nil)
	ctx := context.Background()

	if _, err := m.Match(ctx, order, false); err != nil {
		t.Fatalf("Match: %v", err)
	}
	m.Invalidate(ctx, "OT-2")
	if _, err := m.Match(ctx, order, false); err != nil {
		t.Fatalf("Match after invalidate: %v", err)
	}
	if reqs.calls != 2 {
		t.Errorf("requisitions fetched %d times, want 2 after invalidation", reqs.calls)
	}
}
