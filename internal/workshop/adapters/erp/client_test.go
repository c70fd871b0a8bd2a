package erp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"workshop_portal_backend/platform/logger"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetERPBaseURL() string        { return c.baseURL }
func (c testConfig) GetERPAPIKey() string         { return "test-key" }
func (c testConfig) GetERPTimeout() time.Duration { return 5 * time.Second }

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(testConfig{baseURL: server.URL}, logger.New("development"))
}

func TestFetchOrdersBareArray(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ordenes-trabajo" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("estado"); got != "en progreso" {
			t.Errorf("filter estado = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":"OT-1","estado":"en progreso"}]`))
	}))

	records, err := client.FetchOrders(context.Background(), map[string]string{"estado": "en progreso"})
	if err != nil {
		t.Fatalf("FetchOrders: %v", err)
	}
	if len(records) != 1 || records[0]["id"] != "OT-1" {
		t.Errorf("records = %+v", records)
	}
}

func TestFetchOrdersEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":2,"data":[{"id":"OT-1"},{"id":"OT-2"}]}`))
	}))

	records, err := client.FetchOrders(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchOrders: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %+v", records)
	}
}

func TestUpdateOrder(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateOrder(context.Background(), "OT-1", map[string]interface{}{"progreso": 75})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/ordenes-trabajo/OT-1" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody["progreso"] != float64(75) {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestUpdateOrderErrorStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "orden bloqueada", http.StatusConflict)
	}))

	if err := client.UpdateOrder(context.Background(), "OT-1", map[string]interface{}{}); err == nil {
		t.Fatal("want error on 409")
	}
}

func TestDeleteOrderToleratesNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.DeleteOrder(context.Background(), "OT-1"); err != nil {
		t.Fatalf("DeleteOrder on already-deleted order: %v", err)
	}
}

func TestFetchRequisitionsFilter(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/requisiciones" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("filtro"); got != "aprobada" {
			t.Errorf("filtro = %q", got)
		}
		_, _ = w.Write([]byte(`{"resultados":[{"referencia":"OT-1"}]}`))
	}))

	records, err := client.FetchRequisitions(context.Background(), "aprobada")
	if err != nil {
		t.Fatalf("FetchRequisitions: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records = %+v", records)
	}
}
