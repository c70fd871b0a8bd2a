// Package erp is the HTTP adapter for the remote ERP that owns work
// orders, requisitions, and expense orders. It implements the workshop
// ports against the ERP's JSON endpoints and normalizes nothing: records
// come back raw and schemaless for the domain layer to interpret.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/config"
	"workshop_portal_backend/platform/logger"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(cfg config.ERPConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetERPBaseURL(), "/"),
		apiKey:  cfg.GetERPAPIKey(),
		http:    &http.Client{Timeout: cfg.GetERPTimeout()},
		log:     log,
	}
}

// FetchOrders returns raw work order records. Filters pass through as
// query parameters.
func (c *Client) FetchOrders(ctx context.Context, filters map[string]string) ([]ports.RawRecord, error) {
	endpoint := c.baseURL + "/ordenes-trabajo"
	if len(filters) > 0 {
		query := url.Values{}
		for key, value := range filters {
			query.Set(key, value)
		}
		endpoint += "?" + query.Encode()
	}
	return c.fetchRecords(ctx, endpoint)
}

// UpdateOrder applies a partial payload to one order.
func (c *Client) UpdateOrder(ctx context.Context, key string, patch map[string]interface{}) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal order patch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/ordenes-trabajo/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("erp update request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError("update order", resp)
	}
	return nil
}

// DeleteOrder requests deletion/completion of one order.
func (c *Client) DeleteOrder(ctx context.Context, key string) error {
	endpoint := fmt.Sprintf("%s/ordenes-trabajo/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("erp delete request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return responseError("delete order", resp)
	}
	return nil
}

// FetchRequisitions returns raw requisition records.
func (c *Client) FetchRequisitions(ctx context.Context, filter string) ([]ports.RawRecord, error) {
	endpoint := c.baseURL + "/requisiciones"
	if filter != "" {
		endpoint += "?filtro=" + url.QueryEscape(filter)
	}
	return c.fetchRecords(ctx, endpoint)
}

// FetchExpenseOrders returns raw purchase/expense order records.
func (c *Client) FetchExpenseOrders(ctx context.Context) ([]ports.RawRecord, error) {
	return c.fetchRecords(ctx, c.baseURL+"/ordenes-gasto")
}

func (c *Client) fetchRecords(ctx context.Context, endpoint string) ([]ports.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erp fetch request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, responseError("fetch", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read erp response: %w", err)
	}
	return decodeRecords(data)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// decodeRecords accepts both response shapes the ERP produces: a bare JSON
// array and an array wrapped in a data/items/resultados envelope.
func decodeRecords(data []byte) ([]ports.RawRecord, error) {
	var bare []ports.RawRecord
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode erp response: %w", err)
	}
	for _, field := range []string{"data", "items", "resultados", "ordenes"} {
		raw, ok := envelope[field]
		if !ok {
			continue
		}
		var records []ports.RawRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode erp %s field: %w", field, err)
		}
		return records, nil
	}
	return nil, fmt.Errorf("erp response carries no record array")
}

func responseError(operation string, resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("erp %s returned %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
}
