// Package ports defines the external interfaces the workshop context
// depends on. The backend ERP is an opaque remote order store; requisitions
// and expense orders are independent read-only collections used for
// material cross-referencing.
package ports

import "context"

// RawRecord is an order, requisition, or expense-order record exactly as
// the backend returned it. Field names vary across upstream systems, so
// records stay schemaless until normalized.
type RawRecord = map[string]interface{}

// OrderStore is the remote work order store.
type OrderStore interface {
	// FetchOrders returns raw order records matching the given filters.
	FetchOrders(ctx context.Context, filters map[string]string) ([]RawRecord, error)
	// UpdateOrder applies a partial payload to the order identified by key.
	// The write is an idempotent overwrite of the supplied fields.
	UpdateOrder(ctx context.Context, key string, patch map[string]interface{}) error
	// DeleteOrder requests deletion/completion of the order from the backend.
	DeleteOrder(ctx context.Context, key string) error
}

// RequisitionSource is the read-only requisition collection.
type RequisitionSource interface {
	FetchRequisitions(ctx context.Context, filter string) ([]RawRecord, error)
}

// ExpenseOrderSource is the read-only purchase/expense order collection.
type ExpenseOrderSource interface {
	FetchExpenseOrders(ctx context.Context) ([]RawRecord, error)
}
