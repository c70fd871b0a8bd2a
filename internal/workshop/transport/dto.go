// Package transport defines the HTTP request and response shapes for the
// workshop module.
package transport

// BoardQuery carries the board list filters passed through to the backend.
type BoardQuery struct {
	Estado    string `form:"estado"`
	Prioridad string `form:"prioridad"`
	Cliente   string `form:"cliente"`
}

// Filters renders the query as backend filter parameters, skipping empty
// values.
func (q BoardQuery) Filters() map[string]string {
	filters := make(map[string]string, 3)
	if q.Estado != "" {
		filters["estado"] = q.Estado
	}
	if q.Prioridad != "" {
		filters["prioridad"] = q.Prioridad
	}
	if q.Cliente != "" {
		filters["cliente"] = q.Cliente
	}
	return filters
}

// MaterialsQuery controls the material match endpoint.
type MaterialsQuery struct {
	Refresh bool `form:"refresh"`
}

// ChangeOrderRequest appends one change order entry.
type ChangeOrderRequest struct {
	Description string `json:"description" validate:"required,min=3,max=500"`
}

// MaterialLineRequest is one edited reception line.
type MaterialLineRequest struct {
	Code             string  `json:"code"`
	Description      string  `json:"description" validate:"required"`
	Unit             string  `json:"unit"`
	QuantityRequired float64 `json:"quantityRequired" validate:"gte=0"`
	QuantityReceived float64 `json:"quantityReceived" validate:"gte=0"`
}

// ReceptionDraftRequest replaces the order's reception draft.
type ReceptionDraftRequest struct {
	Materials []MaterialLineRequest `json:"materials" validate:"dive"`
	Notes     string                `json:"notes" validate:"max=2000"`
	Issues    []string              `json:"issues" validate:"dive,min=1,max=500"`
}

// ReceiveLineRequest records a received quantity for one line of the
// current draft.
type ReceiveLineRequest struct {
	LineKey  string  `json:"lineKey" validate:"required"`
	Received float64 `json:"received" validate:"gte=0"`
}

// SetCheckedRequest toggles one checklist item.
type SetCheckedRequest struct {
	Checked *bool `json:"checked" validate:"required"`
}

// FlagMissingRequest flags a missing safety item. Ad hoc labels are
// allowed.
type FlagMissingRequest struct {
	Label string `json:"label" validate:"required,min=2,max=200"`
}
