// Package matcher locates approved material line items for a work order by
// cross-referencing multiple independent sources with fuzzy key matching.
package matcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/internal/workshop/ports"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Source identifies where a match result came from.
type Source string

const (
	// SourceEmbedded: approved materials carried directly on the order record.
	SourceEmbedded Source = "embedded"
	// SourceManual: manually entered materials, no approval workflow.
	SourceManual Source = "manual"
	// SourceRequisition: external requisition records fuzzy-matched by reference.
	SourceRequisition Source = "requisition"
	// SourceExpenseOrder: external purchase/expense orders fuzzy-matched by reference.
	SourceExpenseOrder Source = "expense-order"
	// SourceNone: no approved materials located anywhere.
	SourceNone Source = "none"
)

// CachePrefix keys durable match-result entries.
const CachePrefix = "materials_"

// Result is a cached cross-source lookup outcome for one order key.
type Result struct {
	OrderKey  string                `json:"orderKey"`
	Source    Source                `json:"source"`
	Lines     []domain.MaterialLine `json:"lines"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// referenceFields are the foreign record fields compared against the order
// key. Free-text note fields are included because upstream users paste the
// order code into them.
var referenceFields = []string{"ordenTrabajo", "ot", "referencia", "orden", "folioOT", "folio", "notas", "observaciones"}

// lineFields are the names under which foreign records carry their line items.
var lineFields = []string{"materiales", "materials", "items", "partidas", "conceptos"}

// Matcher performs the prioritized cross-source search. The caches are owned
// by the instance, never ambient, so independent boards and tests do not
// share state.
type Matcher struct {
	requisitions  ports.RequisitionSource
	expenseOrders ports.ExpenseOrderSource
	cache         kvstore.Store
	log           *logger.Logger

	mu  sync.Mutex
	mem map[string]Result
}

// New creates a Matcher backed by the given sources and durable cache.
func New(requisitions ports.RequisitionSource, expenseOrders ports.ExpenseOrderSource, cache kvstore.Store, log *logger.Logger) *Matcher {
	return &Matcher{
		requisitions:  requisitions,
		expenseOrders: expenseOrders,
		cache:         cache,
		log:           log,
		mem:           make(map[string]Result),
	}
}

// Match searches the sources in priority order, stopping at the first
// non-empty result:
//
//  1. approved materials embedded on the order record
//  2. manually entered materials on the order (pass-through)
//  3. requisitions whose reference fuzzy-matches the order key
//  4. purchase/expense orders whose reference fuzzy-matches the order key
//
// When none yield lines, an approved-line scan is retried across the
// requisition/expense-order candidates before returning an empty result
// tagged SourceNone. An empty result is never an error.
//
// Results are cached per order key in memory and in the durable cache;
// force bypasses and refreshes both.
func (m *Matcher) Match(ctx context.Context, order domain.WorkOrder, force bool) (Result, error) {
	if !force {
		if cached, ok := m.cached(ctx, order.Key); ok {
			return cached, nil
		}
	}

	result := m.search(ctx, order)
	m.store(ctx, result)
	return result, nil
}

// Invalidate drops any cached result for the key so the next Match runs a
// fresh search.
func (m *Matcher) Invalidate(ctx context.Context, orderKey string) {
	m.mu.Lock()
	delete(m.mem, orderKey)
	m.mu.Unlock()

	if err := m.cache.Delete(ctx, CachePrefix+orderKey); err != nil {
		m.log.CacheError("invalidate", CachePrefix+orderKey, err)
	}
}

func (m *Matcher) search(ctx context.Context, order domain.WorkOrder) Result {
	result := Result{OrderKey: order.Key, Source: SourceNone, FetchedAt: time.Now()}

	if lines := embeddedApproved(order.Raw); len(lines) > 0 {
		result.Source = SourceEmbedded
		result.Lines = domain.AggregateLines(lines)
		return result
	}

	if lines := manualLines(order.Raw); len(lines) > 0 {
		result.Source = SourceManual
		result.Lines = domain.AggregateLines(lines)
		return result
	}

	requisitions, expenses := m.fetchPools(ctx, order.Key)

	matchedReqs := matchingRecords(requisitions, order.Key)
	if lines := recordLines(matchedReqs, true); len(lines) > 0 {
		result.Source = SourceRequisition
		result.Lines = domain.AggregateLines(lines)
		return result
	}

	matchedExpenses := matchingRecords(expenses, order.Key)
	if lines := recordLines(matchedExpenses, true); len(lines) > 0 {
		result.Source = SourceExpenseOrder
		result.Lines = domain.AggregateLines(lines)
		return result
	}

	// Retry: relax the record-level approval requirement and scan the
	// candidate pools for individually approved lines.
	if lines := approvedLineScan(matchedReqs); len(lines) > 0 {
		result.Source = SourceRequisition
		result.Lines = domain.AggregateLines(lines)
		return result
	}
	if lines := approvedLineScan(matchedExpenses); len(lines) > 0 {
		result.Source = SourceExpenseOrder
		result.Lines = domain.AggregateLines(lines)
		return result
	}

	return result
}

// fetchPools loads both candidate pools concurrently. A failed fetch leaves
// its pool empty; matching degrades instead of erroring.
func (m *Matcher) fetchPools(ctx context.Context, orderKey string) (requisitions, expenses []ports.RawRecord) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		records, err := m.requisitions.FetchRequisitions(gctx, orderKey)
		if err != nil {
			m.log.RemoteSyncError("fetch_requisitions", orderKey, err)
			return nil
		}
		requisitions = records
		return nil
	})

	g.Go(func() error {
		records, err := m.expenseOrders.FetchExpenseOrders(gctx)
		if err != nil {
			m.log.RemoteSyncError("fetch_expense_orders", orderKey, err)
			return nil
		}
		expenses = records
		return nil
	})

	_ = g.Wait()
	return requisitions, expenses
}

func (m *Matcher) cached(ctx context.Context, orderKey string) (Result, bool) {
	m.mu.Lock()
	cached, ok := m.mem[orderKey]
	m.mu.Unlock()
	if ok {
		return cached, true
	}

	var durable Result
	found, err := m.cache.GetJSON(ctx, CachePrefix+orderKey, &durable)
	if err != nil {
		m.log.CacheError("get", CachePrefix+orderKey, err)
		return Result{}, false
	}
	if !found || durable.OrderKey != orderKey {
		return Result{}, false
	}

	m.mu.Lock()
	m.mem[orderKey] = durable
	m.mu.Unlock()
	return durable, true
}

func (m *Matcher) store(ctx context.Context, result Result) {
	m.mu.Lock()
	m.mem[result.OrderKey] = result
	m.mu.Unlock()

	if err := m.cache.SetJSON(ctx, CachePrefix+result.OrderKey, result); err != nil {
		m.log.CacheError("set", CachePrefix+result.OrderKey, err)
	}
}

// =============================================================================
// Record filtering
// =============================================================================

// matchingRecords keeps the records whose reference fields fuzzy-match the
// order key.
func matchingRecords(records []ports.RawRecord, orderKey string) []ports.RawRecord {
	matched := make([]ports.RawRecord, 0, len(records))
	for _, record := range records {
		if recordMatchesKey(record, orderKey) {
			matched = append(matched, record)
		}
	}
	return matched
}

func recordMatchesKey(record ports.RawRecord, orderKey string) bool {
	for _, field := range referenceFields {
		value, ok := record[field]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString {
			if domain.KeysMatch(orderKey, s) {
				return true
			}
			continue
		}
		if domain.KeysMatch(orderKey, stringify(value)) {
			return true
		}
	}
	return false
}

// recordLines collects line items from the records. With approvedOnly set,
// a record contributes only when the record itself looks approved.
func recordLines(records []ports.RawRecord, approvedOnly bool) []domain.MaterialLine {
	var lines []domain.MaterialLine
	for _, record := range records {
		if approvedOnly && !recordApproved(record) {
			continue
		}
		for _, raw := range rawLines(record) {
			lines = append(lines, domain.NormalizeLine(raw))
		}
	}
	return lines
}

// approvedLineScan collects individually approved lines regardless of the
// parent record's status.
func approvedLineScan(records []ports.RawRecord) []domain.MaterialLine {
	var lines []domain.MaterialLine
	for _, record := range records {
		for _, raw := range rawLines(record) {
			if lineApproved(raw) {
				lines = append(lines, domain.NormalizeLine(raw))
			}
		}
	}
	return lines
}

func rawLines(record ports.RawRecord) []map[string]interface{} {
	for _, field := range lineFields {
		items, ok := record[field].([]interface{})
		if !ok || len(items) == 0 {
			continue
		}
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			if line, ok := item.(map[string]interface{}); ok {
				out = append(out, line)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// embeddedApproved returns the order's embedded materials that pass the
// approval heuristic.
func embeddedApproved(raw map[string]interface{}) []domain.MaterialLine {
	if raw == nil {
		return nil
	}
	var lines []domain.MaterialLine
	for _, entry := range rawLines(raw) {
		if lineApproved(entry) {
			lines = append(lines, domain.NormalizeLine(entry))
		}
	}
	return lines
}

// manualLines returns manually entered materials; no approval required.
func manualLines(raw map[string]interface{}) []domain.MaterialLine {
	if raw == nil {
		return nil
	}
	for _, field := range []string{"materialesManuales", "manuales", "manualMaterials"} {
		items, ok := raw[field].([]interface{})
		if !ok {
			continue
		}
		var lines []domain.MaterialLine
		for _, item := range items {
			if line, ok := item.(map[string]interface{}); ok {
				lines = append(lines, domain.NormalizeLine(line))
			}
		}
		if len(lines) > 0 {
			return lines
		}
	}
	return nil
}

// lineApproved is the approval heuristic: an approved-like status substring,
// an explicit boolean, or the presence of approval metadata.
func lineApproved(line map[string]interface{}) bool {
	for _, field := range []string{"estado", "status", "estatus"} {
		if s, ok := line[field].(string); ok && approvedText(s) {
			return true
		}
	}
	for _, field := range []string{"aprobado", "approved", "autorizado"} {
		if b, ok := line[field].(bool); ok && b {
			return true
		}
	}
	for _, field := range []string{"approvedAt", "approvedBy", "fechaAprobacion", "aprobadoPor"} {
		if v, ok := line[field]; ok && v != nil && stringify(v) != "" {
			return true
		}
	}
	return false
}

// recordApproved applies the same heuristic at the record level.
func recordApproved(record ports.RawRecord) bool {
	return lineApproved(record)
}

func approvedText(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "aprob") || strings.Contains(lower, "approved") || strings.Contains(lower, "autoriz")
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
