package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoStableKey marks a raw record with no usable identity. Such records
// cannot participate in stage tracking and are excluded from the board,
// but callers keep them in raw listings.
var ErrNoStableKey = errors.New("work order has no stable key")

// keyFields are tried in order when deriving the canonical order key.
var keyFields = []string{"id", "ordenTrabajo", "folio"}

// DeriveKey returns the canonical order key: the first non-empty of
// id, ordenTrabajo, folio, raw.id, raw.folio, trimmed to a string.
func DeriveKey(raw map[string]interface{}) (string, error) {
	for _, field := range keyFields {
		if v := stringValue(raw[field]); v != "" {
			return v, nil
		}
	}
	if nested, ok := raw["raw"].(map[string]interface{}); ok {
		for _, field := range []string{"id", "folio"} {
			if v := stringValue(nested[field]); v != "" {
				return v, nil
			}
		}
	}
	return "", ErrNoStableKey
}

// stageSynonyms maps lowercased backend status text to canonical stages.
// Upstream systems use free text, mostly Spanish, for the same five stages.
var stageSynonyms = map[string]Stage{
	"material-reception":     StageMaterialReception,
	"recepcion material":     StageMaterialReception,
	"recepción material":     StageMaterialReception,
	"recepcion de material":  StageMaterialReception,
	"pendiente":              StageMaterialReception,
	"por iniciar":            StageMaterialReception,
	"safety-checklist":       StageSafetyChecklist,
	"seguridad":              StageSafetyChecklist,
	"check list":             StageSafetyChecklist,
	"checklist de seguridad": StageSafetyChecklist,
	"manufacturing":          StageManufacturing,
	"fabricacion":            StageManufacturing,
	"fabricación":            StageManufacturing,
	"en progreso":            StageManufacturing,
	"en proceso":             StageManufacturing,
	"produccion":             StageManufacturing,
	"quality-control":        StageQualityControl,
	"calidad":                StageQualityControl,
	"control de calidad":     StageQualityControl,
	"inspeccion":             StageQualityControl,
	"inspección":             StageQualityControl,
	"ready-shipment":         StageReadyShipment,
	"listo":                  StageReadyShipment,
	"listo para embarque":    StageReadyShipment,
	"embarque":               StageReadyShipment,
	"terminado":              StageReadyShipment,
}

// NormalizeStage maps free-text status to a canonical stage. Unrecognized
// text passes through unchanged as a foreign stage, never an error.
func NormalizeStage(text string) Stage {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return StageMaterialReception
	}
	if stage, ok := stageSynonyms[strings.ToLower(trimmed)]; ok {
		return stage
	}
	return Stage(trimmed)
}

var progressToken = regexp.MustCompile(`[^0-9.\-]`)

// NormalizeProgress maps numeric, percentage-string ("15%"), or fractional
// progress inputs into an integer in [0,100]. Only strictly fractional
// values (0,1) are scaled up, so an input of exactly 1 reads as one percent
// and re-normalizing any output leaves it unchanged. Non-parseable input
// yields 0; progress is cosmetic, never an error.
func NormalizeProgress(value interface{}) int {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case float32:
		f = float64(v)
	case string:
		stripped := progressToken.ReplaceAllString(v, "")
		parsed, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		stripped := progressToken.ReplaceAllString(fmt.Sprintf("%v", value), "")
		parsed, err := strconv.ParseFloat(stripped, 64)
		if err != nil {
			return 0
		}
		f = parsed
	}

	if f > 0 && f < 1 {
		f *= 100
	} else if f > 100 {
		if q := f / 100; q > 0 && q <= 100 {
			f = q
		}
	}

	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return int(math.Round(f))
}

// priorityWords ranks recognized priority labels.
var priorityWords = map[string]int{
	"urgente": PriorityUrgent,
	"critica": PriorityUrgent,
	"crítica": PriorityUrgent,
	"urgent":  PriorityUrgent,
	"alta":    PriorityHigh,
	"high":    PriorityHigh,
	"media":   PriorityNormal,
	"normal":  PriorityNormal,
	"medium":  PriorityNormal,
	"baja":    PriorityLow,
	"low":     PriorityLow,
}

// NormalizePriority maps a priority label to its rank.
func NormalizePriority(text string) (int, bool) {
	rank, ok := priorityWords[strings.ToLower(strings.TrimSpace(text))]
	return rank, ok
}

// priorityFromOverloadedEstado reads a priority word out of a misused
// "estado" field. This is a data-quality workaround for upstream records
// that store priority where status belongs, not a contract; remove once
// upstream data is cleaned.
func priorityFromOverloadedEstado(raw map[string]interface{}) (int, bool) {
	estado := stringValue(firstValue(raw, "estado", "status"))
	if estado == "" {
		return 0, false
	}
	return NormalizePriority(estado)
}

// Normalize maps one raw backend order record into the canonical WorkOrder.
// It is a pure function: the input map is never mutated. The only error is
// ErrNoStableKey; every other malformed field degrades to a safe default.
func Normalize(raw map[string]interface{}) (WorkOrder, error) {
	key, err := DeriveKey(raw)
	if err != nil {
		return WorkOrder{}, err
	}

	order := WorkOrder{
		Key:          key,
		Stage:        StageMaterialReception,
		PriorityRank: DefaultPriorityRank,
		Raw:          raw,
	}

	if stageText := stringValue(firstValue(raw, "estado", "status", "etapa")); stageText != "" {
		stage := NormalizeStage(stageText)
		// An estado that is really a priority word is not a stage value.
		if _, isPriority := NormalizePriority(stageText); !isPriority || stage.IsKnown() {
			order.Stage = stage
			order.HasStage = true
		}
	}

	if progressValue, ok := firstPresent(raw, "avance", "progreso", "progress", "porcentajeAvance"); ok {
		order.ProgressPercent = NormalizeProgress(progressValue)
		order.HasProgress = true
	}

	if rank, ok := NormalizePriority(stringValue(firstValue(raw, "prioridad", "priority"))); ok {
		order.PriorityRank = rank
	} else if rank, ok := priorityFromOverloadedEstado(raw); ok {
		order.PriorityRank = rank
	}

	order.AssignedTechnicians = nameList(firstValue(raw, "tecnicos", "técnicos", "asignados", "technicians"))
	order.DueDate = stringValue(firstValue(raw, "fechaEntrega", "fechaCompromiso", "dueDate"))
	order.ClientLabel = stringValue(firstValue(raw, "cliente", "nombreCliente", "clientLabel"))
	order.ProjectRef = stringValue(firstValue(raw, "proyecto", "obra", "projectRef"))
	order.QualityState = stringValue(firstValue(raw, "calidad", "qualityState"))
	order.Completed = boolValue(firstValue(raw, "completado", "completed"))

	if safety, ok := firstValue(raw, "seguridad", "safety").(map[string]interface{}); ok {
		order.SafetyState = SafetyState{
			Completed: boolValue(firstValue(safety, "completado", "completed")),
			Missing:   stringList(firstValue(safety, "faltantes", "missing")),
		}
	}

	order.ChangeOrders = changeOrderList(firstValue(raw, "cambios", "changeOrders"))
	order.RequiredMaterials, order.ReceivedMaterials = materialCounts(raw)

	return order, nil
}

// materialCounts derives the order-level aggregate material counters: the
// confirmed reception record when present, otherwise the embedded material
// list.
func materialCounts(raw map[string]interface{}) (required, received int) {
	if reception, ok := firstValue(raw, "recepcion", "recepción", "reception").(map[string]interface{}); ok {
		if lines, ok := firstValue(reception, "materiales", "materials").([]interface{}); ok && len(lines) > 0 {
			for _, entry := range lines {
				line, ok := entry.(map[string]interface{})
				if !ok {
					continue
				}
				normalized := NormalizeLine(line)
				required += int(normalized.QuantityRequired)
				received += int(normalized.QuantityReceived)
			}
			return required, received
		}
	}

	if lines, ok := firstValue(raw, "materiales", "materials").([]interface{}); ok {
		for _, entry := range lines {
			line, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			normalized := NormalizeLine(line)
			required += int(normalized.QuantityRequired)
			received += int(normalized.QuantityReceived)
		}
	}
	return required, received
}

// =============================================================================
// Raw field access helpers
// =============================================================================

func firstValue(raw map[string]interface{}, keys ...string) interface{} {
	v, _ := firstPresent(raw, keys...)
	return v
}

func firstPresent(raw map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func boolValue(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true") || strings.EqualFold(strings.TrimSpace(b), "si") || strings.EqualFold(strings.TrimSpace(b), "sí")
	default:
		return false
	}
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// nameList accepts either a list of strings or a list of objects carrying
// a name field.
func nameList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch entry := item.(type) {
		case string:
			if s := strings.TrimSpace(entry); s != "" {
				out = append(out, s)
			}
		case map[string]interface{}:
			if s := stringValue(firstValue(entry, "nombre", "name")); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func changeOrderList(v interface{}) []ChangeOrder {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]ChangeOrder, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		change := ChangeOrder{
			ID:          stringValue(firstValue(entry, "id")),
			Description: stringValue(firstValue(entry, "descripcion", "descripción", "description")),
		}
		if ts := stringValue(firstValue(entry, "fecha", "createdAt")); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				change.CreatedAt = parsed
			}
		}
		out = append(out, change)
	}
	return out
}
