package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// MaterialLine is the canonical material line item shape. Identity within
// one order's list is Code when present, else the normalized Description;
// duplicate keys are aggregated by summing quantities.
type MaterialLine struct {
	Code             string                 `json:"code,omitempty"`
	Description      string                 `json:"description"`
	QuantityRequired float64                `json:"quantityRequired"`
	QuantityReceived float64                `json:"quantityReceived"`
	QuantityMissing  float64                `json:"quantityMissing"`
	Unit             string                 `json:"unit,omitempty"`
	UnitCost         *float64               `json:"unitCost,omitempty"`
	Subtotal         *float64               `json:"subtotal,omitempty"`
	SourceRaw        map[string]interface{} `json:"sourceRaw,omitempty"`
}

// IdentityKey returns the aggregation key for the line.
func (l MaterialLine) IdentityKey() string {
	if l.Code != "" {
		return l.Code
	}
	return normalizeAlnum(l.Description)
}

// Alias lists per canonical field. Upstream line items carry the same data
// under many names.
var (
	descriptionAliases = []string{"descripcion", "descripción", "description", "material", "nombre", "concepto", "detalle"}
	quantityAliases    = []string{"cantidad", "quantity", "qty", "cant", "cantidadRequerida"}
	receivedAliases    = []string{"cantidadRecibida", "recibido", "received"}
	codeAliases        = []string{"codigo", "código", "code", "sku", "clave"}
	unitAliases        = []string{"unidad", "unit", "um", "unidadMedida"}
	unitCostAliases    = []string{"costoUnitario", "precioUnitario", "unitCost", "precio"}
	subtotalAliases    = []string{"subtotal", "importe", "total"}
)

var (
	numericToken = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	trailingUnit = regexp.MustCompile(`[A-Za-z%]+\s*$`)
)

// ParseQuantity extracts the first numeric token from a quantity value,
// tolerating comma decimal separators and trailing unit text ("12,5 kg").
// It returns the parsed value and any trailing unit found in the string.
func ParseQuantity(value interface{}) (float64, string) {
	switch v := value.(type) {
	case nil:
		return 0, ""
	case float64:
		return v, ""
	case int:
		return float64(v), ""
	case int64:
		return float64(v), ""
	case string:
		token := numericToken.FindString(v)
		if token == "" {
			return 0, strings.TrimSpace(trailingUnit.FindString(v))
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
		if err != nil {
			parsed = 0
		}
		return parsed, strings.TrimSpace(trailingUnit.FindString(v))
	default:
		return 0, ""
	}
}

// NormalizeLine maps one raw line item into a canonical MaterialLine.
// Unit comes from an explicit unit field, else is inferred from trailing
// alphabetic/percent characters of the combined quantity token.
func NormalizeLine(raw map[string]interface{}) MaterialLine {
	line := MaterialLine{
		Code:        stringValue(firstValue(raw, codeAliases...)),
		Description: stringValue(firstValue(raw, descriptionAliases...)),
		Unit:        stringValue(firstValue(raw, unitAliases...)),
		SourceRaw:   raw,
	}

	required, inferredUnit := ParseQuantity(firstValue(raw, quantityAliases...))
	line.QuantityRequired = required
	if line.Unit == "" {
		line.Unit = inferredUnit
	}

	received, _ := ParseQuantity(firstValue(raw, receivedAliases...))
	line.QuantityReceived = received

	if cost, ok := floatField(raw, unitCostAliases...); ok {
		line.UnitCost = &cost
	}
	if subtotal, ok := floatField(raw, subtotalAliases...); ok {
		line.Subtotal = &subtotal
	}

	line.QuantityMissing = missingQuantity(line.QuantityRequired, line.QuantityReceived)
	return line
}

// AggregateLines groups lines by identity key, summing quantities of
// duplicates. UnitCost and Subtotal are first-non-empty-wins, not summed.
// First-appearance order is preserved.
func AggregateLines(lines []MaterialLine) []MaterialLine {
	byKey := make(map[string]int, len(lines))
	out := make([]MaterialLine, 0, len(lines))

	for _, line := range lines {
		key := line.IdentityKey()
		if key == "" {
			out = append(out, line)
			continue
		}

		if idx, seen := byKey[key]; seen {
			out[idx].QuantityRequired += line.QuantityRequired
			out[idx].QuantityReceived += line.QuantityReceived
			if out[idx].UnitCost == nil {
				out[idx].UnitCost = line.UnitCost
			}
			if out[idx].Subtotal == nil {
				out[idx].Subtotal = line.Subtotal
			}
			if out[idx].Unit == "" {
				out[idx].Unit = line.Unit
			}
			out[idx].QuantityMissing = missingQuantity(out[idx].QuantityRequired, out[idx].QuantityReceived)
			continue
		}

		byKey[key] = len(out)
		out = append(out, line)
	}

	return out
}

// missingQuantity is max(0, required-received).
func missingQuantity(required, received float64) float64 {
	missing := required - received
	if missing < 0 {
		return 0
	}
	return missing
}

func floatField(raw map[string]interface{}, keys ...string) (float64, bool) {
	value, ok := firstPresent(raw, keys...)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		token := numericToken.FindString(v)
		if token == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
