package domain

import (
	"strings"
	"time"
)

// ChecklistCategory groups safety checklist items.
type ChecklistCategory string

const (
	CategoryTooling    ChecklistCategory = "tooling"
	CategoryProcedures ChecklistCategory = "procedures"
	CategoryPPE        ChecklistCategory = "ppe"
)

// Missing item sources. Server-recorded entries are read-only locks;
// local entries remain editable. Both block completion identically.
const (
	MissingSourceServer = "server"
	MissingSourceLocal  = "local"
)

// ChecklistItem is one entry of an order's safety checklist.
type ChecklistItem struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Category ChecklistCategory `json:"category"`
	Required bool              `json:"required"`
	Checked  bool              `json:"checked"`
	// Locked marks an item flagged missing; its checkbox cannot be checked
	// until the missing flag clears.
	Locked bool `json:"locked"`
}

// MissingItem is a flagged-missing entry, either recorded by the backend or
// freshly flagged locally. Ad hoc labels outside the fixed catalogs are
// allowed and participate in the same completion gate.
type MissingItem struct {
	Label  string `json:"label"`
	Source string `json:"source"`
}

// SafetyRecord is the full per-order checklist state.
type SafetyRecord struct {
	Items     []ChecklistItem `json:"items"`
	Missing   []MissingItem   `json:"missing,omitempty"`
	Completed bool            `json:"completed"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// checklistDef defines a catalog entry. Flag names the order-level boolean
// that makes a PPE item applicable; tooling and procedure items carry no
// flag because they are always required.
type checklistDef struct {
	ID    string
	Label string
	Flag  string
}

var toolingCatalog = []checklistDef{
	{ID: "herramienta-mano", Label: "Herramienta de mano completa"},
	{ID: "equipo-corte", Label: "Equipo de corte revisado"},
	{ID: "equipo-soldadura", Label: "Equipo de soldadura revisado"},
}

var procedureCatalog = []checklistDef{
	{ID: "permiso-trabajo", Label: "Permiso de trabajo autorizado"},
	{ID: "procedimiento", Label: "Procedimiento de fabricación disponible"},
	{ID: "hoja-seguridad", Label: "Hojas de seguridad consultadas"},
}

var ppeCatalog = []checklistDef{
	{ID: "casco", Label: "Casco", Flag: "requiereCasco"},
	{ID: "guantes", Label: "Guantes", Flag: "requiereGuantes"},
	{ID: "lentes", Label: "Lentes de seguridad", Flag: "requiereLentes"},
	{ID: "arnes", Label: "Arnés", Flag: "requiereArnes"},
	{ID: "botas", Label: "Botas de seguridad", Flag: "requiereBotas"},
}

// RequiredItems derives the applicable checklist for an order. Tooling and
// procedure items are always required. A PPE item is required when its
// boolean flag on the order says so; when the flag is absent the item is
// inferred from the order's recorded missing-PPE list: an item someone
// recorded as missing must have been applicable.
func RequiredItems(order WorkOrder) []ChecklistItem {
	items := make([]ChecklistItem, 0, len(toolingCatalog)+len(procedureCatalog)+len(ppeCatalog))

	for _, def := range toolingCatalog {
		items = append(items, ChecklistItem{ID: def.ID, Label: def.Label, Category: CategoryTooling, Required: true})
	}
	for _, def := range procedureCatalog {
		items = append(items, ChecklistItem{ID: def.ID, Label: def.Label, Category: CategoryProcedures, Required: true})
	}

	recordedMissing := order.SafetyState.Missing
	for _, def := range ppeCatalog {
		required := false
		if flag, present := flagValue(order.Raw, def.Flag); present {
			required = flag
		} else {
			required = labelListed(recordedMissing, def.ID) || labelListed(recordedMissing, def.Label)
		}
		items = append(items, ChecklistItem{ID: def.ID, Label: def.Label, Category: CategoryPPE, Required: required})
	}

	return items
}

// ApplyMissing locks every checklist item whose label or ID matches a
// flagged-missing entry and forces its checkbox off.
func ApplyMissing(items []ChecklistItem, missing []MissingItem) []ChecklistItem {
	out := make([]ChecklistItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Locked = false
		for _, m := range missing {
			if matchesLabel(out[i], m.Label) {
				out[i].Locked = true
				out[i].Checked = false
				break
			}
		}
	}
	return out
}

// IsChecklistComplete is the completion gate: every applicable item checked
// AND zero flagged-missing items, regardless of their source.
func IsChecklistComplete(items []ChecklistItem, missing []MissingItem) bool {
	if len(missing) > 0 {
		return false
	}
	for _, item := range items {
		if item.Required && !item.Checked {
			return false
		}
	}
	return true
}

// MergeServerMissing merges backend-recorded missing entries into a local
// record. Server entries become read-only locks and shadow local duplicates;
// local entries for other labels remain editable. Item locks and the
// completion flag are recomputed.
func MergeServerMissing(record SafetyRecord, serverMissing []string) SafetyRecord {
	merged := make([]MissingItem, 0, len(record.Missing)+len(serverMissing))
	for _, label := range serverMissing {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			merged = append(merged, MissingItem{Label: trimmed, Source: MissingSourceServer})
		}
	}
	for _, m := range record.Missing {
		if m.Source == MissingSourceServer {
			continue
		}
		if !labelInMissing(merged, m.Label) {
			merged = append(merged, m)
		}
	}

	record.Missing = merged
	record.Items = ApplyMissing(record.Items, merged)
	record.Completed = IsChecklistComplete(record.Items, merged)
	return record
}

// SameLabel compares two missing-item labels by normalized alphanumeric
// equality: case and accents are ignored, but a label never matches a mere
// prefix or superstring of another.
func SameLabel(a, b string) bool {
	norm := normalizeAlnum(a)
	return norm != "" && norm == normalizeAlnum(b)
}

func matchesLabel(item ChecklistItem, label string) bool {
	norm := normalizeAlnum(label)
	return norm != "" && (norm == normalizeAlnum(item.ID) || norm == normalizeAlnum(item.Label))
}

func labelListed(labels []string, candidate string) bool {
	norm := normalizeAlnum(candidate)
	for _, label := range labels {
		if normalizeAlnum(label) == norm {
			return true
		}
	}
	return false
}

func labelInMissing(missing []MissingItem, label string) bool {
	norm := normalizeAlnum(label)
	for _, m := range missing {
		if normalizeAlnum(m.Label) == norm {
			return true
		}
	}
	return false
}

func flagValue(raw map[string]interface{}, flag string) (bool, bool) {
	if raw == nil || flag == "" {
		return false, false
	}
	value, ok := raw[flag]
	if !ok || value == nil {
		return false, false
	}
	return boolValue(value), true
}
