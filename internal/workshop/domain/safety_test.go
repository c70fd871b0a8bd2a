package domain

import "testing"

func checkAll(items []ChecklistItem) []ChecklistItem {
	out := make([]ChecklistItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Required && !out[i].Locked {
			out[i].Checked = true
		}
	}
	return out
}

func TestRequiredItemsFixedCategories(t *testing.T) {
	items := RequiredItems(WorkOrder{Key: "OT-1"})

	for _, item := range items {
		switch item.Category {
		case CategoryTooling, CategoryProcedures:
			if !item.Required {
				t.Errorf("%s item %q must always be required", item.Category, item.ID)
			}
		case CategoryPPE:
			if item.Required {
				t.Errorf("ppe item %q required without flag or recorded missing entry", item.ID)
			}
		}
	}
}

func TestRequiredItemsPPEFlags(t *testing.T) {
	order := WorkOrder{
		Key: "OT-1",
		Raw: map[string]interface{}{
			"requiereCasco": true,
			"requiereBotas": false,
		},
	}

	items := RequiredItems(order)
	byID := make(map[string]ChecklistItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	if !byID["casco"].Required {
		t.Error("casco flag true must make the item required")
	}
	if byID["botas"].Required {
		t.Error("botas flag false must make the item not required")
	}
}

func TestRequiredItemsPPEInferredFromMissingList(t *testing.T) {
	// No flags on the order; an arnes entry in the recorded missing list
	// implies the item was applicable.
	order := WorkOrder{
		Key:         "OT-1",
		SafetyState: SafetyState{Missing: []string{"arnes"}},
	}

	items := RequiredItems(order)
	for _, item := range items {
		if item.ID == "arnes" && !item.Required {
			t.Error("arnes must be inferred required from the recorded missing list")
		}
		if item.ID == "guantes" && item.Required {
			t.Error("guantes has no flag and no missing entry; must not be required")
		}
	}
}

func TestIsChecklistCompleteGate(t *testing.T) {
	base := RequiredItems(WorkOrder{Key: "OT-1"})

	if IsChecklistComplete(base, nil) {
		t.Error("unchecked required items must block completion")
	}

	checked := checkAll(base)
	if !IsChecklistComplete(checked, nil) {
		t.Error("all applicable items checked and nothing missing must complete")
	}

	// Any flagged-missing item blocks completion, local or server alike.
	local := []MissingItem{{Label: "equipo-corte", Source: MissingSourceLocal}}
	if IsChecklistComplete(checked, local) {
		t.Error("locally flagged missing item must block completion")
	}
	server := []MissingItem{{Label: "equipo-corte", Source: MissingSourceServer}}
	if IsChecklistComplete(checked, server) {
		t.Error("server-recorded missing item must block completion")
	}

	// Ad hoc custom entries participate in the same gate.
	custom := []MissingItem{{Label: "extension 220v", Source: MissingSourceLocal}}
	if IsChecklistComplete(checked, custom) {
		t.Error("custom missing item must block completion")
	}
}

func TestApplyMissingLocksCheckbox(t *testing.T) {
	items := checkAll(RequiredItems(WorkOrder{Key: "OT-1"}))
	missing := []MissingItem{{Label: "Equipo de corte revisado", Source: MissingSourceServer}}

	locked := ApplyMissing(items, missing)
	for _, item := range locked {
		if item.ID == "equipo-corte" {
			if !item.Locked {
				t.Error("missing item must lock its checkbox")
			}
			if item.Checked {
				t.Error("missing item must force its checkbox off")
			}
		}
	}
}

func TestMergeServerMissing(t *testing.T) {
	record := SafetyRecord{
		Items: checkAll(RequiredItems(WorkOrder{Key: "OT-1"})),
		Missing: []MissingItem{
			{Label: "permiso-trabajo", Source: MissingSourceLocal},
			{Label: "casco", Source: MissingSourceServer}, // stale server entry, replaced by merge
		},
		Completed: false,
	}

	merged := MergeServerMissing(record, []string{"equipo-soldadura", "permiso-trabajo"})

	var servers, locals int
	for _, m := range merged.Missing {
		switch m.Source {
		case MissingSourceServer:
			servers++
		case MissingSourceLocal:
			locals++
		}
	}
	if servers != 2 {
		t.Errorf("server entries = %d, want 2", servers)
	}
	// The local permiso-trabajo duplicate is shadowed by the server entry;
	// the stale casco server entry is dropped.
	if locals != 0 {
		t.Errorf("local entries = %d, want 0", locals)
	}
	if merged.Completed {
		t.Error("merged record with missing entries must not be complete")
	}

	for _, item := range merged.Items {
		if item.ID == "equipo-soldadura" && !item.Locked {
			t.Error("server missing entry must lock the matching item")
		}
	}
}

func TestMergeServerMissingKeepsLocalEntries(t *testing.T) {
	record := SafetyRecord{
		Items:   checkAll(RequiredItems(WorkOrder{Key: "OT-1"})),
		Missing: []MissingItem{{Label: "andamio certificado", Source: MissingSourceLocal}},
	}

	merged := MergeServerMissing(record, nil)
	if len(merged.Missing) != 1 || merged.Missing[0].Source != MissingSourceLocal {
		t.Errorf("local custom entry lost in merge: %+v", merged.Missing)
	}
}
