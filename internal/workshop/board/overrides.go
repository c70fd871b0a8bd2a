package board

import (
	"context"
	"time"

	"workshop_portal_backend/internal/workshop/domain"
	"workshop_portal_backend/platform/kvstore"
	"workshop_portal_backend/platform/logger"
)

// CachePrefix namespaces stage overrides in the durable cache.
const CachePrefix = "override_"

// OverrideEntry is the locally recorded outcome of an optimistic stage
// transition, kept until the backend confirms it. Nil fields carry no
// override.
type OverrideEntry struct {
	Stage     *domain.Stage `json:"stage,omitempty"`
	Progress  *int          `json:"progress,omitempty"`
	Completed *bool         `json:"completed,omitempty"`
	Hidden    *bool         `json:"hidden,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Empty reports whether the entry overrides nothing and can be dropped.
func (e OverrideEntry) Empty() bool {
	return e.Stage == nil && e.Progress == nil && e.Completed == nil && e.Hidden == nil
}

// OverrideCache stores per-order-key override entries durably. Cache
// failures degrade to server truth, never to an error.
type OverrideCache struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewOverrideCache(store kvstore.Store, log *logger.Logger) *OverrideCache {
	return &OverrideCache{store: store, log: log}
}

func (c *OverrideCache) Get(ctx context.Context, orderKey string) (OverrideEntry, bool) {
	var entry OverrideEntry
	found, err := c.store.GetJSON(ctx, CachePrefix+orderKey, &entry)
	if err != nil {
		c.log.CacheError("load override", orderKey, err)
		return OverrideEntry{}, false
	}
	return entry, found
}

// Put merges the given fields into the stored entry. Only non-nil fields
// overwrite.
func (c *OverrideCache) Put(ctx context.Context, orderKey string, update OverrideEntry) {
	entry, _ := c.Get(ctx, orderKey)
	if update.Stage != nil {
		entry.Stage = update.Stage
	}
	if update.Progress != nil {
		entry.Progress = update.Progress
	}
	if update.Completed != nil {
		entry.Completed = update.Completed
	}
	if update.Hidden != nil {
		entry.Hidden = update.Hidden
	}
	entry.UpdatedAt = time.Now().UTC()
	if err := c.store.SetJSON(ctx, CachePrefix+orderKey, entry); err != nil {
		c.log.CacheError("store override", orderKey, err)
	}
}

func (c *OverrideCache) Delete(ctx context.Context, orderKey string) {
	if err := c.store.Delete(ctx, CachePrefix+orderKey); err != nil {
		c.log.CacheError("delete override", orderKey, err)
	}
}

// Reconcile applies the order's override entry field by field: a non-null
// server value is authoritative and purges the now-stale override for that
// field; a null server value falls back to the override. The Hidden
// override has no server counterpart and applies until the order stops
// arriving in fetches.
func (c *OverrideCache) Reconcile(ctx context.Context, order domain.WorkOrder) domain.WorkOrder {
	entry, found := c.Get(ctx, order.Key)
	if !found {
		return order
	}

	changed := false
	if order.HasStage {
		if entry.Stage != nil {
			entry.Stage = nil
			changed = true
		}
	} else if entry.Stage != nil {
		order.Stage = *entry.Stage
	}

	if order.HasProgress {
		if entry.Progress != nil {
			entry.Progress = nil
			changed = true
		}
	} else if entry.Progress != nil {
		order.ProgressPercent = *entry.Progress
	}

	if order.Completed {
		if entry.Completed != nil {
			entry.Completed = nil
			changed = true
		}
	} else if entry.Completed != nil {
		order.Completed = *entry.Completed
	}

	if entry.Hidden != nil {
		order.Hidden = *entry.Hidden
	}

	if changed {
		if entry.Empty() {
			c.Delete(ctx, order.Key)
		} else {
			entry.UpdatedAt = time.Now().UTC()
			if err := c.store.SetJSON(ctx, CachePrefix+order.Key, entry); err != nil {
				c.log.CacheError("store override", order.Key, err)
			}
		}
	}
	return order
}
