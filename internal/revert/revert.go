// Package revert implements the Revert/Tag Manager (spec.md §4.8): restore
// an item's original poster and remove Aphrodite's processed tag, either
// for one item or in bulk. Grounded on the teacher's internal/backup
// restore/retention package shape — a manager reading a durable store of
// "originals" and reporting per-item success/failure.
package revert

import (
	"context"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
	"github.com/aphrodite-badges/aphrodite/internal/posterstore"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

// Manager implements revert(item_id) and restore_all() against the Poster
// Store, Catalog Client, and job history.
type Manager struct {
	catalog catalog.Client
	posters *posterstore.Store
	db      *store.Store
	tag     string
}

// New builds a Manager for the given tag name (the same tag the Job Engine
// adds on successful badge application).
func New(catalogClient catalog.Client, posters *posterstore.Store, db *store.Store, tag string) *Manager {
	return &Manager{catalog: catalogClient, posters: posters, db: db, tag: tag}
}

// Revert restores itemID's original poster and removes the processed tag.
// Requires the original bucket to hold a file and the item to currently
// carry the processed tag; otherwise returns cannot_revert, per §4.8.
func (m *Manager) Revert(ctx context.Context, itemID string) error {
	if !m.posters.Exists("original", itemID) {
		metrics.RevertsTotal.WithLabelValues("cannot_revert").Inc()
		return apperr.New("revert.Revert", apperr.CannotRevert, nil)
	}

	item, err := m.catalog.GetItem(ctx, itemID)
	if err != nil {
		metrics.RevertsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !hasTag(item.Tags, m.tag) {
		metrics.RevertsTotal.WithLabelValues("cannot_revert").Inc()
		return apperr.New("revert.Revert", apperr.CannotRevert, nil)
	}

	original, err := m.posters.Read("original", itemID)
	if err != nil {
		metrics.RevertsTotal.WithLabelValues("error").Inc()
		return err
	}

	mime := mimeFromPath(item.Path)
	if err := m.catalog.PutPrimaryImage(ctx, itemID, original, mime); err != nil {
		metrics.RevertsTotal.WithLabelValues("error").Inc()
		return err
	}

	_ = m.posters.DeleteModified(itemID)
	if err := m.catalog.RemoveTag(ctx, itemID, m.tag); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("item_id", itemID).Msg("tag removal failed after successful revert upload")
	}

	_ = m.db.RecordHistory(ctx, "", itemID, "reverted", "")
	metrics.RevertsTotal.WithLabelValues("ok").Inc()
	return nil
}

// RestoreResult is one item's outcome from RestoreAll.
type RestoreResult struct {
	ItemID string
	OK     bool
	Err    error
}

// RestoreAll bulk-copies every original poster over its modified poster
// and best-effort removes the processed tag, per §4.8's restore_all.
func (m *Manager) RestoreAll(ctx context.Context, itemIDs []string) []RestoreResult {
	out := make([]RestoreResult, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		err := m.Revert(ctx, itemID)
		out = append(out, RestoreResult{ItemID: itemID, OK: err == nil, Err: err})
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func mimeFromPath(path string) string {
	if len(path) > 4 {
		switch path[len(path)-4:] {
		case ".png":
			return "image/png"
		case "webp":
			return "image/webp"
		}
	}
	return "image/jpeg"
}
