package revert

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
	"github.com/aphrodite-badges/aphrodite/internal/catalog"
	"github.com/aphrodite-badges/aphrodite/internal/posterstore"
	"github.com/aphrodite-badges/aphrodite/internal/store"
)

const testTag = "aphrodite-overlay"

type fakeCatalog struct {
	items       map[string]catalog.ItemMetadata
	putCalls    []string
	removedTags []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[string]catalog.ItemMetadata{}}
}

func (f *fakeCatalog) ListLibraries(ctx context.Context) ([]catalog.Library, error) { return nil, nil }
func (f *fakeCatalog) ListItems(ctx context.Context, libraryID string, filters catalog.ItemFilters) (catalog.ItemIterator, error) {
	return nil, nil
}
func (f *fakeCatalog) GetItem(ctx context.Context, itemID string) (catalog.ItemMetadata, error) {
	item, ok := f.items[itemID]
	if !ok {
		return catalog.ItemMetadata{}, apperr.New("fakeCatalog.GetItem", apperr.CatalogNotFound, nil)
	}
	return item, nil
}
func (f *fakeCatalog) GetPrimaryImage(ctx context.Context, itemID string) ([]byte, string, error) {
	return nil, "", nil
}
func (f *fakeCatalog) PutPrimaryImage(ctx context.Context, itemID string, data []byte, mime string) error {
	f.putCalls = append(f.putCalls, itemID)
	return nil
}
func (f *fakeCatalog) AddTag(ctx context.Context, itemID, tag string) error { return nil }
func (f *fakeCatalog) RemoveTag(ctx context.Context, itemID, tag string) error {
	f.removedTags = append(f.removedTags, itemID)
	return nil
}
func (f *fakeCatalog) Health(ctx context.Context) error { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeCatalog, *posterstore.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	posters, err := posterstore.New(t.TempDir())
	require.NoError(t, err)

	cat := newFakeCatalog()
	return New(cat, posters, db, testTag), cat, posters
}

func TestRevertWithoutOriginalIsCannotRevert(t *testing.T) {
	m, cat, _ := newTestManager(t)
	cat.items["item-1"] = catalog.ItemMetadata{Tags: []string{testTag}}

	err := m.Revert(context.Background(), "item-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CannotRevert))
}

func TestRevertWithoutTagIsCannotRevert(t *testing.T) {
	m, cat, posters := newTestManager(t)
	require.NoError(t, posters.SaveOriginal("item-1", ".jpg", []byte("original")))
	cat.items["item-1"] = catalog.ItemMetadata{Tags: nil}

	err := m.Revert(context.Background(), "item-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CannotRevert))
}

func TestRevertSuccess(t *testing.T) {
	m, cat, posters := newTestManager(t)
	require.NoError(t, posters.SaveOriginal("item-1", ".jpg", []byte("original")))
	require.NoError(t, posters.SaveModified("item-1", ".jpg", []byte("badged")))
	cat.items["item-1"] = catalog.ItemMetadata{Tags: []string{testTag}, Path: "/media/movie.jpg"}

	err := m.Revert(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Contains(t, cat.putCalls, "item-1")
	assert.Contains(t, cat.removedTags, "item-1")
	assert.False(t, posters.Exists("modified", "item-1"))
}

func TestRestoreAllReportsPerItemOutcome(t *testing.T) {
	m, cat, posters := newTestManager(t)
	require.NoError(t, posters.SaveOriginal("ok-item", ".jpg", []byte("original")))
	cat.items["ok-item"] = catalog.ItemMetadata{Tags: []string{testTag}}
	cat.items["no-original-item"] = catalog.ItemMetadata{Tags: []string{testTag}}

	results := m.RestoreAll(context.Background(), []string{"ok-item", "no-original-item"})
	require.Len(t, results, 2)

	assert.Equal(t, "ok-item", results[0].ItemID)
	assert.True(t, results[0].OK)

	assert.Equal(t, "no-original-item", results[1].ItemID)
	assert.False(t, results[1].OK)
	assert.True(t, apperr.Is(results[1].Err, apperr.CannotRevert))
}
