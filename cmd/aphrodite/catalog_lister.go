package main

import (
	"context"

	"github.com/aphrodite-badges/aphrodite/internal/catalog"
)

// allItemsLister adapts catalog.Client's library/item paging into the flat
// ListAllItemIDs shape the scheduler wants, so the scheduler package stays
// ignorant of how the catalog paginates.
type allItemsLister struct {
	client catalog.Client
}

func (l *allItemsLister) ListAllItemIDs(ctx context.Context) ([]string, error) {
	libraries, err := l.client.ListLibraries(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, lib := range libraries {
		it, err := l.client.ListItems(ctx, lib.ID, catalog.ItemFilters{})
		if err != nil {
			return nil, err
		}
		for {
			ref, ok, err := it.Next(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			ids = append(ids, ref.ItemID)
		}
	}
	return ids, nil
}
