// Package store persists the activity collection and the responsible
// registry. Two backends implement the same contract: a JSON file store
// and a SQLite store.
package store

import (
	"context"

	"actionboard/internal/domain"
)

// Store is the persistence contract. Loads return usable defaults when
// nothing has been saved yet; saves replace the whole document.
type Store interface {
	LoadActivities(ctx context.Context) (domain.Collection, error)
	SaveActivities(ctx context.Context, c domain.Collection) error
	LoadRegistry(ctx context.Context) (domain.Registry, error)
	SaveRegistry(ctx context.Context, r domain.Registry) error
}

// EmptyCollection is the state of a store that has never been written.
func EmptyCollection() domain.Collection {
	return domain.Collection{Activities: []domain.Activity{}, NextID: 1}
}
