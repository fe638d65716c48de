// Package store is the concrete, swappable implementation of the
// document-store collaborator spec §6 names only by contract: two
// collections, clinical and genomic, supporting filtered find with
// projection, bulk find by id, and index inspection/creation.
package store

import "context"

// Collection is the minimum surface the matching engine drives a
// document collection through.
type Collection interface {
	// Find runs filter (a MongoDB-shaped query document) against the
	// collection, returning documents narrowed to the given fields
	// (an empty projection returns full documents).
	Find(ctx context.Context, filter map[string]interface{}, projection []string) ([]map[string]interface{}, error)
	// FindByIDs bulk-fetches documents by their _id field.
	FindByIDs(ctx context.Context, ids []interface{}, projection []string) ([]map[string]interface{}, error)
	// ListIndexes returns the names of the collection's current indexes.
	ListIndexes(ctx context.Context) ([]string, error)
	// CreateIndex creates a (non-unique, ascending) index on field if one
	// does not already exist.
	CreateIndex(ctx context.Context, field string) error
}

// Database groups the named collections the engine reads and writes.
type Database interface {
	Collection(name string) Collection
}

// MatchStore is the persisted trial_match collection's write surface,
// used only by the diff/persist step (spec §6: "Persisted state").
type MatchStore interface {
	Collection
	// InsertMany appends newly produced match documents.
	InsertMany(ctx context.Context, docs []map[string]interface{}) error
	// DisableStale marks is_disabled=true on every document for
	// protocolNo whose hash is not in liveHashes.
	DisableStale(ctx context.Context, protocolNo string, liveHashes []string) error
}
