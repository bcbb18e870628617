// Package storage abstracts the document store provisioned records
// land in. The engine only needs four capabilities: insert a batch,
// find by equality filter, delete by equality filter, and collection
// stats. Any backend implementing DocumentStore is acceptable.
package storage

import (
	"context"
	"errors"
	"reflect"
)

// RunIDField tags every persisted record with the provisioning run
// that created it, so cleanup can target one run without touching
// records provisioned by others.
const RunIDField = "_runId"

// ErrNotFound reports a collection with no stored records where one
// was required.
var ErrNotFound = errors.New("not found")

// Document is one stored record.
type Document = map[string]any

// Filter matches documents by field equality. An empty filter matches
// every document.
type Filter map[string]any

// Matches reports whether every filter field equals the document's.
func (f Filter) Matches(doc Document) bool {
	for field, want := range f {
		got, ok := doc[field]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Stats summarizes one collection.
type Stats struct {
	Count     int64 `json:"count"`
	SizeBytes int64 `json:"sizeBytes"`
}

type DocumentStore interface {
	// Insert persists the batch and returns how many documents were
	// written.
	Insert(ctx context.Context, collection string, docs []Document) (int, error)
	// Find returns documents matching the filter, in unspecified order.
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Delete removes matching documents and returns how many went away.
	Delete(ctx context.Context, collection string, filter Filter) (int, error)
	// Stats reports document count and approximate stored size.
	Stats(ctx context.Context, collection string) (Stats, error)
}
