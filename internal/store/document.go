// Package store implements the document and object store adapters spec §6
// treats as injected external collaborators.
package store

import "context"

// Document is the opaque, collection-scoped record the core reads and
// writes (spec §3 Event, plus archived Jobs).
type Document map[string]interface{}

// DocumentStore is the injected document store interface (spec §6).
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Document) (Document, error)
	InsertOne(ctx context.Context, collection string, doc Document) error
	UpdateOne(ctx context.Context, collection string, filter, patch Document) error
	DeleteOne(ctx context.Context, collection string, filter Document) error
	Count(ctx context.Context, collection string, filter Document) (int64, error)
	EnsureIndexes(ctx context.Context) error
}
