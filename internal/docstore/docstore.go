// Package docstore abstracts the document database the core persists
// into: generic CRUD plus a simple field-filter query, no joins. The
// encompassing application supplies a production implementation; the
// in-memory store here backs tests and the CLI.
package docstore

import "context"

// Doc is any persistable document. Field exposes the attributes a
// document can be filtered on; documents return ok=false for fields
// they do not index.
type Doc interface {
	Kind() string
	GetID() string
	SetID(id string)
	Field(name string) (interface{}, bool)
}

// FieldSetter is implemented by documents that support partial updates.
type FieldSetter interface {
	SetField(name string, value interface{}) bool
}

// Store is the persistence contract consumed by the core.
type Store interface {
	// Get returns the document of the given kind and id, or a
	// NotFoundError.
	Get(ctx context.Context, kind, id string) (Doc, error)

	// Save persists the document, assigning an id if it has none, and
	// returns the id.
	Save(ctx context.Context, doc Doc) (string, error)

	// UpdateFields applies a partial update to the stored document.
	UpdateFields(ctx context.Context, kind, id string, fields map[string]interface{}) error

	// Delete removes the document. Deleting a missing document is not
	// an error.
	Delete(ctx context.Context, kind, id string) error

	// Query starts a filter query over one kind.
	Query(kind string) Query
}

// Query accumulates equality filters and executes them. Filters on
// fields a document does not expose never match.
type Query interface {
	Filter(field string, value interface{}) Query

	// Get returns the first match, or a NotFoundError.
	Get(ctx context.Context) (Doc, error)

	// List returns all matches.
	List(ctx context.Context) ([]Doc, error)

	// Count returns the number of matches.
	Count(ctx context.Context) (int, error)
}
