// Package store is the narrow adapter between the application and the
// document database. Repositories and the statistics engine compose typed
// filters and queries; translation to the wire format and execution happen
// here and nowhere else.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports that a lookup by key matched nothing. Callers
	// surface it as an empty result, never as a fatal condition.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate reports a write that violates a natural-key index.
	ErrDuplicate = errors.New("duplicate natural key")

	// ErrUnavailable reports that the backing store could not be reached.
	// It is never retried here; retry policy belongs to the caller's
	// infrastructure.
	ErrUnavailable = errors.New("record store unavailable")
)

// FindOptions controls sorting and pagination of FindMany. A zero value
// means insertion order, no skip, no limit.
type FindOptions struct {
	SortField string
	SortDesc  bool
	Skip      int64
	Limit     int64
}

// GroupQuery describes a server-side group-and-average computation.
// GroupBy may be empty, collapsing the whole collection into one group.
// Results come back sorted descending by the first average with an
// ascending tie-break on the group key. Averages are computed over
// non-null values only; a group with no contributing values reports nil.
type GroupQuery struct {
	Filter Filter
	// GroupBy is the field holding the group key.
	GroupBy string
	// Averages are the numeric fields to average. The first one is the
	// primary sort key.
	Averages []string
	// NonNullCounts are fields whose non-null occurrences are counted
	// per group.
	NonNullCounts []string
	// TrueCounts are boolean fields whose true occurrences are counted
	// per group.
	TrueCounts []string
	// Limit caps the number of groups returned; 0 means all.
	Limit int64
}

// GroupRow is one group produced by GroupBy.
type GroupRow struct {
	Key      any
	Count    int64
	Averages map[string]*float64
	NonNull  map[string]int64
	True     map[string]int64
}

// BucketQuery describes a server-side histogram over a numeric field.
// Boundaries are ascending; each bucket spans [Boundaries[i],
// Boundaries[i+1]). Values outside the range, and documents where the
// field is absent, land in the overflow bucket.
type BucketQuery struct {
	Filter     Filter
	Field      string
	Boundaries []float64
}

// BucketRow is one histogram bucket. Buckets with no members are not
// returned by the store; zero-filling is the caller's concern.
type BucketRow struct {
	Lower    float64
	Count    int64
	Overflow bool
}

// Store is the contract every backend implements. All operations take a
// context and propagate ErrUnavailable when the store is unreachable.
type Store interface {
	// RegisterNaturalKey declares the unique natural key of a collection.
	// Write paths ensure a uniqueness index on it.
	RegisterNaturalKey(collection string, fields ...string)

	Insert(ctx context.Context, collection string, doc any) (string, error)
	FindOne(ctx context.Context, collection string, filter Filter, dest any) error
	FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions, dest any) error
	Update(ctx context.Context, collection, id string, patch map[string]any) (bool, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	// Upsert inserts or replaces the document matching key, so repeated
	// application is idempotent.
	Upsert(ctx context.Context, collection string, key Filter, doc any) error

	GroupBy(ctx context.Context, collection string, q GroupQuery) ([]GroupRow, error)
	Bucket(ctx context.Context, collection string, q BucketQuery) ([]BucketRow, error)

	// Close releases the backing connection. The store must not be used
	// afterwards.
	Close(ctx context.Context) error
}
