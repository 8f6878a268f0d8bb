// Package repository holds one typed repository per entity. Repositories
// translate closed filter structs into store conditions, normalize
// pagination and enforce derived-field invariants; they never touch the
// wire format.
package repository

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enemdata/enemdb/store"
)

// DefaultPageSize applies when a caller asks for a page without a limit.
const DefaultPageSize = 100

// Page controls pagination and ordering of a List call. The zero value
// means first page, default size, insertion order.
type Page struct {
	Skip  int64
	Limit int64
	Sort  string
	Desc  bool
}

// normalize clamps the page to sane bounds: negative values collapse to
// zero, a zero limit becomes the default, and max (when positive) caps it.
func (p Page) normalize(max int64) (int64, int64) {
	skip, limit := p.Skip, p.Limit
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if max > 0 && limit > max {
		limit = max
	}
	return skip, limit
}

func (p Page) options(max int64) store.FindOptions {
	skip, limit := p.normalize(max)
	return store.FindOptions{
		SortField: p.Sort,
		SortDesc:  p.Desc,
		Skip:      skip,
		Limit:     limit,
	}
}

// idFilter builds the _id filter for a hex id. A malformed id matches
// nothing rather than erroring, same as the store's Update/Delete.
func idFilter(id string) (store.Filter, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return store.Filter{store.Eq("_id", oid)}, true
}
