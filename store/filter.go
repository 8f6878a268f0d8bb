package store

import "go.mongodb.org/mongo-driver/bson"

// CondKind tags the filter variants a repository may compose.
type CondKind int

const (
	// CondExact matches a field against a single value.
	CondExact CondKind = iota
	// CondRange matches a field against an inclusive interval. Either
	// bound may be nil, leaving that side open.
	CondRange
	// CondIn matches a field against a set of values.
	CondIn
)

// Cond is one condition of a filter.
type Cond struct {
	Field  string
	Kind   CondKind
	Value  any
	Min    any
	Max    any
	Values []any
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Cond

// Eq builds an exact-match condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Kind: CondExact, Value: value}
}

// Between builds an inclusive range condition. A nil bound is open.
func Between(field string, min, max any) Cond {
	return Cond{Field: field, Kind: CondRange, Min: min, Max: max}
}

// AtLeast builds a lower-bounded range condition.
func AtLeast(field string, min any) Cond {
	return Between(field, min, nil)
}

// In builds a set-membership condition.
func In(field string, values ...any) Cond {
	return Cond{Field: field, Kind: CondIn, Values: values}
}

// bson renders the filter as a MongoDB filter document. Range conditions
// on the same field are merged into one operator document.
func (f Filter) bson() bson.M {
	m := bson.M{}
	for _, c := range f {
		switch c.Kind {
		case CondExact:
			m[c.Field] = c.Value
		case CondIn:
			m[c.Field] = bson.M{"$in": c.Values}
		case CondRange:
			ops, ok := m[c.Field].(bson.M)
			if !ok {
				ops = bson.M{}
			}
			if c.Min != nil {
				ops["$gte"] = c.Min
			}
			if c.Max != nil {
				ops["$lte"] = c.Max
			}
			m[c.Field] = ops
		}
	}
	return m
}
