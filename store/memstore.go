package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store with the same observable semantics as the
// MongoDB backend. It backs the test suite and local fixtures; it is not
// meant to hold production data.
type Memory struct {
	mu    sync.RWMutex
	colls map[string][]bson.M
	keys  map[string][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string][]bson.M),
		keys:  make(map[string][]string),
	}
}

// Close is a no-op; there is no connection to release.
func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) RegisterNaturalKey(collection string, fields ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[collection] = fields
}

func (m *Memory) Insert(ctx context.Context, collection string, doc any) (string, error) {
	d, err := toDoc(doc)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if key := m.keys[collection]; len(key) > 0 {
		kf := keyFilterFor(d, key)
		for _, existing := range m.colls[collection] {
			if matches(existing, kf) {
				return "", fmt.Errorf("%w: %s %v", ErrDuplicate, collection, key)
			}
		}
	}
	id := ensureID(d)
	m.colls[collection] = append(m.colls[collection], d)
	return id, nil
}

func (m *Memory) FindOne(ctx context.Context, collection string, filter Filter, dest any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.colls[collection] {
		if matches(d, filter) {
			return decodeDoc(d, dest)
		}
	}
	return ErrNotFound
}

func (m *Memory) FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions, dest any) error {
	m.mu.RLock()
	matched := make([]bson.M, 0)
	for _, d := range m.colls[collection] {
		if matches(d, filter) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	if opts.SortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(pathValue(matched[i], opts.SortField), pathValue(matched[j], opts.SortField))
			if opts.SortDesc {
				return c > 0
			}
			return c < 0
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return decodeDocs(matched, dest)
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]any) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.colls[collection] {
		if got, ok := d["_id"].(primitive.ObjectID); ok && got == oid {
			for k, v := range patch {
				setPath(d, k, v)
			}
			setPath(d, "updated_at", time.Now().UTC())
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.colls[collection]
	for i, d := range docs {
		if got, ok := d["_id"].(primitive.ObjectID); ok && got == oid {
			m.colls[collection] = append(docs[:i:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.colls[collection] {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, key Filter, doc any) error {
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.colls[collection] {
		if matches(existing, key) {
			d["_id"] = existing["_id"]
			m.colls[collection][i] = d
			return nil
		}
	}
	ensureID(d)
	m.colls[collection] = append(m.colls[collection], d)
	return nil
}

func (m *Memory) GroupBy(ctx context.Context, collection string, q GroupQuery) ([]GroupRow, error) {
	m.mu.RLock()
	matched := make([]bson.M, 0)
	for _, d := range m.colls[collection] {
		if matches(d, q.Filter) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	type acc struct {
		key     any
		count   int64
		sums    map[string]float64
		ns      map[string]int64
		nonNull map[string]int64
		trues   map[string]int64
	}
	groups := make(map[string]*acc)
	order := make([]string, 0)

	for _, d := range matched {
		var key any
		if q.GroupBy != "" {
			key = normalizeKey(pathValue(d, q.GroupBy))
		}
		gk := fmt.Sprintf("%T:%v", key, key)
		g, ok := groups[gk]
		if !ok {
			g = &acc{
				key:     key,
				sums:    make(map[string]float64),
				ns:      make(map[string]int64),
				nonNull: make(map[string]int64),
				trues:   make(map[string]int64),
			}
			groups[gk] = g
			order = append(order, gk)
		}
		g.count++
		for _, f := range q.Averages {
			if v, ok := asFloat(pathValue(d, f)); ok {
				g.sums[f] += v
				g.ns[f]++
			}
		}
		for _, f := range q.NonNullCounts {
			if pathValue(d, f) != nil {
				g.nonNull[f]++
			}
		}
		for _, f := range q.TrueCounts {
			if b, ok := pathValue(d, f).(bool); ok && b {
				g.trues[f]++
			}
		}
	}

	rows := make([]GroupRow, 0, len(groups))
	for _, gk := range order {
		g := groups[gk]
		row := GroupRow{
			Key:      g.key,
			Count:    g.count,
			Averages: make(map[string]*float64, len(q.Averages)),
			NonNull:  g.nonNull,
			True:     g.trues,
		}
		for _, f := range q.Averages {
			if n := g.ns[f]; n > 0 {
				avg := g.sums[f] / float64(n)
				row.Averages[f] = &avg
			} else {
				row.Averages[f] = nil
			}
		}
		rows = append(rows, row)
	}

	// Same order the server-side pipeline produces: primary mean
	// descending with groups lacking a mean last, then key ascending.
	sort.SliceStable(rows, func(i, j int) bool {
		if len(q.Averages) > 0 {
			a, b := rows[i].Averages[q.Averages[0]], rows[j].Averages[q.Averages[0]]
			switch {
			case a != nil && b == nil:
				return true
			case a == nil && b != nil:
				return false
			case a != nil && b != nil && *a != *b:
				return *a > *b
			}
		}
		return compareValues(rows[i].Key, rows[j].Key) < 0
	})

	if q.Limit > 0 && int64(len(rows)) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (m *Memory) Bucket(ctx context.Context, collection string, q BucketQuery) ([]BucketRow, error) {
	m.mu.RLock()
	matched := make([]bson.M, 0)
	for _, d := range m.colls[collection] {
		if matches(d, q.Filter) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	counts := make(map[float64]int64)
	var overflow int64
	for _, d := range matched {
		v, ok := asFloat(pathValue(d, q.Field))
		if !ok {
			overflow++
			continue
		}
		placed := false
		for i := 0; i+1 < len(q.Boundaries); i++ {
			if v >= q.Boundaries[i] && v < q.Boundaries[i+1] {
				counts[q.Boundaries[i]]++
				placed = true
				break
			}
		}
		if !placed {
			overflow++
		}
	}

	lowers := make([]float64, 0, len(counts))
	for l := range counts {
		lowers = append(lowers, l)
	}
	sort.Float64s(lowers)

	rows := make([]BucketRow, 0, len(lowers)+1)
	for _, l := range lowers {
		rows = append(rows, BucketRow{Lower: l, Count: counts[l]})
	}
	if overflow > 0 {
		rows = append(rows, BucketRow{Overflow: true, Count: overflow})
	}
	return rows, nil
}

// toDoc round-trips a value through bson so the in-memory form matches
// what the wire codec would store.
func toDoc(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeDoc(d bson.M, dest any) error {
	raw, err := bson.Marshal(d)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, dest)
}

func decodeDocs(docs []bson.M, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to a slice, got %T", dest)
	}
	slice := reflect.MakeSlice(v.Elem().Type(), 0, len(docs))
	for _, d := range docs {
		elem := reflect.New(v.Elem().Type().Elem())
		if err := decodeDoc(d, elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	v.Elem().Set(slice)
	return nil
}

func ensureID(d bson.M) string {
	if oid, ok := d["_id"].(primitive.ObjectID); ok && !oid.IsZero() {
		return oid.Hex()
	}
	oid := primitive.NewObjectID()
	d["_id"] = oid
	return oid.Hex()
}

func keyFilterFor(d bson.M, fields []string) Filter {
	f := make(Filter, 0, len(fields))
	for _, field := range fields {
		f = append(f, Eq(field, pathValue(d, field)))
	}
	return f
}

// pathValue resolves a dotted field path against a document.
func pathValue(d bson.M, path string) any {
	parts := strings.Split(path, ".")
	var cur any = d
	for _, p := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func setPath(d bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	for i := 0; i < len(parts)-1; i++ {
		next, ok := d[parts[i]].(bson.M)
		if !ok {
			next = bson.M{}
			d[parts[i]] = next
		}
		d = next
	}
	d[parts[len(parts)-1]] = value
}

func matches(d bson.M, f Filter) bool {
	for _, c := range f {
		v := pathValue(d, c.Field)
		switch c.Kind {
		case CondExact:
			if !valuesEqual(v, c.Value) {
				return false
			}
		case CondIn:
			found := false
			for _, want := range c.Values {
				if valuesEqual(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case CondRange:
			fv, ok := asFloat(v)
			if !ok {
				return false
			}
			if c.Min != nil {
				if min, ok := asFloat(c.Min); !ok || fv < min {
					return false
				}
			}
			if c.Max != nil {
				if max, ok := asFloat(c.Max); !ok || fv > max {
					return false
				}
			}
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// normalizeKey collapses the integer widths bson decoding may produce so
// equal keys land in the same group.
func normalizeKey(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
	}
	return v
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}
