package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo is the MongoDB-backed Store. It is an explicitly constructed
// handle: opened at process start, closed at shutdown.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.SugaredLogger

	mu      sync.Mutex
	keys    map[string][]string
	indexed map[string]bool
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, uri, dbName string, log *zap.SugaredLogger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, wrapErr(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, wrapErr(err)
	}
	log.Infow("connected to document store", "database", dbName)
	return &Mongo{
		client:  client,
		db:      client.Database(dbName),
		log:     log,
		keys:    make(map[string][]string),
		indexed: make(map[string]bool),
	}, nil
}

// Close releases the client. The handle must not be used afterwards.
func (m *Mongo) Close(ctx context.Context) error {
	m.log.Info("closing document store connection")
	return wrapErr(m.client.Disconnect(ctx))
}

func (m *Mongo) RegisterNaturalKey(collection string, fields ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[collection] = fields
}

// ensureIndex creates the uniqueness index on the collection's natural
// key once per process. Write paths call it before touching documents.
func (m *Mongo) ensureIndex(ctx context.Context, collection string) error {
	m.mu.Lock()
	fields, registered := m.keys[collection]
	done := m.indexed[collection]
	m.mu.Unlock()
	if !registered || done {
		return nil
	}

	keys := bson.D{}
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	_, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return wrapErr(err)
	}
	m.log.Debugw("ensured unique index", "collection", collection, "fields", fields)

	m.mu.Lock()
	m.indexed[collection] = true
	m.mu.Unlock()
	return nil
}

func (m *Mongo) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if err := m.ensureIndex(ctx, collection); err != nil {
		return "", err
	}
	res, err := m.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", wrapErr(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

func (m *Mongo) FindOne(ctx context.Context, collection string, filter Filter, dest any) error {
	err := m.db.Collection(collection).FindOne(ctx, filter.bson()).Decode(dest)
	return wrapErr(err)
}

func (m *Mongo) FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions, dest any) error {
	fo := options.Find()
	if opts.SortField != "" {
		dir := 1
		if opts.SortDesc {
			dir = -1
		}
		fo.SetSort(bson.D{{Key: opts.SortField, Value: dir}})
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	cur, err := m.db.Collection(collection).Find(ctx, filter.bson(), fo)
	if err != nil {
		return wrapErr(err)
	}
	return wrapErr(cur.All(ctx, dest))
}

func (m *Mongo) Update(ctx context.Context, collection, id string, patch map[string]any) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	if err := m.ensureIndex(ctx, collection); err != nil {
		return false, err
	}
	patch["updated_at"] = time.Now().UTC()
	res, err := m.db.Collection(collection).UpdateByID(ctx, oid, bson.M{"$set": patch})
	if err != nil {
		return false, wrapErr(err)
	}
	return res.MatchedCount > 0, nil
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, wrapErr(err)
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	n, err := m.db.Collection(collection).CountDocuments(ctx, filter.bson())
	return n, wrapErr(err)
}

func (m *Mongo) Upsert(ctx context.Context, collection string, key Filter, doc any) error {
	if err := m.ensureIndex(ctx, collection); err != nil {
		return err
	}
	_, err := m.db.Collection(collection).ReplaceOne(ctx, key.bson(), doc,
		options.Replace().SetUpsert(true))
	return wrapErr(err)
}

func (m *Mongo) GroupBy(ctx context.Context, collection string, q GroupQuery) ([]GroupRow, error) {
	pipeline := mongo.Pipeline{}
	if len(q.Filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: q.Filter.bson()}})
	}

	var key any
	if q.GroupBy != "" {
		key = "$" + q.GroupBy
	}
	group := bson.D{
		{Key: "_id", Value: key},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}
	for i, f := range q.Averages {
		group = append(group, bson.E{
			Key:   fmt.Sprintf("avg%d", i),
			Value: bson.D{{Key: "$avg", Value: "$" + f}},
		})
	}
	for i, f := range q.NonNullCounts {
		group = append(group, bson.E{
			Key: fmt.Sprintf("nn%d", i),
			Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$ne", Value: bson.A{"$" + f, nil}}}, 1, 0,
			}}}}},
		})
	}
	for i, f := range q.TrueCounts {
		group = append(group, bson.E{
			Key: fmt.Sprintf("tc%d", i),
			Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				"$" + f, 1, 0,
			}}}}},
		})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: group}})

	// Deterministic order: primary mean descending, group key ascending.
	sort := bson.D{}
	if len(q.Averages) > 0 {
		sort = append(sort, bson.E{Key: "avg0", Value: -1})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sort}})

	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: q.Limit}})
	}

	cur, err := m.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr(err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, wrapErr(err)
	}

	rows := make([]GroupRow, 0, len(raw))
	for _, doc := range raw {
		row := GroupRow{
			Key:      doc["_id"],
			Count:    asInt64(doc["count"]),
			Averages: make(map[string]*float64, len(q.Averages)),
			NonNull:  make(map[string]int64, len(q.NonNullCounts)),
			True:     make(map[string]int64, len(q.TrueCounts)),
		}
		for i, f := range q.Averages {
			row.Averages[f] = asFloatPtr(doc[fmt.Sprintf("avg%d", i)])
		}
		for i, f := range q.NonNullCounts {
			row.NonNull[f] = asInt64(doc[fmt.Sprintf("nn%d", i)])
		}
		for i, f := range q.TrueCounts {
			row.True[f] = asInt64(doc[fmt.Sprintf("tc%d", i)])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Mongo) Bucket(ctx context.Context, collection string, q BucketQuery) ([]BucketRow, error) {
	boundaries := bson.A{}
	for _, b := range q.Boundaries {
		boundaries = append(boundaries, b)
	}

	pipeline := mongo.Pipeline{}
	if len(q.Filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: q.Filter.bson()}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$bucket", Value: bson.D{
		{Key: "groupBy", Value: "$" + q.Field},
		{Key: "boundaries", Value: boundaries},
		{Key: "default", Value: "overflow"},
		{Key: "output", Value: bson.D{
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}},
	}}})

	cur, err := m.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapErr(err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, wrapErr(err)
	}

	rows := make([]BucketRow, 0, len(raw))
	for _, doc := range raw {
		row := BucketRow{Count: asInt64(doc["count"])}
		if lower, ok := asFloat(doc["_id"]); ok {
			row.Lower = lower
		} else {
			row.Overflow = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// wrapErr maps driver errors onto the adapter's taxonomy.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asFloatPtr(v any) *float64 {
	if f, ok := asFloat(v); ok {
		return &f
	}
	return nil
}

func asInt64(v any) int64 {
	f, _ := asFloat(v)
	return int64(f)
}
