package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase connects Database to a real mongo deployment.
type MongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, selects database, and pings it once so connection
// failures surface at startup rather than on the first query.
func Connect(ctx context.Context, uri, database string) (*MongoDatabase, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoDatabase{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (d *MongoDatabase) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Collection returns a mongo-backed Collection for name.
func (d *MongoDatabase) Collection(name string) Collection {
	return &mongoCollection{coll: d.db.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func projectionDoc(fields []string) bson.M {
	if len(fields) == 0 {
		return nil
	}
	proj := bson.M{}
	for _, f := range fields {
		proj[f] = 1
	}
	return proj
}

func (c *mongoCollection) Find(ctx context.Context, filter map[string]interface{}, projection []string) ([]map[string]interface{}, error) {
	opts := options.Find()
	if proj := projectionDoc(projection); proj != nil {
		opts.SetProjection(proj)
	}
	cur, err := c.coll.Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []map[string]interface{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, map[string]interface{}(doc))
	}
	return docs, cur.Err()
}

func (c *mongoCollection) FindByIDs(ctx context.Context, ids []interface{}, projection []string) ([]map[string]interface{}, error) {
	return c.Find(ctx, map[string]interface{}{"_id": bson.M{"$in": ids}}, projection)
}

func (c *mongoCollection) ListIndexes(ctx context.Context) ([]string, error) {
	cur, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		if name, ok := idx["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, cur.Err()
}

func (c *mongoCollection) CreateIndex(ctx context.Context, field string) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", field, err)
	}
	return nil
}

// MatchCollection returns a mongo-backed MatchStore for the trial_match
// collection, used only by the diff/persist step.
func (d *MongoDatabase) MatchCollection(name string) MatchStore {
	return &mongoCollection{coll: d.db.Collection(name)}
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []map[string]interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = d
	}
	if _, err := c.coll.InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("insert trial matches: %w", err)
	}
	return nil
}

func (c *mongoCollection) DisableStale(ctx context.Context, protocolNo string, liveHashes []string) error {
	filter := bson.M{
		"protocol_no": protocolNo,
		"hash":        bson.M{"$nin": liveHashes},
	}
	_, err := c.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_disabled": true}})
	if err != nil {
		return fmt.Errorf("disable stale trial matches: %w", err)
	}
	return nil
}
