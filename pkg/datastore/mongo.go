package datastore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConnector opens a dedicated MongoDB client per session.
type MongoConnector struct{}

var _ Connector = MongoConnector{}

// Connect implements Connector.
func (MongoConnector) Connect(ctx context.Context, uri string) (Session, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri is empty")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	return &mongoSession{client: client}, nil
}

type mongoSession struct {
	client *mongo.Client
}

func (s *mongoSession) Collection(database, name string) Collection {
	return &mongoCollection{coll: s.client.Database(database).Collection(name)}
}

func (s *mongoSession) EnsureCollection(ctx context.Context, database, name string) error {
	db := s.client.Database(database)

	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if len(names) > 0 {
		return nil
	}

	err = db.CreateCollection(ctx, name)

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
		return nil
	}

	return err
}

func (s *mongoSession) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) FindOne(ctx context.Context, filter map[string]any) (map[string]any, error) {
	var doc bson.M

	err := c.coll.FindOne(ctx, bson.M(filter)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return normalizeDocument(doc), nil
}

func (c *mongoCollection) FindMany(ctx context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error) {
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for field, direction := range opts.Sort {
			sort = append(sort, bson.E{Key: field, Value: direction})
		}

		findOpts.SetSort(sort)
	}

	cursor, err := c.coll.Find(ctx, bson.M(filter), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M

	err = cursor.All(ctx, &docs)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = normalizeDocument(doc)
	}

	return out, nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc map[string]any) (any, error) {
	result, err := c.coll.InsertOne(ctx, bson.M(doc))
	if err != nil {
		return nil, err
	}

	return normalizeValue(result.InsertedID), nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []map[string]any) ([]any, error) {
	items := make([]any, len(docs))
	for i, doc := range docs {
		items[i] = bson.M(doc)
	}

	result, err := c.coll.InsertMany(ctx, items)
	if err != nil {
		return nil, err
	}

	ids := make([]any, len(result.InsertedIDs))
	for i, id := range result.InsertedIDs {
		ids[i] = normalizeValue(id)
	}

	return ids, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update map[string]any) (UpdateResult, error) {
	result, err := c.coll.UpdateOne(ctx, bson.M(filter), bson.M(update))
	if err != nil {
		return UpdateResult{}, err
	}

	return UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter, update map[string]any) (UpdateResult, error) {
	result, err := c.coll.UpdateMany(ctx, bson.M(filter), bson.M(update))
	if err != nil {
		return UpdateResult{}, err
	}

	return UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter map[string]any) (int64, error) {
	result, err := c.coll.DeleteOne(ctx, bson.M(filter))
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter map[string]any) (int64, error) {
	result, err := c.coll.DeleteMany(ctx, bson.M(filter))
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

// normalizeDocument converts driver types into plain JSON-like values so the
// resolver, the sandbox and the HTTP layer see ordinary maps and slices.
func normalizeDocument(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}

	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case bson.M:
		return normalizeDocument(v)
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = normalizeValue(e.Value)
		}

		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}

		return out
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	default:
		return v
	}
}
