// Package datastore gives the mongodb and database nodes a scoped document
// store connection and a single dispatcher for the supported operations.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

// ErrUnsupportedOperation is returned for an unknown operation name.
var ErrUnsupportedOperation = errors.New("unsupported datastore operation")

// Connector opens a session against the datastore at uri.
type Connector interface {
	Connect(ctx context.Context, uri string) (Session, error)
}

// Session is a connection opened for one node invocation. Callers must Close it.
type Session interface {
	Collection(database, name string) Collection
	// EnsureCollection creates the collection when it does not exist yet.
	EnsureCollection(ctx context.Context, database, name string) error
	Close(ctx context.Context) error
}

// FindOptions tunes FindMany.
type FindOptions struct {
	Limit int64
	Skip  int64
	Sort  map[string]int
}

// UpdateResult reports the outcome of an update.
type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// Collection is the document API the nodes need.
type Collection interface {
	FindOne(ctx context.Context, filter map[string]any) (map[string]any, error)
	FindMany(ctx context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error)
	InsertOne(ctx context.Context, doc map[string]any) (any, error)
	InsertMany(ctx context.Context, docs []map[string]any) ([]any, error)
	UpdateOne(ctx context.Context, filter, update map[string]any) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update map[string]any) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter map[string]any) (int64, error)
	DeleteMany(ctx context.Context, filter map[string]any) (int64, error)
}

// Execute runs one operation against coll with already-resolved query and data.
func Execute(ctx context.Context, coll Collection, op models.DatastoreOperation, query, data any, opts *models.QueryOptions) (any, error) {
	filter, err := asDocument(query, "query")
	if err != nil {
		return nil, err
	}

	switch op {
	case models.OpFindOne:
		doc, err := coll.FindOne(ctx, filter)
		if err != nil {
			return nil, err
		}

		if doc == nil {
			return nil, nil
		}

		return doc, nil
	case models.OpFindMany:
		docs, err := coll.FindMany(ctx, filter, findOptions(opts))
		if err != nil {
			return nil, err
		}

		out := make([]any, len(docs))
		for i, doc := range docs {
			out[i] = doc
		}

		return out, nil
	case models.OpInsertOne:
		doc, err := asDocument(data, "data")
		if err != nil {
			return nil, err
		}

		id, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}

		return map[string]any{"insertedId": id}, nil
	case models.OpInsertMany:
		docs, err := asDocuments(data)
		if err != nil {
			return nil, err
		}

		ids, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return nil, err
		}

		return map[string]any{"insertedIds": ids, "insertedCount": len(ids)}, nil
	case models.OpUpdateOne, models.OpUpdateMany:
		update, err := asDocument(data, "data")
		if err != nil {
			return nil, err
		}

		update = UpdateDocument(update)

		var result UpdateResult
		if op == models.OpUpdateOne {
			result, err = coll.UpdateOne(ctx, filter, update)
		} else {
			result, err = coll.UpdateMany(ctx, filter, update)
		}

		if err != nil {
			return nil, err
		}

		return map[string]any{"matchedCount": result.MatchedCount, "modifiedCount": result.ModifiedCount}, nil
	case models.OpDeleteOne, models.OpDeleteMany:
		var (
			deleted int64
			err     error
		)

		if op == models.OpDeleteOne {
			deleted, err = coll.DeleteOne(ctx, filter)
		} else {
			deleted, err = coll.DeleteMany(ctx, filter)
		}

		if err != nil {
			return nil, err
		}

		return map[string]any{"deletedCount": deleted}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}
}

// UpdateDocument wraps a plain field map in $set. Documents that already use
// update operators are returned unchanged.
func UpdateDocument(update map[string]any) map[string]any {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return update
		}
	}

	return map[string]any{"$set": update}
}

// UpdatedFields returns the fields an update document writes, for validation.
func UpdatedFields(update map[string]any) map[string]any {
	set, ok := update["$set"].(map[string]any)
	if ok {
		return set
	}

	for k := range update {
		if strings.HasPrefix(k, "$") {
			return map[string]any{}
		}
	}

	return update
}

func findOptions(opts *models.QueryOptions) FindOptions {
	if opts == nil {
		return FindOptions{}
	}

	return FindOptions{Limit: opts.Limit, Skip: opts.Skip, Sort: opts.Sort}
}

func asDocument(value any, field string) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%s must be an object, got %T", field, value)
	}
}

func asDocuments(value any) ([]map[string]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("data must be an array of objects, got %T", value)
	}

	docs := make([]map[string]any, 0, len(items))

	for i, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("data[%d] must be an object, got %T", i, item)
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
