package secrets

import (
	"context"
	"errors"

	"github.com/dukex/flowrun/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore reads secrets from a MongoDB collection with documents shaped
// {tenant, project, provider, data}.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Resolver = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed resolver.
// dbName defaults to "flowrun" and collName to "secrets".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "flowrun"
	}

	if collName == "" {
		collName = "secrets"
	}

	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

// SecretByProvider implements Resolver.
func (s *MongoStore) SecretByProvider(ctx context.Context, tenant, projectID, provider string) (*models.Secret, error) {
	filter := bson.M{
		"tenant":   tenant,
		"project":  projectID,
		"provider": provider,
	}

	var secret models.Secret

	err := s.coll.FindOne(ctx, filter).Decode(&secret)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = ErrSecretNotFound
		}

		return nil, &LookupError{Tenant: tenant, Project: projectID, Provider: provider, Err: err}
	}

	return &secret, nil
}

// Save upserts a secret. Used by seeding tools and tests.
func (s *MongoStore) Save(ctx context.Context, secret *models.Secret) error {
	filter := bson.M{
		"tenant":   secret.Tenant,
		"project":  secret.Project,
		"provider": secret.Provider,
	}

	_, err := s.coll.ReplaceOne(ctx, filter, secret, options.Replace().SetUpsert(true))

	return err
}
