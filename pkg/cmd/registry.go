package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dukex/flowrun/pkg/datastore"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/sandbox"
	"github.com/dukex/flowrun/pkg/secrets"
	"github.com/dukex/flowrun/pkg/sweeper"
)

const (
	secretsDatabase   = "flowrun"
	secretsCollection = "secrets"
)

// RegistryConfig selects the collaborators injected into node handlers.
type RegistryConfig struct {
	// SecretsMongoURI holds project secrets. Empty uses an in-memory store.
	SecretsMongoURI string
	SecretsTTL      time.Duration

	// PlatformDatastoreURI backs database nodes of projects without a
	// database secret.
	PlatformDatastoreURI string
	ScriptTimeout        time.Duration
}

// NewNodeRegistry builds the registry with every built-in node. The returned
// function disconnects the secrets store.
func NewNodeRegistry(
	ctx context.Context,
	logger *slog.Logger,
	sw *sweeper.Sweeper,
	config RegistryConfig,
) (*registry.Registry, func(context.Context) error, error) {
	var (
		store   secrets.Resolver = secrets.NewMemoryStore()
		cleanup                  = func(context.Context) error { return nil }
	)

	if config.SecretsMongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.SecretsMongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to secrets store: %w", err)
		}

		store = secrets.NewMongoStore(client, secretsDatabase, secretsCollection)
		cleanup = client.Disconnect
	} else {
		logger.WarnContext(ctx, "No secrets store configured, project secrets will not resolve")
	}

	cache := secrets.NewCache(store, config.SecretsTTL, logger.With("module", "secrets"))
	if err := cache.Register(sw); err != nil {
		_ = cleanup(ctx)

		return nil, nil, err
	}

	sandboxConfig := sandbox.DefaultConfig()
	if config.ScriptTimeout > 0 {
		sandboxConfig.Timeout = config.ScriptTimeout
	}

	reg := registry.NewRegistry(logger, protocol.Dependencies{
		Sandbox:              sandbox.New(sandboxConfig, logger.With("module", "sandbox")),
		Secrets:              cache,
		Datastore:            datastore.MongoConnector{},
		PlatformDatastoreURI: config.PlatformDatastoreURI,
	})

	if err := reg.RegisterDefaultNodes(); err != nil {
		_ = cleanup(ctx)

		return nil, nil, fmt.Errorf("failed to register nodes: %w", err)
	}

	return reg, cleanup, nil
}
