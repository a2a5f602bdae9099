// Package secrets resolves tenant/project/provider-scoped credential bundles.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
)

// Well-known providers.
const (
	ProviderMongoDB  = "mongodb"
	ProviderDatabase = "database"
	ProviderJWT      = "jwt"
)

// ErrSecretNotFound is returned when no secret matches the requested tuple.
var ErrSecretNotFound = errors.New("secret not found")

// Resolver looks up a secret by (tenant, project, provider).
type Resolver interface {
	SecretByProvider(ctx context.Context, tenant, projectID, provider string) (*models.Secret, error)
}

// LookupError wraps resolver failures with the requested tuple.
type LookupError struct {
	Tenant   string
	Project  string
	Provider string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("secret lookup failed for %s/%s/%s: %v", e.Tenant, e.Project, e.Provider, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the secret does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}

func key(tenant, projectID, provider string) string {
	return tenant + "/" + projectID + "/" + provider
}

// MemoryStore is an in-process Resolver, used for development and tests.
type MemoryStore struct {
	mutex   sync.RWMutex
	secrets map[string]*models.Secret
}

// NewMemoryStore creates a store preloaded with secrets.
func NewMemoryStore(secrets ...*models.Secret) *MemoryStore {
	store := &MemoryStore{secrets: make(map[string]*models.Secret)}

	for _, secret := range secrets {
		store.Put(secret)
	}

	return store
}

// Put adds or replaces a secret.
func (s *MemoryStore) Put(secret *models.Secret) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.secrets[key(secret.Tenant, secret.Project, secret.Provider)] = secret
}

// SecretByProvider implements Resolver.
func (s *MemoryStore) SecretByProvider(_ context.Context, tenant, projectID, provider string) (*models.Secret, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	secret, ok := s.secrets[key(tenant, projectID, provider)]
	if !ok {
		return nil, &LookupError{Tenant: tenant, Project: projectID, Provider: provider, Err: ErrSecretNotFound}
	}

	return secret, nil
}
