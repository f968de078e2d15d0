package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore resolves secrets kept outside the config file.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithDefault(ctx context.Context, key, fallback string) string
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret %s not set", key)
	}
	return value, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

// LoadSecretsFromEnv fills the sensitive config fields from environment
// variables, leaving file-provided values in place when no secret is set.
func (c *Config) LoadSecretsFromEnv(ctx context.Context) error {
	store := NewEnvironmentSecretStore()
	c.Storage.SQL.DSN = store.GetWithDefault(ctx, "LEARNSYNC_SQL_DSN", c.Storage.SQL.DSN)
	c.Storage.Redis.Password = store.GetWithDefault(ctx, "LEARNSYNC_REDIS_PASSWORD", c.Storage.Redis.Password)
	if keys := store.GetWithDefault(ctx, "LEARNSYNC_SECURITY_API_KEYS", ""); keys != "" {
		// Comma-separated, same format the env loader accepts.
		var parsed []string
		for _, key := range strings.Split(keys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				parsed = append(parsed, key)
			}
		}
		c.Security.APIKeys = parsed
	}
	return nil
}
