package config

import "fmt"

// LoadProfile returns a configuration tuned for a named deployment profile,
// with environment variables applied on top.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "debug"
		cfg.Realtime.Dispatch = "sync"
	case EnvStaging:
		cfg.Environment = EnvStaging
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Security.EnableRateLimit = true
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
