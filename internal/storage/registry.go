package storage

import (
	"fmt"
	"sort"

	"docvault/internal/config"
)

// Factory constructs a Storage gateway from configuration.
type Factory func(cfg config.StorageConfig) (Storage, error)

// backends maps configuration values to concrete gateway constructors.
// Resolved once at startup; unknown names are a startup error, not a runtime
// fallback.
var backends = map[string]Factory{
	"minio": NewMinIO,
	"s3":    NewMinIO, // same wire protocol, different endpoint/credentials
}

// Register adds a backend factory. Intended for init-time registration of
// additional backends; overwriting an existing name is allowed for tests.
func Register(name string, f Factory) {
	backends[name] = f
}

// New resolves the configured backend name and constructs its gateway.
func New(cfg config.StorageConfig) (Storage, error) {
	f, ok := backends[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (supported: %v)", cfg.Backend, supported())
	}
	return f(cfg)
}

func supported() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
