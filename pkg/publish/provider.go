// Package publish ships run artifacts to remote storage and notifies a webhook once a run is done.
package publish

import (
	"context"
	"io"
	"sort"

	"github.com/rotisserie/eris"
)

// Provider uploads files to remote storage.
type Provider interface {
	// Upload stores content from reader at remotePath
	Upload(ctx context.Context, reader io.Reader, remotePath string) error

	// Configure sets up the provider with the given settings
	Configure(config map[string]interface{}) error

	Name() string
}

// ProviderFactory creates a new, unconfigured provider instance
type ProviderFactory func() Provider

// Registry holds all available upload providers
var Registry = make(map[string]ProviderFactory)

// RegisterProvider makes a provider available to NewProvider
func RegisterProvider(name string, factory ProviderFactory) {
	Registry[name] = factory
}

// NewProvider creates a provider by name
func NewProvider(name string) (Provider, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, eris.Errorf("unknown upload provider %s, available: %v", name, ProviderNames())
	}
	return factory(), nil
}

// ProviderNames lists the registered providers in alphabetical order.
func ProviderNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterProvider("minio", func() Provider {
		return NewMinioProvider()
	})
}

func getString(config map[string]interface{}, key string) (string, bool) {
	if val, ok := config[key]; ok {
		if str, ok := val.(string); ok && str != "" {
			return str, true
		}
	}
	return "", false
}

func getStringDefault(config map[string]interface{}, key, defaultValue string) string {
	if val, ok := getString(config, key); ok {
		return val
	}
	return defaultValue
}
