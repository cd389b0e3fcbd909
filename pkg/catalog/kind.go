package catalog

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"pytc/pkg/config"
)

// Deps are the shared collaborators handed to provider factories.
type Deps struct {
	HTTPClient *http.Client
}

// Factory builds a remote provider from its config entry.
type Factory func(src config.SourceConfig, deps Deps) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterKind makes a provider kind available to config files.
func RegisterKind(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds lists the registered provider kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewFromConfig instantiates one provider per configured source, in order.
func NewFromConfig(sources []config.SourceConfig, deps Deps) ([]Provider, error) {
	var out []Provider
	for _, src := range sources {
		mu.RLock()
		f, ok := factories[src.Kind]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown source kind %q (known: %v)", src.Kind, Kinds())
		}
		p, err := f(src, deps)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
