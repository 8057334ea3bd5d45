package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/creditstudio/CreditStudio/internal/config"
)

// Registry maps provider names to generators.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds g under its provider name, replacing any previous generator.
func (r *Registry) Register(g Generator) error {
	if r == nil || g == nil {
		return fmt.Errorf("provider: nil registry or generator")
	}
	key := registryKey(g.ProviderName())
	if key == "" {
		return fmt.Errorf("provider: generator has empty name")
	}
	r.mu.Lock()
	r.generators[key] = g
	r.mu.Unlock()
	return nil
}

// Remove deletes the generator registered under name.
func (r *Registry) Remove(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.generators, registryKey(name))
	r.mu.Unlock()
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	g, ok := r.generators[registryKey(name)]
	r.mu.RUnlock()
	return g, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]string, 0, len(r.generators))
	for name := range r.generators {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Adapter types accepted in configuration.
const (
	AdapterEcho     = "echo"
	AdapterHTTPJSON = "http_json"
)

// BuildRegistry creates generators for every configured provider.
func BuildRegistry(cfgs []config.ProviderConfig, client *http.Client) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range cfgs {
		var g Generator
		switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
		case AdapterEcho, "":
			g = NewEcho(cfg.Name, cfg.Model, ParseModelType(cfg.ModelType))
		case AdapterHTTPJSON:
			adapter, errAdapter := NewHTTPJSON(cfg, client)
			if errAdapter != nil {
				return nil, errAdapter
			}
			g = adapter
		default:
			return nil, fmt.Errorf("provider: %s: unknown adapter type %q", cfg.Name, cfg.Type)
		}
		if errRegister := reg.Register(g); errRegister != nil {
			return nil, errRegister
		}
	}
	return reg, nil
}
