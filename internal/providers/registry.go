package providers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/Davincible/toolbridge/internal/config"
)

// ErrModelNotFound is returned when a model resolves to no provider and no
// default provider is configured.
var ErrModelNotFound = errors.New("model not found")

// Provider is a configured upstream endpoint. Values are immutable once the
// registry is built.
type Provider struct {
	Name         string
	BaseURL      string
	APIKey       string
	Models       []string
	Headers      map[string]string
	Format       string
	Path         string
	ResponsePath string
}

// FromConfig converts a provider config section.
func FromConfig(p config.ProviderConfig) Provider {
	headers := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}
	format := p.Format
	if format == "" {
		format = config.FormatOpenAI
	}
	return Provider{
		Name:         p.Name,
		BaseURL:      strings.TrimRight(p.BaseURL, "/"),
		APIKey:       p.APIKey,
		Models:       slices.Clone(p.Models),
		Headers:      headers,
		Format:       format,
		Path:         p.Path,
		ResponsePath: p.ResponsePath,
	}
}

// Serves reports whether the provider declares model.
func (p Provider) Serves(model string) bool {
	return slices.Contains(p.Models, model)
}

// Endpoint joins the base URL with the configured path, or defaultPath when
// no path is configured.
func (p Provider) Endpoint(defaultPath string) string {
	path := p.Path
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return p.BaseURL
	}
	return p.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// RequestHeaders returns the headers attached to every upstream call.
func (p Provider) RequestHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if p.APIKey != "" {
		h.Set("Authorization", "Bearer "+p.APIKey)
	}
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	return h
}

// Registry resolves model names to providers. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	providers   map[string]Provider
	order       []string
	defaultName string
	modelIndex  map[string]string
}

// NewRegistry builds a registry. defaultName may be empty, in which case
// unknown models fail to resolve.
func NewRegistry(defaultName string, providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers:  make(map[string]Provider, len(providers)),
		modelIndex: make(map[string]string),
	}

	for _, p := range providers {
		if p.Name == "" {
			return nil, errors.New("provider name is required")
		}
		if _, dup := r.providers[p.Name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Name)
		}
		r.providers[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	sort.Strings(r.order)

	if defaultName != "" {
		if _, ok := r.providers[defaultName]; !ok {
			return nil, fmt.Errorf("default provider %q is not registered", defaultName)
		}
		r.defaultName = defaultName
	}

	// The default provider claims shared model names first, then the rest in
	// name order.
	for _, name := range r.lookupOrder() {
		for _, model := range r.providers[name].Models {
			if _, taken := r.modelIndex[model]; !taken {
				r.modelIndex[model] = name
			}
		}
	}

	return r, nil
}

// NewRegistryFromConfig builds a registry from the loaded configuration.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.ProviderNames() {
		providers = append(providers, FromConfig(cfg.Providers[name]))
	}
	return NewRegistry(cfg.DefaultProvider, providers...)
}

func (r *Registry) lookupOrder() []string {
	if r.defaultName == "" {
		return r.order
	}
	order := make([]string, 0, len(r.order))
	order = append(order, r.defaultName)
	for _, name := range r.order {
		if name != r.defaultName {
			order = append(order, name)
		}
	}
	return order
}

// Resolve returns the provider declaring model, falling back to the default
// provider for undeclared names.
func (r *Registry) Resolve(model string) (Provider, error) {
	if name, ok := r.modelIndex[model]; ok {
		return r.providers[name], nil
	}
	if p, ok := r.Default(); ok {
		return p, nil
	}
	return Provider{}, fmt.Errorf("%w: %q", ErrModelNotFound, model)
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Default returns the default provider, if one is configured.
func (r *Registry) Default() (Provider, bool) {
	if r.defaultName == "" {
		return Provider{}, false
	}
	return r.Get(r.defaultName)
}

// ListModels returns only the default provider's declared models, in
// declaration order. Models served by other providers are not listed.
func (r *Registry) ListModels() []string {
	p, ok := r.Default()
	if !ok {
		return nil
	}
	return slices.Clone(p.Models)
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	return slices.Clone(r.order)
}

// Providers returns all providers in name order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}
