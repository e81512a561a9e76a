package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/toolbridge/internal/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry("openai",
		Provider{Name: "openai", BaseURL: "https://api.openai.com/v1", Models: []string{"gpt-4o-mini", "shared"}, Format: config.FormatOpenAI},
		Provider{Name: "local", BaseURL: "http://localhost:8000/v1", Models: []string{"llama-3", "shared"}, Format: config.FormatCompletion},
	)
	require.NoError(t, err)
	return registry
}

func TestRegistry_Resolve(t *testing.T) {
	registry := testRegistry(t)

	testCases := []struct {
		model    string
		expected string
	}{
		{"gpt-4o-mini", "openai"},
		{"llama-3", "local"},
		{"shared", "openai"},
		{"free-form-model", "openai"},
	}

	for _, tc := range testCases {
		provider, err := registry.Resolve(tc.model)
		require.NoError(t, err, "should resolve model %s", tc.model)
		assert.Equal(t, tc.expected, provider.Name, "provider for model %s", tc.model)
	}
}

func TestRegistry_ResolveWithoutDefault(t *testing.T) {
	registry, err := NewRegistry("", Provider{Name: "local", Models: []string{"llama-3"}})
	require.NoError(t, err)

	_, err = registry.Resolve("llama-3")
	require.NoError(t, err)

	_, err = registry.Resolve("unknown")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistry_ListModelsOnlyDefault(t *testing.T) {
	registry := testRegistry(t)
	assert.Equal(t, []string{"gpt-4o-mini", "shared"}, registry.ListModels())

	models := registry.ListModels()
	models[0] = "mutated"
	assert.Equal(t, "gpt-4o-mini", registry.ListModels()[0], "callers must not mutate registry state")
}

func TestRegistry_List(t *testing.T) {
	registry := testRegistry(t)
	assert.Equal(t, []string{"local", "openai"}, registry.List())
	assert.Len(t, registry.Providers(), 2)
}

func TestRegistry_Errors(t *testing.T) {
	_, err := NewRegistry("missing", Provider{Name: "a"})
	assert.Error(t, err, "unknown default provider")

	_, err = NewRegistry("", Provider{Name: "a"}, Provider{Name: "a"})
	assert.Error(t, err, "duplicate provider")

	_, err = NewRegistry("", Provider{})
	assert.Error(t, err, "empty name")
}

func TestRegistry_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultProvider = "p"
	cfg.Providers["p"] = config.ProviderConfig{
		Name:    "p",
		BaseURL: "http://example.com/v1/",
		APIKey:  "secret",
		Models:  []string{"m"},
		Headers: map[string]string{"x-org": "acme"},
	}

	registry, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, ok := registry.Get("p")
	require.True(t, ok)
	assert.Equal(t, "http://example.com/v1", p.BaseURL)
	assert.Equal(t, config.FormatOpenAI, p.Format)
	assert.Equal(t, "http://example.com/v1/chat/completions", p.Endpoint("/chat/completions"))

	headers := p.RequestHeaders()
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "acme", headers.Get("X-Org"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestProvider_EndpointOverride(t *testing.T) {
	p := Provider{BaseURL: "http://host", Path: "generate"}
	assert.Equal(t, "http://host/generate", p.Endpoint("/completions"))
	assert.True(t, Provider{Models: []string{"x"}}.Serves("x"))
}
