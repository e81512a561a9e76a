package upstream

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/providers"
)

// completionPaths are tried in order when a provider sets no response_path.
var completionPaths = []string{"choices.0.text", "completion", "response", "text", "content", "output"}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

// completionFormat speaks the generic prompt-in, text-out shape used by
// legacy completion endpoints and most self-hosted servers.
type completionFormat struct{}

func (completionFormat) Name() string { return config.FormatCompletion }

func (completionFormat) Complete(ctx context.Context, httpClient *http.Client, p providers.Provider, call Call) (string, error) {
	body := completionRequest{
		Model:       call.Model,
		Prompt:      call.Prompt,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
		TopP:        call.TopP,
		Stop:        call.Stop,
	}

	resp, err := postJSON(ctx, httpClient, p.Endpoint("/completions"), p.RequestHeaders(), body)
	if err != nil {
		return "", err
	}

	if mediaType, _, _ := mime.ParseMediaType(resp.contentType); mediaType == "text/plain" {
		return string(resp.body), nil
	}
	return extractCompletion(resp.body, p.ResponsePath)
}

func extractCompletion(body []byte, responsePath string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("decode response: invalid JSON")
	}

	paths := completionPaths
	if responsePath != "" {
		paths = []string{responsePath}
	}
	for _, path := range paths {
		if result := gjson.GetBytes(body, path); result.Exists() && result.Type == gjson.String {
			return result.String(), nil
		}
	}
	return "", fmt.Errorf("decode response: no completion text at %v", paths)
}
