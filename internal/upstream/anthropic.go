package upstream

import (
	"context"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/providers"
)

// anthropicFormat uses the Messages API. SDK retries are disabled so that
// Client owns the retry budget.
type anthropicFormat struct{}

func (anthropicFormat) Name() string { return config.FormatAnthropic }

func (anthropicFormat) Complete(ctx context.Context, httpClient *http.Client, p providers.Provider, call Call) (string, error) {
	opts := []option.RequestOption{
		option.WithBaseURL(p.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if p.APIKey != "" {
		opts = append(opts, option.WithAPIKey(p.APIKey))
	}
	for k, v := range p.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropic.MessageNewParams{
		Model:       anthropic.Model(call.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(call.Prompt))},
		Temperature: anthropic.Float(min(call.Temperature, 1)),
	}
	if call.TopP != nil {
		body.TopP = anthropic.Float(*call.TopP)
	}
	if len(call.Stop) > 0 {
		body.StopSequences = call.Stop
	}

	msg, err := client.Messages.New(ctx, body)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, ""), nil
}
