package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/providers"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// openAIFormat sends the prompt as a single user message to a chat
// completions endpoint.
type openAIFormat struct{}

func (openAIFormat) Name() string { return config.FormatOpenAI }

func (openAIFormat) Complete(ctx context.Context, httpClient *http.Client, p providers.Provider, call Call) (string, error) {
	body := openAIRequest{
		Model:       call.Model,
		Messages:    []openAIMessage{{Role: "user", Content: call.Prompt}},
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
		TopP:        call.TopP,
		Stop:        call.Stop,
	}

	resp, err := postJSON(ctx, httpClient, p.Endpoint("/chat/completions"), p.RequestHeaders(), body)
	if err != nil {
		return "", err
	}

	var decoded openAIResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("decode response: no message content")
	}
	return *decoded.Choices[0].Message.Content, nil
}
