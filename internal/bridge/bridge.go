// Package bridge runs the request pipeline: classify, build the prompt,
// resolve the provider, call upstream, and parse the reply.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/parser"
	"github.com/Davincible/toolbridge/internal/prompt"
	"github.com/Davincible/toolbridge/internal/providers"
	"github.com/Davincible/toolbridge/internal/schema"
	"github.com/Davincible/toolbridge/internal/tokens"
	"github.com/Davincible/toolbridge/internal/upstream"
)

// Sender performs the upstream call, including retries.
type Sender interface {
	Send(ctx context.Context, p providers.Provider, call upstream.Call) (string, error)
}

type Options struct {
	Registry    *providers.Registry
	Synthesizer *prompt.Synthesizer
	Upstream    Sender
	Tokens      tokens.Estimator
	Defaults    config.SamplingDefaults
}

type Bridge struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(opts Options, logger *slog.Logger) *Bridge {
	if opts.Tokens == nil {
		opts.Tokens = tokens.Heuristic{}
	}
	return &Bridge{opts: opts, logger: logger, now: time.Now}
}

// Complete runs one request to completion. Errors are *RequestError,
// *ConfigurationError, *UpstreamError, or the context's error when ctx
// ends first.
func (b *Bridge) Complete(ctx context.Context, req *schema.ChatCompletionRequest) (*Completion, error) {
	id := NewCompletionID()
	logger := b.logger.With("request_id", id, "model", req.Model)

	if err := req.Validate(); err != nil {
		logger.Warn("Rejected request", "error", err)
		return nil, &RequestError{Err: err}
	}

	if ids := prompt.UnlinkedToolResults(req.Messages); len(ids) > 0 {
		logger.Warn("Protocol violation", "error", &ProtocolViolation{ToolCallIDs: ids})
	}

	p, err := b.opts.Synthesizer.Build(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	logger = logger.With("classification", p.Classification.String())
	logger.Debug("Prompt built",
		"template", p.Classification.Template(),
		"chars", len(p.Text),
		"dropped_messages", p.Dropped)

	provider, err := b.opts.Registry.Resolve(req.Model)
	if err != nil {
		logger.Warn("Model not resolvable", "error", err)
		return nil, &ConfigurationError{Model: req.Model, Err: err}
	}
	logger = logger.With("provider", provider.Name)
	if !provider.Serves(req.Model) {
		logger.Debug("Model not declared by any provider, using default provider")
	}

	start := b.now()
	raw, err := b.opts.Upstream.Send(ctx, provider, b.call(req, p))
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("Request cancelled", "error", ctx.Err())
			return nil, ctx.Err()
		}
		logger.Error("Request failed", "error", err, "duration", time.Since(start))
		return nil, &UpstreamError{Provider: provider.Name, Err: err}
	}

	result := parser.Parse(raw, p.Classification, p.ToolNames)
	if result.Degraded {
		logger.Warn("Tool call degraded to plain answer", "reason", result.Reason)
	}

	completion := &Completion{
		ID:               id,
		Created:          start.Unix(),
		Model:            req.Model,
		Provider:         provider.Name,
		Classification:   p.Classification,
		Result:           result,
		PromptTokens:     b.opts.Tokens.Count(p.Text),
		CompletionTokens: b.opts.Tokens.Count(raw),
	}

	logger.Info("Completed",
		"result", result.Kind.String(),
		"duration", time.Since(start),
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens)

	return completion, nil
}

func (b *Bridge) call(req *schema.ChatCompletionRequest, p prompt.Prompt) upstream.Call {
	call := upstream.Call{
		Model:       req.Model,
		Prompt:      p.Text,
		Temperature: b.opts.Defaults.Temperature,
		MaxTokens:   b.opts.Defaults.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if req.Temperature != nil {
		call.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		call.MaxTokens = *req.MaxTokens
	}
	return call
}

// NewCompletionID returns a chat completion identifier.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
