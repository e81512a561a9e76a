// Package upstream sends synthesized prompts to configured providers.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/providers"
)

type Options struct {
	// Attempts is the total number of tries per Send, including the first.
	Attempts int
	// Timeout bounds each attempt.
	Timeout    time.Duration
	Backoff    Backoff
	HTTPClient *http.Client
}

// OptionsFromConfig maps service settings to client options.
func OptionsFromConfig(cfg *config.Config) Options {
	var backoff Backoff = FixedBackoff{Delay: cfg.RetryDelay}
	if cfg.RetryBackoff == config.BackoffExponential {
		backoff = ExponentialBackoff{Base: cfg.RetryDelay, Max: 30 * time.Second, Jitter: 0.2}
	}
	return Options{
		Attempts: cfg.MaxRetries,
		Timeout:  cfg.RequestTimeout,
		Backoff:  backoff,
	}
}

// Client calls providers through their wire format with a bounded retry
// loop. It is safe for concurrent use.
type Client struct {
	opts    Options
	formats map[string]Format
	logger  *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = FixedBackoff{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{opts: opts, formats: Formats(), logger: logger}
}

// Send returns the provider's completion text. Every failure is retried
// until attempts run out, unless ctx itself is done. Exhaustion yields a
// *RetryError wrapping the last failure.
func (c *Client) Send(ctx context.Context, p providers.Provider, call Call) (string, error) {
	format, ok := c.formats[p.Format]
	if !ok {
		return "", fmt.Errorf("provider %s: unknown wire format %q", p.Name, p.Format)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		c.logger.Debug("Upstream attempt",
			"provider", p.Name,
			"format", format.Name(),
			"model", call.Model,
			"attempt", attempt)

		text, err := c.attempt(ctx, format, p, call)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		c.logger.Warn("Upstream attempt failed",
			"provider", p.Name,
			"attempt", attempt,
			"max_attempts", c.opts.Attempts,
			"error", err)

		if attempt < c.opts.Attempts {
			if err := sleep(ctx, c.opts.Backoff.Next(attempt)); err != nil {
				return "", err
			}
		}
	}

	return "", &RetryError{Provider: p.Name, Attempts: c.opts.Attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, format Format, p providers.Provider, call Call) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	text, err := format.Complete(ctx, c.opts.HTTPClient, p, call)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
