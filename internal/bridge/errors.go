package bridge

import (
	"fmt"
	"strings"
)

// RequestError is an inbound request that fails validation.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return "invalid request: " + e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

// ConfigurationError means the model resolves to no provider. It is
// reported before any upstream call.
type ConfigurationError struct {
	Model string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("model %q is not available: %v", e.Model, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamError is a provider failure after the retry budget is spent.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider %s failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ProtocolViolation describes tool messages whose tool_call_id no earlier
// assistant message issued. It is logged, never returned to callers.
type ProtocolViolation struct {
	ToolCallIDs []string
}

func (e *ProtocolViolation) Error() string {
	return "tool messages reference unknown tool_call_id: " + strings.Join(e.ToolCallIDs, ", ")
}
