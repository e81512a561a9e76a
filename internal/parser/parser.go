// Package parser recovers tool invocations from free-text model output.
//
// A tool call is written between sentinel markers:
//
//	<<<TOOL_CALL>>>
//	{"name": "get_current_time", "arguments": {"timezone": "Asia/Shanghai"}}
//	<<<END_TOOL_CALL>>>
//
// The older single-line form TOOL_CALL: {"tool_name": ..., "arguments": ...}
// is accepted too. Anything that fails to decode degrades to a plain answer.
package parser

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Davincible/toolbridge/internal/prompt"
	"github.com/Davincible/toolbridge/internal/schema"
)

type Kind int

const (
	PlainAnswer Kind = iota
	ToolInvocation
)

func (k Kind) String() string {
	if k == ToolInvocation {
		return "tool_invocation"
	}
	return "plain_answer"
}

// Invocation is a recovered tool call. Arguments is a compact JSON object.
type Invocation struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCall renders the invocation in the OpenAI tool_calls shape.
func (inv Invocation) ToolCall() schema.ToolCall {
	return schema.ToolCall{
		ID:   inv.ID,
		Type: schema.ToolTypeFunction,
		Function: schema.FunctionCall{
			Name:      inv.Name,
			Arguments: inv.Arguments,
		},
	}
}

// Result is either a plain answer or a tool invocation. Text always holds
// the raw model output.
type Result struct {
	Kind       Kind
	Text       string
	Invocation *Invocation
	// Degraded is set when a sentinel was present but could not be turned
	// into an invocation; Reason says why.
	Degraded bool
	Reason   string
}

func Plain(text string) Result {
	return Result{Kind: PlainAnswer, Text: text}
}

// Parse interprets raw upstream output. Only NewToolCall requests can yield
// an invocation, and only for a name in toolNames. It never fails.
func Parse(raw string, class prompt.Classification, toolNames []string) Result {
	if class != prompt.NewToolCall {
		return Plain(raw)
	}

	spans := Spans(raw)
	if len(spans) == 0 {
		return Plain(raw)
	}

	var reason string
	for _, span := range spans {
		call, err := decodePayload(span.Payload)
		if err != nil {
			reason = err.Error()
			continue
		}
		name, ok := matchTool(call.name, toolNames)
		if !ok {
			reason = "unknown tool " + quote(call.name)
			continue
		}
		return Result{
			Kind: ToolInvocation,
			Text: raw,
			Invocation: &Invocation{
				ID:        NewCallID(),
				Name:      name,
				Arguments: call.arguments,
			},
		}
	}

	result := Plain(raw)
	result.Degraded = true
	result.Reason = reason
	return result
}

// FromToolCall re-reads an OpenAI tool_calls entry.
func FromToolCall(tc schema.ToolCall) (Invocation, error) {
	args, err := decodeArguments(tc.Function.Arguments)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{ID: tc.ID, Name: tc.Function.Name, Arguments: args}, nil
}

// NewCallID returns a fresh tool call identifier.
func NewCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "call_" + strings.ReplaceAll(id.String(), "-", "")
}

func matchTool(name string, toolNames []string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, n := range toolNames {
		if n == name {
			return n, true
		}
	}
	for _, n := range toolNames {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

func quote(s string) string { return `"` + s + `"` }
