// Package prompt classifies inbound conversations and renders the text
// prompt sent to upstream models that lack native tool calling.
package prompt

import (
	"github.com/Davincible/toolbridge/internal/schema"
)

// Classification is the request kind derived from the conversation shape.
type Classification int

const (
	PlainChat Classification = iota
	NewToolCall
	ToolResultFollowUp
)

func (c Classification) String() string {
	switch c {
	case NewToolCall:
		return "new_tool_call"
	case ToolResultFollowUp:
		return "tool_result_follow_up"
	default:
		return "plain_chat"
	}
}

// Template names the instruction template used for the classification.
func (c Classification) Template() string {
	switch c {
	case NewToolCall:
		return "tool_catalogue"
	case ToolResultFollowUp:
		return "tool_result"
	default:
		return "transcript"
	}
}

// Classify derives the request kind. Rules are evaluated in priority order:
// a trailing tool result that answers a prior assistant call is a follow-up;
// otherwise available tools with no pending call mean a new tool call;
// everything else is plain chat. It never mutates messages.
func Classify(messages []schema.Message, tools []schema.Tool, choice schema.ToolChoice) Classification {
	if len(messages) == 0 {
		return PlainChat
	}

	last := messages[len(messages)-1]
	if last.Role == schema.RoleTool {
		if callIssued(messages[:len(messages)-1], last.ToolCallID) {
			return ToolResultFollowUp
		}
		// A tool result nobody asked for is handled as plain conversation.
		return PlainChat
	}

	if len(tools) > 0 && !choice.Disabled() && !hasPendingCall(messages) {
		return NewToolCall
	}
	return PlainChat
}

// callIssued reports whether an assistant message in messages issued id.
func callIssued(messages []schema.Message, id string) bool {
	if id == "" {
		return false
	}
	for _, m := range messages {
		if m.Role != schema.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == id {
				return true
			}
		}
	}
	return false
}

// hasPendingCall reports whether the latest assistant tool-call message comes
// after the latest user message and still has an unanswered call id.
func hasPendingCall(messages []schema.Message) bool {
	lastUser, lastCalls := -1, -1
	for i, m := range messages {
		switch {
		case m.Role == schema.RoleUser:
			lastUser = i
		case m.Role == schema.RoleAssistant && len(m.ToolCalls) > 0:
			lastCalls = i
		}
	}
	if lastCalls < 0 || lastCalls < lastUser {
		return false
	}

	answered := make(map[string]bool)
	for _, m := range messages[lastCalls+1:] {
		if m.Role == schema.RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	for _, tc := range messages[lastCalls].ToolCalls {
		if !answered[tc.ID] {
			return true
		}
	}
	return false
}

// UnlinkedToolResults returns the tool_call_id of every tool message that no
// preceding assistant message issued.
func UnlinkedToolResults(messages []schema.Message) []string {
	var ids []string
	for i, m := range messages {
		if m.Role == schema.RoleTool && !callIssued(messages[:i], m.ToolCallID) {
			ids = append(ids, m.ToolCallID)
		}
	}
	return ids
}
