package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Davincible/toolbridge/internal/schema"
)

// Sentinel markers delimiting a tool call in model output. The parser
// recognises the same markers.
const (
	SentinelStart = "<<<TOOL_CALL>>>"
	SentinelEnd   = "<<<END_TOOL_CALL>>>"
	// LegacySentinel prefixes a bare JSON object: TOOL_CALL: {"tool_name": ...}
	LegacySentinel = "TOOL_CALL:"
)

type renderFunc func(messages []schema.Message) string

func renderToolCall(tools []schema.Tool, choice schema.ToolChoice) renderFunc {
	return func(messages []schema.Message) string {
		var b strings.Builder

		writeSystem(&b, messages)
		b.WriteString("You have access to the following tools:\n\n")
		for _, t := range tools {
			writeTool(&b, t.Function)
		}

		b.WriteString("To use a tool, reply with exactly one block in this format and nothing after it:\n")
		b.WriteString(SentinelStart + "\n")
		b.WriteString(`{"name": "<tool name>", "arguments": {"<parameter>": <value>}}` + "\n")
		b.WriteString(SentinelEnd + "\n\n")
		b.WriteString("The arguments must be a JSON object that matches the tool's parameters. ")
		b.WriteString("If no tool is needed, answer the user directly in plain text and do not write the block.\n")
		switch {
		case choice.Function != "":
			fmt.Fprintf(&b, "You must call the tool %q in this reply.\n", choice.Function)
		case choice.Mode == schema.ToolChoiceRequired:
			b.WriteString("You must call one of the tools in this reply.\n")
		}

		latest := lastIndexOfRole(messages, schema.RoleUser)
		history := messages
		var after []schema.Message
		if latest >= 0 {
			history, after = messages[:latest], messages[latest+1:]
		}
		if hasTurns(history) {
			b.WriteString("\nConversation so far:\n")
			writeTranscript(&b, history)
		}
		if latest >= 0 {
			b.WriteString("\nCurrent request:\n")
			writeTurn(&b, messages[latest], nil)
		}
		writeTranscript(&b, after)
		b.WriteString("Assistant:")
		return b.String()
	}
}

func renderToolResult(messages []schema.Message) string {
	var b strings.Builder

	writeSystem(&b, messages)

	calls := lastIndexWithCalls(messages)
	latest := lastIndexOfRole(messages, schema.RoleUser)
	if latest >= 0 && hasTurns(messages[:latest]) {
		b.WriteString("Conversation so far:\n")
		writeTranscript(&b, messages[:latest])
		b.WriteString("\n")
	}
	if latest >= 0 {
		fmt.Fprintf(&b, "The user asked:\n%s\n\n", messages[latest].Content)
	}

	names := toolCallNames(messages)
	if calls >= 0 {
		for _, tc := range messages[calls].ToolCalls {
			fmt.Fprintf(&b, "You called the tool %q with arguments %s.\n", tc.Function.Name, compactArgs(tc.Function.Arguments))
		}
		for _, m := range messages[calls+1:] {
			if m.Role != schema.RoleTool {
				continue
			}
			name := names[m.ToolCallID]
			if name == "" {
				name = "tool"
			}
			fmt.Fprintf(&b, "\nResult from %s:\n%s\n", name, m.Content)
		}
	}

	b.WriteString("\nUsing the tool results above, write the final answer to the user's request in natural language. ")
	b.WriteString("Do not call any tools and do not write a " + SentinelStart + " block.\n")
	b.WriteString("Assistant:")
	return b.String()
}

func renderTranscript(messages []schema.Message) string {
	var b strings.Builder
	writeSystem(&b, messages)
	writeTranscript(&b, messages)
	b.WriteString("Assistant:")
	return b.String()
}

func writeSystem(b *strings.Builder, messages []schema.Message) {
	var parts []string
	for _, m := range messages {
		if m.Role == schema.RoleSystem && strings.TrimSpace(string(m.Content)) != "" {
			parts = append(parts, strings.TrimSpace(string(m.Content)))
		}
	}
	if len(parts) > 0 {
		b.WriteString(strings.Join(parts, "\n\n"))
		b.WriteString("\n\n")
	}
}

func writeTool(b *strings.Builder, fn schema.FunctionDefinition) {
	fmt.Fprintf(b, "Tool: %s\n", fn.Name)
	if fn.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", fn.Description)
	}
	if len(fn.Parameters.Properties) == 0 {
		b.WriteString("Parameters: none\n\n")
		return
	}

	b.WriteString("Parameters:\n")
	names := make([]string, 0, len(fn.Parameters.Properties))
	for name := range fn.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := fn.Parameters.Properties[name]
		typ := prop.Type
		if typ == "" {
			typ = "any"
		}
		qualifier := "optional"
		if fn.Parameters.IsRequired(name) {
			qualifier = "required"
		}
		if prop.Default != nil {
			qualifier += ", default " + jsonValue(prop.Default)
		}
		fmt.Fprintf(b, "- %s (%s, %s)", name, typ, qualifier)
		if prop.Description != "" {
			fmt.Fprintf(b, ": %s", prop.Description)
		}
		if len(prop.Enum) > 0 {
			values := make([]string, 0, len(prop.Enum))
			for _, v := range prop.Enum {
				values = append(values, jsonValue(v))
			}
			fmt.Fprintf(b, " One of: %s.", strings.Join(values, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeTranscript(b *strings.Builder, messages []schema.Message) {
	names := toolCallNames(messages)
	for _, m := range messages {
		writeTurn(b, m, names)
	}
}

func writeTurn(b *strings.Builder, m schema.Message, names map[string]string) {
	switch m.Role {
	case schema.RoleSystem:
	case schema.RoleUser:
		fmt.Fprintf(b, "User: %s\n", m.Content)
	case schema.RoleAssistant:
		if m.Content != "" {
			fmt.Fprintf(b, "Assistant: %s\n", m.Content)
		}
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(b, "Assistant called tool %q with arguments %s\n", tc.Function.Name, compactArgs(tc.Function.Arguments))
		}
	case schema.RoleTool:
		if name := names[m.ToolCallID]; name != "" {
			fmt.Fprintf(b, "Tool result (%s): %s\n", name, m.Content)
		} else {
			fmt.Fprintf(b, "Tool result: %s\n", m.Content)
		}
	}
}

func hasTurns(messages []schema.Message) bool {
	for _, m := range messages {
		if m.Role != schema.RoleSystem {
			return true
		}
	}
	return false
}

func toolCallNames(messages []schema.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Function.Name
		}
	}
	return names
}

func lastIndexOfRole(messages []schema.Message, role string) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return i
		}
	}
	return -1
}

func lastIndexWithCalls(messages []schema.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == schema.RoleAssistant && len(messages[i].ToolCalls) > 0 {
			return i
		}
	}
	return -1
}

// compactArgs normalises a JSON argument string; non-JSON is kept as is.
func compactArgs(args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return "{}"
	}
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return args
	}
	return jsonValue(v)
}

func jsonValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
