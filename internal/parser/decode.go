package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"
)

type call struct {
	name      string
	arguments string
}

// wirePayload accepts the key spellings models tend to produce.
type wirePayload struct {
	Name       string          `json:"name"`
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
	Input      json.RawMessage `json:"input"`
	Function   *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

func decodePayload(payload string) (call, error) {
	start, end, ok := balancedObject(payload, 0)
	if !ok {
		return call{}, errors.New("no JSON object in tool call")
	}

	var p wirePayload
	if err := unmarshal([]byte(payload[start:end]), &p); err != nil {
		return call{}, fmt.Errorf("decode tool call: %w", err)
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.ToolName)
	}
	raw := firstPresent(p.Arguments, p.Parameters, p.Input)
	if p.Function != nil {
		if name == "" {
			name = strings.TrimSpace(p.Function.Name)
		}
		if raw == nil {
			raw = p.Function.Arguments
		}
	}
	if name == "" {
		return call{}, errors.New("tool call has no name")
	}

	args, err := normalizeArguments(raw)
	if err != nil {
		return call{}, err
	}
	return call{name: name, arguments: args}, nil
}

// unmarshal decodes leniently first, allowing comments and trailing commas,
// then strictly.
func unmarshal(data []byte, v any) error {
	if std, err := hujson.Standardize(bytes.Clone(data)); err == nil {
		if err := decodeJSON(std, v); err == nil {
			return nil
		}
	}
	return decodeJSON(data, v)
}

// decodeJSON keeps numbers as json.Number so large integers survive
// re-encoding.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(bytes.TrimSpace(v)) > 0 {
			return v
		}
	}
	return nil
}

// normalizeArguments accepts an object, a JSON string holding an object, or
// nothing, and returns a compact JSON object.
func normalizeArguments(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "{}", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
		return decodeArguments(s)
	}

	var args map[string]any
	if err := unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("arguments must be an object: %w", err)
	}
	return compact(args)
}

func decodeArguments(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "{}", nil
	}
	var args map[string]any
	if err := unmarshal([]byte(s), &args); err != nil {
		return "", fmt.Errorf("arguments must be an object: %w", err)
	}
	return compact(args)
}

func compact(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	return string(data), nil
}
