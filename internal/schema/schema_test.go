package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_Unmarshal(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `"hello"`, "hello"},
		{"null", `null`, ""},
		{"parts", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb"},
		{"string parts", `["x","y"]`, "x\ny"},
		{"object", `{"type":"text","text":"solo"}`, "solo"},
		{"number", `42`, "42"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c Content
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &c))
			assert.Equal(t, tc.want, c.String())
		})
	}
}

func TestToolChoice_Unmarshal(t *testing.T) {
	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"tool_choice":"none"}`), &req))
	assert.True(t, req.ToolChoice.Disabled())

	require.NoError(t, json.Unmarshal([]byte(`{"tool_choice":{"type":"function","function":{"name":"get_weather"}}}`), &req))
	assert.Equal(t, ToolChoiceRequired, req.ToolChoice.Mode)
	assert.Equal(t, "get_weather", req.ToolChoice.Function)

	out, err := json.Marshal(req.ToolChoice)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"get_weather"}}`, string(out))
}

func TestStop_Unmarshal(t *testing.T) {
	var s Stop
	require.NoError(t, json.Unmarshal([]byte(`"END"`), &s))
	assert.Equal(t, Stop{"END"}, s)

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &s))
	assert.Equal(t, Stop{"a", "b"}, s)
}

func TestChatCompletionRequest_Validate(t *testing.T) {
	valid := ChatCompletionRequest{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tools:    []Tool{{Type: ToolTypeFunction, Function: FunctionDefinition{Name: "f"}}},
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, []string{"f"}, valid.ToolNames())

	noModel := valid
	noModel.Model = " "
	assert.Error(t, noModel.Validate())

	noMessages := valid
	noMessages.Messages = nil
	assert.Error(t, noMessages.Validate())

	badRole := valid
	badRole.Messages = []Message{{Role: "robot"}}
	assert.Error(t, badRole.Validate())

	badTool := valid
	badTool.Tools = []Tool{{Type: ToolTypeFunction}}
	assert.Error(t, badTool.Validate())
}

func TestChunk_FinishReasonSerializesNull(t *testing.T) {
	chunk := ChatCompletionChunk{
		ID:      "chatcmpl-1",
		Object:  ObjectChatCompletionChunk,
		Choices: []ChunkChoice{{Delta: Delta{Content: Ptr("hi")}}},
	}
	out, err := json.Marshal(chunk)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"finish_reason":null`)
	assert.NotContains(t, string(out), `"usage"`)
}
