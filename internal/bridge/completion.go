package bridge

import (
	"context"
	"iter"

	"github.com/Davincible/toolbridge/internal/parser"
	"github.com/Davincible/toolbridge/internal/prompt"
	"github.com/Davincible/toolbridge/internal/schema"
	"github.com/Davincible/toolbridge/internal/stream"
)

// Completion is a parsed upstream answer ready to render.
type Completion struct {
	ID               string
	Created          int64
	Model            string
	Provider         string
	Classification   prompt.Classification
	Result           parser.Result
	PromptTokens     int
	CompletionTokens int
}

func (c *Completion) Usage() schema.Usage {
	return schema.NewUsage(c.PromptTokens, c.CompletionTokens)
}

// Response renders the non-streaming chat completion object. Content is
// null when the answer is a tool call.
func (c *Completion) Response() schema.ChatCompletionResponse {
	msg := schema.ResponseMessage{Role: schema.RoleAssistant}
	finish := schema.FinishReasonStop

	if c.Result.Kind == parser.ToolInvocation && c.Result.Invocation != nil {
		msg.ToolCalls = []schema.ToolCall{c.Result.Invocation.ToolCall()}
		finish = schema.FinishReasonToolCalls
	} else {
		msg.Content = schema.Ptr(c.Result.Text)
	}

	return schema.ChatCompletionResponse{
		ID:      c.ID,
		Object:  schema.ObjectChatCompletion,
		Created: c.Created,
		Model:   c.Model,
		Choices: []schema.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: c.Usage(),
	}
}

// Chunks renders the streamed chunk objects. The terminal chunk carries
// usage.
func (c *Completion) Chunks(ctx context.Context, s *stream.Streamer) iter.Seq[schema.ChatCompletionChunk] {
	return func(yield func(schema.ChatCompletionChunk) bool) {
		for chunk := range s.Chunks(ctx, c.Result) {
			if !yield(c.render(chunk)) {
				return
			}
		}
	}
}

func (c *Completion) render(chunk stream.Chunk) schema.ChatCompletionChunk {
	choice := schema.ChunkChoice{Index: 0}
	out := schema.ChatCompletionChunk{
		ID:      c.ID,
		Object:  schema.ObjectChatCompletionChunk,
		Created: c.Created,
		Model:   c.Model,
	}

	switch {
	case chunk.Terminal():
		choice.FinishReason = schema.Ptr(chunk.FinishReason)
		usage := c.Usage()
		out.Usage = &usage
	case chunk.ToolCall != nil:
		tc := chunk.ToolCall.ToolCall()
		tc.Index = schema.Ptr(0)
		choice.Delta = schema.Delta{Role: chunk.Role, ToolCalls: []schema.ToolCall{tc}}
	default:
		choice.Delta = schema.Delta{Role: chunk.Role, Content: schema.Ptr(chunk.Content)}
	}

	out.Choices = []schema.ChunkChoice{choice}
	return out
}
