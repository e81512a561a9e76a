package stream

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/toolbridge/internal/parser"
	"github.com/Davincible/toolbridge/internal/schema"
)

const mixedText = "Hi 👋🏽, family 👨‍👩‍👧 says café and naïve! 北京欢迎你。Flags 🇯🇵🇫🇷 too? Done."

func graphemes(s string) []string {
	var out []string
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		out = append(out, cluster)
	}
	return out
}

func collect(seq func(func(Chunk) bool)) []Chunk {
	var chunks []Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestSegment_ConcatenationAndGraphemeSafety(t *testing.T) {
	texts := []string{
		mixedText,
		"",
		"plain ascii only",
		"é́ stacked marks",
		"before <<<TOOL_CALL>>>{\"name\": \"x\"}<<<END_TOOL_CALL>>> after",
	}

	for _, text := range texts {
		for _, g := range []Granularity{Characters, Words, Sentences} {
			t.Run(g.String()+"/"+text, func(t *testing.T) {
				segments := Segment(text, g)
				assert.Equal(t, text, strings.Join(segments, ""))

				var clusters []string
				for _, seg := range segments {
					assert.True(t, utf8.ValidString(seg))
					assert.NotEmpty(t, seg)
					clusters = append(clusters, graphemes(seg)...)
				}
				assert.Equal(t, graphemes(text), clusters, "segments must not split grapheme clusters")
			})
		}
	}
}

func TestSegment_Units(t *testing.T) {
	assert.Equal(t, []string{"H", "i", "👍🏽"}, Segment("Hi👍🏽", Characters))
	assert.Equal(t, []string{"Hello, ", "world! "}, Segment("Hello, world! ", Words))
	assert.Equal(t, []string{"One. ", "Two! ", "Three?"}, Segment("One. Two! Three?", Sentences))
}

func TestSegment_SentinelIsAtomic(t *testing.T) {
	sentinel := "<<<TOOL_CALL>>>\n{\"name\": \"get_current_time\", \"arguments\": {}}\n<<<END_TOOL_CALL>>>"
	text := "ok " + sentinel + " bye"

	for _, g := range []Granularity{Characters, Words, Sentences} {
		assert.Contains(t, Segment(text, g), sentinel, g.String())
	}
}

func TestChooseGranularity(t *testing.T) {
	assert.Equal(t, Characters, ChooseGranularity("short", 10, 20))
	assert.Equal(t, Words, ChooseGranularity(strings.Repeat("a", 10), 10, 20))
	assert.Equal(t, Sentences, ChooseGranularity(strings.Repeat("a", 20), 10, 20))
	// Ten emoji are ten characters, not forty bytes.
	assert.Equal(t, Words, ChooseGranularity(strings.Repeat("👨‍👩‍👧", 10), 10, 20))
}

func TestChunks_PlainAnswer(t *testing.T) {
	s := New(Options{ShortThreshold: 80, LongThreshold: 600})

	for _, text := range []string{mixedText, "Hello", strings.Repeat("A sentence here. ", 50)} {
		chunks := collect(s.Chunks(context.Background(), parser.Plain(text)))
		require.GreaterOrEqual(t, len(chunks), 2)

		var content strings.Builder
		for i, c := range chunks {
			assert.Equal(t, i, c.Index, "indices are contiguous from zero")
			if i < len(chunks)-1 {
				assert.Empty(t, c.FinishReason)
				content.WriteString(c.Content)
			}
		}
		assert.Equal(t, text, content.String())
		assert.Equal(t, schema.RoleAssistant, chunks[0].Role)
		assert.Empty(t, chunks[1].Role)

		last := chunks[len(chunks)-1]
		assert.Equal(t, schema.FinishReasonStop, last.FinishReason)
		assert.Empty(t, last.Content)
		assert.True(t, last.Terminal())
	}
}

func TestChunks_EmptyAnswer(t *testing.T) {
	chunks := collect(New(Options{}).Chunks(context.Background(), parser.Plain("")))
	require.Len(t, chunks, 2)
	assert.Equal(t, schema.RoleAssistant, chunks[0].Role)
	assert.Equal(t, schema.FinishReasonStop, chunks[1].FinishReason)
}

func TestChunks_ToolInvocation(t *testing.T) {
	inv := &parser.Invocation{ID: "call_1", Name: "get_current_time", Arguments: `{"timezone":"UTC"}`}
	result := parser.Result{Kind: parser.ToolInvocation, Text: "raw", Invocation: inv}

	chunks := collect(New(Options{}).Chunks(context.Background(), result))
	require.Len(t, chunks, 2)
	assert.Equal(t, inv, chunks[0].ToolCall)
	assert.Equal(t, schema.RoleAssistant, chunks[0].Role)
	assert.Empty(t, chunks[0].Content)
	assert.Equal(t, schema.FinishReasonToolCalls, chunks[1].FinishReason)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunks_MaxChars(t *testing.T) {
	chunks := collect(New(Options{ShortThreshold: 100, LongThreshold: 200, MaxChars: 4}).
		Chunks(context.Background(), parser.Plain("abcdefghij")))
	require.Len(t, chunks, 5)
	assert.Equal(t, "abcd", chunks[0].Content+chunks[1].Content+chunks[2].Content+chunks[3].Content)
	assert.Equal(t, schema.FinishReasonLength, chunks[4].FinishReason)

	// Word mode cuts inside the word that crosses the budget.
	chunks = collect(New(Options{ShortThreshold: 1, LongThreshold: 200, MaxChars: 7}).
		Chunks(context.Background(), parser.Plain("hello world")))
	require.Len(t, chunks, 3)
	assert.Equal(t, "hello ", chunks[0].Content)
	assert.Equal(t, "w", chunks[1].Content)
	assert.Equal(t, schema.FinishReasonLength, chunks[2].FinishReason)

	// Exactly at budget finishes normally.
	chunks = collect(New(Options{ShortThreshold: 100, MaxChars: 3}).
		Chunks(context.Background(), parser.Plain("abc")))
	assert.Equal(t, schema.FinishReasonStop, chunks[len(chunks)-1].FinishReason)
}

func TestChunks_MarkerInProseIsNotAtomic(t *testing.T) {
	text := "TOOL_CALL: not json at all 你好世界"
	chunks := collect(New(Options{ShortThreshold: 100, LongThreshold: 200, MaxChars: 3}).
		Chunks(context.Background(), parser.Plain(text)))
	require.Len(t, chunks, 4)
	assert.Equal(t, "TOO", chunks[0].Content+chunks[1].Content+chunks[2].Content)
	assert.Equal(t, schema.FinishReasonLength, chunks[3].FinishReason)

	chunks = collect(New(Options{ShortThreshold: 100, LongThreshold: 200}).
		Chunks(context.Background(), parser.Plain(text)))
	assert.Len(t, chunks, utf8.RuneCountInString(text)+1)
}

func TestChunks_DegradedSentinelIsAtomic(t *testing.T) {
	sentinel := "<<<TOOL_CALL>>>{not json}<<<END_TOOL_CALL>>>"
	result := parser.Plain("x " + sentinel)
	result.Degraded = true

	chunks := collect(New(Options{ShortThreshold: 100, LongThreshold: 200}).
		Chunks(context.Background(), result))
	require.Len(t, chunks, 4)
	assert.Equal(t, "x", chunks[0].Content)
	assert.Equal(t, " ", chunks[1].Content)
	assert.Equal(t, sentinel, chunks[2].Content)
	assert.Equal(t, schema.FinishReasonStop, chunks[3].FinishReason)
}

func TestChunks_CallerDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var chunks []Chunk
	for c := range New(Options{ShortThreshold: 100}).Chunks(ctx, parser.Plain("abcdef")) {
		chunks = append(chunks, c)
		cancel()
	}

	require.Len(t, chunks, 1, "production stops at the next yield point")
	assert.Empty(t, chunks[0].FinishReason)
}

func TestChunks_ConsumerStops(t *testing.T) {
	count := 0
	for range New(Options{ShortThreshold: 100}).Chunks(context.Background(), parser.Plain("abcdef")) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestChunks_DeadlineEndsWithError(t *testing.T) {
	s := New(Options{ShortThreshold: 1000, Delay: 20 * time.Millisecond, Timeout: 50 * time.Millisecond})
	chunks := collect(s.Chunks(context.Background(), parser.Plain(strings.Repeat("x", 100))))

	require.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 101)
	assert.Equal(t, schema.FinishReasonError, chunks[len(chunks)-1].FinishReason)
}

func TestChunks_SingleUse(t *testing.T) {
	seq := New(Options{}).Chunks(context.Background(), parser.Plain("hi"))
	assert.NotEmpty(t, collect(seq))
	assert.Empty(t, collect(seq), "sequence is not restartable")
}

func TestChunks_PacingDelay(t *testing.T) {
	s := New(Options{ShortThreshold: 100, Delay: 10 * time.Millisecond})
	start := time.Now()
	chunks := collect(s.Chunks(context.Background(), parser.Plain("abcd")))
	assert.Len(t, chunks, 5)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
