package parser

import (
	"strings"

	"github.com/Davincible/toolbridge/internal/prompt"
)

// Span is a sentinel region of text: [Start, End) byte offsets covering the
// markers, and the payload between them.
type Span struct {
	Start   int
	End     int
	Payload string
}

// Spans finds every sentinel region in text in order. An unterminated
// region extends to the end of text.
func Spans(text string) []Span {
	var spans []Span
	for pos := 0; pos < len(text); {
		start, marker := nextMarker(text, pos)
		if start < 0 {
			break
		}
		body := start + len(marker)

		var span Span
		switch {
		case marker == prompt.SentinelStart && strings.Contains(text[body:], prompt.SentinelEnd):
			end := body + strings.Index(text[body:], prompt.SentinelEnd)
			span = Span{Start: start, End: end + len(prompt.SentinelEnd), Payload: text[body:end]}
		default:
			objStart, objEnd, ok := balancedObject(text, body)
			if !ok {
				span = Span{Start: start, End: len(text), Payload: text[body:]}
			} else {
				span = Span{Start: start, End: objEnd, Payload: text[objStart:objEnd]}
			}
		}

		spans = append(spans, span)
		pos = span.End
	}
	return spans
}

func nextMarker(text string, from int) (int, string) {
	block := strings.Index(text[from:], prompt.SentinelStart)
	legacy := strings.Index(text[from:], prompt.LegacySentinel)
	switch {
	case block < 0 && legacy < 0:
		return -1, ""
	case legacy < 0 || (block >= 0 && block <= legacy):
		return from + block, prompt.SentinelStart
	default:
		return from + legacy, prompt.LegacySentinel
	}
}

// balancedObject locates the first '{' at or after from and returns the
// bounds of the object it opens. Braces inside JSON strings are ignored.
func balancedObject(s string, from int) (start, end int, ok bool) {
	idx := strings.IndexByte(s[from:], '{')
	if idx < 0 {
		return 0, 0, false
	}
	start = from + idx

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return start, 0, false
}
