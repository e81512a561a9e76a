package stream

import (
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/Davincible/toolbridge/internal/parser"
)

// Granularity is the unit a plain answer is streamed in.
type Granularity int

const (
	Characters Granularity = iota
	Words
	Sentences
)

func (g Granularity) String() string {
	switch g {
	case Words:
		return "words"
	case Sentences:
		return "sentences"
	default:
		return "characters"
	}
}

// ChooseGranularity picks characters below short, words below long and
// sentences otherwise. Lengths are in grapheme clusters.
func ChooseGranularity(text string, short, long int) Granularity {
	n := uniseg.GraphemeClusterCount(text)
	switch {
	case n < short:
		return Characters
	case n < long:
		return Words
	default:
		return Sentences
	}
}

// Segment splits text into chunks of the given granularity. Every chunk is
// a whole number of grapheme clusters, sentinel regions are never split, and
// the chunks concatenate back to text.
func Segment(text string, g Granularity) []string {
	var out []string
	pos := 0
	for _, span := range parser.Spans(text) {
		out = append(out, segmentPlain(text[pos:span.Start], g)...)
		out = append(out, text[span.Start:span.End])
		pos = span.End
	}
	return append(out, segmentPlain(text[pos:], g)...)
}

func segmentPlain(text string, g Granularity) []string {
	var out []string
	state := -1
	var segment string

	for len(text) > 0 {
		switch g {
		case Words:
			segment, text, state = uniseg.FirstWordInString(text, state)
			// Spaces and punctuation ride along with the preceding word.
			if len(out) > 0 && !hasWordRune(segment) {
				out[len(out)-1] += segment
				continue
			}
		case Sentences:
			segment, text, state = uniseg.FirstSentenceInString(text, state)
		default:
			segment, text, _, state = uniseg.FirstGraphemeClusterInString(text, state)
		}
		out = append(out, segment)
	}
	return out
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.So, r) {
			return true
		}
	}
	return false
}

// truncateGraphemes returns the first n grapheme clusters of s.
func truncateGraphemes(s string, n int) string {
	state := -1
	end := 0
	rest := s
	for i := 0; i < n && len(rest) > 0; i++ {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		end += len(cluster)
	}
	return s[:end]
}
