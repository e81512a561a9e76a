// Package tokens estimates token usage for prompts and completions.
//
// Counts are estimates. They are reported in usage blocks but are not
// billing accurate: the upstream model's tokenizer is unknown.
package tokens

import (
	"log/slog"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// offlineLoader makes encodings load from embedded BPE files instead of
// downloading them on first use.
var offlineLoader sync.Once

// Estimator counts tokens in text.
type Estimator interface {
	Count(text string) int
}

// Heuristic estimates one token per four non-CJK runes plus one token per
// CJK rune, rounded up.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return (other+3)/4 + cjk
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Tiktoken counts with a tiktoken encoding. The encoding is loaded on first
// use; if loading fails every count falls back to Heuristic.
type Tiktoken struct {
	encoding string
	logger   *slog.Logger

	once sync.Once
	tke  *tiktoken.Tiktoken
}

func NewTiktoken(encoding string, logger *slog.Logger) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	offlineLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	return &Tiktoken{encoding: encoding, logger: logger}
}

// Warm loads the encoding now instead of on the first Count.
func (t *Tiktoken) Warm() {
	t.once.Do(t.load)
}

func (t *Tiktoken) load() {
	tke, err := tiktoken.GetEncoding(t.encoding)
	if err != nil {
		t.logger.Warn("Token encoding unavailable, using heuristic counts",
			"encoding", t.encoding, "error", err)
		return
	}
	t.tke = tke
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(t.load)
	if t.tke == nil {
		return Heuristic{}.Count(text)
	}
	return len(t.tke.Encode(text, nil, nil))
}
