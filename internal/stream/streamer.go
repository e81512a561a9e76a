// Package stream re-chunks a completed answer into an ordered sequence of
// chat completion deltas.
package stream

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rivo/uniseg"

	"github.com/Davincible/toolbridge/internal/config"
	"github.com/Davincible/toolbridge/internal/parser"
	"github.com/Davincible/toolbridge/internal/schema"
)

// Chunk is one streamed delta. FinishReason is empty on every chunk but
// the terminal one, which carries no content.
type Chunk struct {
	Index        int
	Role         string
	Content      string
	ToolCall     *parser.Invocation
	FinishReason string
}

func (c Chunk) Terminal() bool { return c.FinishReason != "" }

type Options struct {
	// Delay paces chunks after the first.
	Delay          time.Duration
	ShortThreshold int
	LongThreshold  int
	// MaxChars caps streamed grapheme clusters; zero means unlimited.
	MaxChars int
	// Timeout bounds the whole stream; zero means unlimited.
	Timeout time.Duration
}

func OptionsFromConfig(cfg config.StreamConfig) Options {
	return Options{
		Delay:          cfg.Delay,
		ShortThreshold: cfg.ShortThreshold,
		LongThreshold:  cfg.LongThreshold,
		MaxChars:       cfg.MaxChars,
		Timeout:        cfg.Timeout,
	}
}

// Streamer is stateless and safe for concurrent use; each Chunks call owns
// its own sequence.
type Streamer struct {
	opts Options
}

func New(opts Options) *Streamer {
	return &Streamer{opts: opts}
}

func (s *Streamer) Granularity(text string) Granularity {
	return ChooseGranularity(text, s.opts.ShortThreshold, s.opts.LongThreshold)
}

// Chunks returns a single-use sequence over result. Indices start at zero
// and increase by one. The sequence ends with a terminal chunk whose
// finish reason is stop, tool_calls, length (MaxChars reached) or error
// (Timeout reached). If ctx is cancelled the sequence ends at the next
// yield point without a terminal chunk.
func (s *Streamer) Chunks(ctx context.Context, result parser.Result) iter.Seq[Chunk] {
	var used atomic.Bool

	return func(yield func(Chunk) bool) {
		if used.Swap(true) {
			return
		}

		var deadline time.Time
		if s.opts.Timeout > 0 {
			deadline = time.Now().Add(s.opts.Timeout)
		}

		index := 0
		emit := func(c Chunk) bool {
			c.Index = index
			index++
			return yield(c)
		}

		if ctx.Err() != nil {
			return
		}

		if result.Kind == parser.ToolInvocation && result.Invocation != nil {
			if emit(Chunk{Role: schema.RoleAssistant, ToolCall: result.Invocation}) {
				emit(Chunk{FinishReason: schema.FinishReasonToolCalls})
			}
			return
		}

		segments := s.segments(result)
		if len(segments) == 0 {
			segments = []string{""}
		}

		sent := 0
		for i, segment := range segments {
			if i > 0 {
				s.pause(ctx, deadline)
			}
			if ctx.Err() != nil {
				return
			}
			if expired(deadline) {
				emit(Chunk{FinishReason: schema.FinishReasonError})
				return
			}

			truncated := false
			if s.opts.MaxChars > 0 {
				remaining := s.opts.MaxChars - sent
				n := uniseg.GraphemeClusterCount(segment)
				if n > remaining {
					truncated = true
					if result.Degraded && len(parser.Spans(segment)) > 0 {
						segment = ""
					} else {
						segment = truncateGraphemes(segment, remaining)
					}
					n = uniseg.GraphemeClusterCount(segment)
				}
				sent += n
			}

			if segment != "" || i == 0 {
				c := Chunk{Content: segment}
				if i == 0 {
					c.Role = schema.RoleAssistant
				}
				if !emit(c) {
					return
				}
			}
			if truncated {
				emit(Chunk{FinishReason: schema.FinishReasonLength})
				return
			}
		}

		emit(Chunk{FinishReason: schema.FinishReasonStop})
	}
}

// segments splits an answer for streaming. Only a degraded tool call keeps
// its sentinel region in one piece; ordinary prose mentioning a marker is
// split like any other text.
func (s *Streamer) segments(result parser.Result) []string {
	g := s.Granularity(result.Text)
	if result.Degraded {
		return Segment(result.Text, g)
	}
	return segmentPlain(result.Text, g)
}

// pause waits Delay, returning early when ctx is done or the deadline
// passes.
func (s *Streamer) pause(ctx context.Context, deadline time.Time) {
	d := s.opts.Delay
	if d <= 0 {
		return
	}
	if !deadline.IsZero() {
		d = min(d, time.Until(deadline))
	}
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}
