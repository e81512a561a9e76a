package prompt

import (
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/Davincible/toolbridge/internal/schema"
)

// Prompt is the rendered upstream prompt for one request.
type Prompt struct {
	Text           string
	Classification Classification
	Model          string
	ToolNames      []string
	// Dropped counts conversation messages removed to fit the length limit.
	Dropped int
}

// Synthesizer renders prompts bounded by maxChars runes. A non-positive
// maxChars disables truncation.
type Synthesizer struct {
	maxChars int
	logger   *slog.Logger
}

func NewSynthesizer(maxChars int, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{maxChars: maxChars, logger: logger}
}

// Build classifies req and renders the matching template.
func (s *Synthesizer) Build(req *schema.ChatCompletionRequest) (Prompt, error) {
	if len(req.Messages) == 0 {
		return Prompt{}, errors.New("conversation is empty")
	}

	class := Classify(req.Messages, req.Tools, req.ToolChoice)

	var render renderFunc
	switch class {
	case NewToolCall:
		render = renderToolCall(req.Tools, req.ToolChoice)
	case ToolResultFollowUp:
		render = renderToolResult
	default:
		render = renderTranscript
	}

	units := splitUnits(req.Messages)
	kept := req.Messages
	text := render(kept)
	dropped := 0

	for s.maxChars > 0 && utf8.RuneCountInString(text) > s.maxChars {
		i := oldestDroppable(units)
		if i < 0 {
			s.logger.Warn("Prompt exceeds limit with nothing left to drop",
				"chars", utf8.RuneCountInString(text),
				"limit", s.maxChars)
			break
		}
		dropped += drop(units, i)
		kept = keep(req.Messages, units)
		text = render(kept)
	}

	if dropped > 0 {
		s.logger.Debug("Truncated conversation", "dropped_messages", dropped, "classification", class)
	}

	return Prompt{
		Text:           text,
		Classification: class,
		Model:          req.Model,
		ToolNames:      req.ToolNames(),
		Dropped:        dropped,
	}, nil
}
