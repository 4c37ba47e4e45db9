// Package summarize produces short activity summaries for screen capture
// records using a language model, with a content-addressed cache so
// near-identical screens skip the model.
package summarize

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultPromptTemplate is used when no prompt template file is configured.
const DefaultPromptTemplate = "Summarize this text in 1-2 sentences"

// DefaultMaxInputChars bounds the screen text included in a prompt.
const DefaultMaxInputChars = 15000

// Request carries the screen text and capture metadata for one summary.
type Request struct {
	AppName     string
	WindowTitle string
	Text        string
}

// Summarizer produces a one-to-two sentence activity summary for a record.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// buildPrompt assembles the model prompt from the template, the capture
// metadata, and the screen text. The application line is always present so
// the model sees the context even when the capture had no window metadata.
func buildPrompt(template string, maxInputChars int, req Request) string {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if maxInputChars == 0 {
		maxInputChars = DefaultMaxInputChars
	}

	var builder strings.Builder
	builder.Grow(len(template) + len(req.Text) + 128)

	builder.WriteString(template)
	builder.WriteString(":\n\n")
	builder.WriteString("Application: ")
	builder.WriteString(req.AppName)

	if req.WindowTitle != "" {
		builder.WriteString("\nWindow Title: ")
		builder.WriteString(req.WindowTitle)
	}

	builder.WriteString("\n\nScreen Contents:\n")
	builder.WriteString(truncate(req.Text, maxInputChars))

	return builder.String()
}

// truncate cuts text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	return text[:cut]
}
