package ocr

import (
	"bufio"
	"regexp"
	"strings"
)

const (
	// Buffer sizes for scanner operations.
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// Cleaner normalizes raw engine output from screen captures. Terminal and
// window chrome come through as box-drawing runs and punctuation-only lines;
// those go, real content stays, including line numbers and timestamps.
type Cleaner struct {
	reBoxDrawing    *regexp.Regexp
	rePunctOnlyLine *regexp.Regexp
	reMultiSpace    *regexp.Regexp
	charReplacer    *strings.Replacer
}

// NewCleaner creates a text cleaner with all regular expressions precompiled.
func NewCleaner() *Cleaner {
	return &Cleaner{
		// Box drawing, block elements, and geometric shapes: window
		// borders, scrollbars, progress bars.
		reBoxDrawing:    regexp.MustCompile(`[\x{2500}-\x{25FF}]+`),
		rePunctOnlyLine: regexp.MustCompile(`^\s*[\p{P}\p{S}\s]+\s*$`),
		reMultiSpace:    regexp.MustCompile(`[ \t]{2,}`),
		charReplacer: strings.NewReplacer(
			"ﬁ", "fi",
			"ﬂ", "fl",
			"ﬀ", "ff",
			"ﬃ", "ffi",
			"ﬄ", "ffl",
			"\r", "",
		),
	}
}

// Clean normalizes one engine output. Returns the empty string when nothing
// but chrome was recognized.
func (c *Cleaner) Clean(input string) string {
	if input == "" {
		return input
	}

	text := c.charReplacer.Replace(input)
	text = c.reBoxDrawing.ReplaceAllString(text, " ")
	text = c.cleanLines(text)

	return strings.TrimSpace(text)
}

// cleanLines drops empty and punctuation-only lines and collapses runs of
// spaces inside the survivors.
func (c *Cleaner) cleanLines(input string) string {
	var builder strings.Builder
	builder.Grow(len(input))

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineSize)

	first := true
	for scanner.Scan() {
		line := c.cleanLine(scanner.Text())
		if line == "" {
			continue
		}

		if !first {
			builder.WriteByte('\n')
		}
		first = false

		builder.WriteString(line)
	}

	if scanner.Err() != nil {
		return input
	}

	return builder.String()
}

func (c *Cleaner) cleanLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || c.rePunctOnlyLine.MatchString(line) {
		return ""
	}

	return c.reMultiSpace.ReplaceAllString(line, " ")
}
