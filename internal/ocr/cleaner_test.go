package ocr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/activity-lens/activity-lens/internal/ocr"
)

func TestNewCleaner(t *testing.T) {
	t.Parallel()

	cleaner := ocr.NewCleaner()

	require.NotNil(t, cleaner)
}

func TestClean_BasicFunctionality(t *testing.T) {
	t.Parallel()

	cleaner := ocr.NewCleaner()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input returns empty",
			input:    "",
			expected: "",
		},
		{
			name:     "simple text unchanged",
			input:    "Hello World",
			expected: "Hello World",
		},
		{
			name:     "whitespace normalization",
			input:    "Hello    World",
			expected: "Hello World",
		},
		{
			name:     "ligature replacement",
			input:    "ﬁle ﬂow",
			expected: "file flow",
		},
		{
			name:     "removes carriage returns",
			input:    "Hello\rWorld",
			expected: "HelloWorld",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := cleaner.Clean(testCase.input)
			require.Equal(t, testCase.expected, result)
		})
	}
}

func TestClean_ScreenChrome(t *testing.T) {
	t.Parallel()

	cleaner := ocr.NewCleaner()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "terminal window border stripped",
			input:    "┌──────────┐\n│ READY    │\n└──────────┘\nBuild passing",
			expected: "READY\nBuild passing",
		},
		{
			name:     "progress bar keeps the percentage",
			input:    "████████░░ 80%",
			expected: "80%",
		},
		{
			name:     "punctuation-only lines dropped",
			input:    "Hello\n!!!\nWorld",
			expected: "Hello\nWorld",
		},
		{
			name:     "editor line numbers preserved",
			input:    "42 func main() {\n43     run()",
			expected: "42 func main() {\n43 run()",
		},
		{
			name:     "clock text preserved",
			input:    "09:41 AM Meeting with team",
			expected: "09:41 AM Meeting with team",
		},
		{
			name:     "chrome-only capture cleans to empty",
			input:    "───────\n░░░░░░░\n | | |",
			expected: "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := cleaner.Clean(testCase.input)
			require.Equal(t, testCase.expected, result)
		})
	}
}
