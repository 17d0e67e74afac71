package agent

import "fmt"

// Caps on tool output folded back into the prompt, to bound context
// growth across iterations.
const (
	maxReadFileChars = 4000
	maxSearchResults = 5
)

// truncateContent cuts s at maxChars and appends a note about how much
// was dropped. Returns s unchanged when it fits.
func truncateContent(s string, maxChars int) (string, bool) {
	if len(s) <= maxChars {
		return s, false
	}
	removed := len(s) - maxChars
	return s[:maxChars] + fmt.Sprintf("\n[... %d characters truncated ...]", removed), true
}
