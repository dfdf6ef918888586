// Package features holds the conversational dialogs pluggable into the
// bot engine. Each feature keeps a typed state struct on the session and
// walks it through an internal step enum: entered via Select (which
// starts from cleared state) and progressed via Handle.
package features

import (
	"strconv"
	"strings"
)

// messageLimit is the practical per-message size cap of the chat
// transports; long summaries are truncated to it.
const messageLimit = 3500

func isAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "confirm", "ok", "proceed":
		return true
	}
	return false
}

// choiceIndex resolves a reply against a list of options: exact
// case-insensitive match on the option text, else a 1-based index.
// Returns -1 when the reply matches nothing.
func choiceIndex(text string, options []string) int {
	trimmed := strings.TrimSpace(text)
	for i, opt := range options {
		if strings.EqualFold(trimmed, opt) {
			return i
		}
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > len(options) {
		return -1
	}
	return n - 1
}

// joinCapped joins detail lines under the message cap, replacing the
// overflow with a "(+N more)" marker.
func joinCapped(header string, lines []string, limit int) string {
	var b strings.Builder
	b.WriteString(header)
	for i, line := range lines {
		if b.Len()+len(line)+1 > limit-24 {
			b.WriteString("\n… (+" + strconv.Itoa(len(lines)-i) + " more)")
			return b.String()
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}
