package views

import (
	"strings"

	"github.com/rivo/tview"
)

// sanitizeForTerminal drops codepoints that tcell renders with the wrong
// width: skin tone modifiers, the zero width joiner and variation
// selectors. A family emoji degrades to its members; a thumbs-up keeps its
// base glyph.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if isProblematicRune(r) {
			return -1
		}
		return r
	}, s)
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // ZWJ
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// display sanitizes and escapes user text for a tview cell.
func display(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}
