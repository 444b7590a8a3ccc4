package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is the number of hints per column; the header is that tall.
const menuRows = 6

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders menu hints, filling columns top to bottom.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)

	rows := make([]strings.Builder, menuRows)
	for i, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		key := fmt.Sprintf("<%s>", h.Key)
		_, _ = fmt.Fprintf(&rows[i%menuRows], "[%s::b]%-8s[-:-:-] %-14s", kc, key, h.Description)
	}
	for i := range rows {
		if rows[i].Len() == 0 {
			break
		}
		_, _ = fmt.Fprintln(m, rows[i].String())
	}
}
