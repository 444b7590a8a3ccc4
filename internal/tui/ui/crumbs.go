package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs is a breadcrumb bar showing the current navigation path.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the breadcrumb trail from the titles of the page stack.
func (c *Crumbs) Update(titles []string) {
	c.Clear()
	if len(titles) == 0 {
		return
	}

	parts := make([]string, len(titles))
	for i, name := range titles {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(titles)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts[i] = fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(name))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}

// colorName returns a tview-compatible color string.
func colorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
