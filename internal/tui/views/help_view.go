package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter the current list"},
		{"Esc", "Cancel / go back"},
		{"?", "Help"},
		{"m", "Matches"},
		{"r", "Connection requests"},
		{"q", "Quit"},
	}},
	{"Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Jump to Nth conversation"},
		{"0", "Clear filter"},
		{"D", "Delete conversation"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer"},
		{"Ctrl-R", "Retry newest failed message"},
		{"Ctrl-X", "Discard newest failed message"},
		{"d", "Conversation details"},
		{"p", "Peer profile"},
	}},
	{"Matches / Requests", [][2]string{
		{"Tab", "Next tab or box"},
		{"l / L", "Like / unlike"},
		{"s / S", "Shortlist / remove"},
		{"c", "Send connection request"},
		{"a / x", "Accept / reject request"},
		{"u / D", "Restore / delete request"},
		{"n / b", "Next / previous page"},
		{"Enter", "Profile"},
	}},
	{"Commands", [][2]string{
		{":search <query>", "Search messages"},
		{":chat <name>", "Open chat by name or id"},
		{":attach <path>", "Stage a file for the next message"},
		{":detach", "Drop staged files"},
		{":delete <id>", "Delete a message"},
		{":profile [id]", "Show a profile with its share code"},
		{":sync", "Reconcile with the server now"},
		{":logout", "Logout and clear the local cache"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
