package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// ConversationInfo displays details about a conversation and the peer's
// presence.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders conversation details. p may be nil.
func (ci *ConversationInfo) Update(c rpc.Conversation, p *rpc.PresenceResponse) {
	ci.Clear()

	presence := "unknown"
	if p != nil && p.Known {
		presence = "offline"
		if p.Online {
			presence = "online"
		}
		presence += fmt.Sprintf(" (%s, via %s)", formatAgo(p.At), p.Source)
	}
	if c.Typing || (p != nil && p.Typing) {
		presence += ", typing"
	}

	rows := [][2]string{
		{"Name", c.Name},
		{"User ID", c.PeerID},
		{"Presence", presence},
		{"Unread", fmt.Sprint(c.UnreadCount)},
		{"Last Active", formatAgo(c.LastMessageAt)},
		{"Last Message", c.LastMessagePreview},
	}
	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, display(r[1]))
	}
	_, _ = fmt.Fprint(ci, b.String())
	ci.SetTitle(fmt.Sprintf(" %s Details ", display(c.Name)))
}
