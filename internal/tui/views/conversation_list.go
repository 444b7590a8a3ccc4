package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// ConversationList is the main chat list view.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []rpc.Conversation
	visible []rpc.Conversation
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Start implements Component.
func (cl *ConversationList) Start() {}

// Stop implements Component.
func (cl *ConversationList) Stop() {}

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: "0-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list with new data, keeping the selected peer
// selected when it is still listed.
func (cl *ConversationList) Update(convs []rpc.Conversation) {
	selected := cl.SelectedPeer()
	cl.convs = convs
	cl.render()
	for i, c := range cl.visible {
		if c.PeerID == selected {
			cl.Select(i+1, 0)
			break
		}
	}
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

func (cl *ConversationList) matches(c rpc.Conversation) bool {
	return cl.filter == "" ||
		containsFold(c.Name, cl.filter) ||
		containsFold(c.PeerID, cl.filter) ||
		containsFold(c.LastMessagePreview, cl.filter)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" STATUS", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.convs {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		name := c.Name
		if name == "" {
			name = c.PeerID
		}
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", c.UnreadCount, name)
		}
		preview := c.LastMessagePreview
		statusText, statusColor := "", cl.theme.FgColor
		switch {
		case c.Typing:
			statusText, statusColor = "typing…", cl.theme.TypingColor
			preview = "typing…"
		case c.Online:
			statusText, statusColor = "● online", cl.theme.OnlineColor
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+display(name)).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+display(preview)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastMessageAt)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+statusText).SetTextColor(statusColor))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// SelectedPeer returns the peer id of the selected row.
func (cl *ConversationList) SelectedPeer() string {
	row, _ := cl.GetSelection()
	return cl.PeerByIndex(row)
}

// PeerByIndex returns the peer of the Nth visible conversation (1-based).
func (cl *ConversationList) PeerByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].PeerID
}

// Selected returns the selected conversation.
func (cl *ConversationList) Selected() (rpc.Conversation, bool) {
	row, _ := cl.GetSelection()
	if row < 1 || row > len(cl.visible) {
		return rpc.Conversation{}, false
	}
	return cl.visible[row-1], true
}
