package views

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// MessageThread displays the open conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	draft    *tview.TextView
	composer *tview.InputField
	peer     string
	peerName string
	onSend   func(text string)
	onType   func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	draft := tview.NewTextView().SetDynamicColors(true)
	draft.SetBackgroundColor(theme.BgColor)
	draft.SetTextColor(theme.PendingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(draft, 0, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		draft:    draft,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := strings.TrimSpace(composer.GetText())
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})
	composer.SetChangedFunc(func(text string) {
		if text != "" && mt.onType != nil {
			mt.onType()
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.peerName != "" {
		return mt.peerName
	}
	return "Messages"
}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component. The unsent composer text is dropped.
func (mt *MessageThread) Stop() {
	mt.composer.SetText("")
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "p", Description: "Profile"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetPeer stores the open conversation and updates the title.
func (mt *MessageThread) SetPeer(peer, name string) {
	mt.peer = peer
	mt.peerName = name
	mt.SetTyping(false)
}

// SetTyping shows or hides the typing marker in the thread title.
func (mt *MessageThread) SetTyping(typing bool) {
	title := fmt.Sprintf(" %s ", tview.Escape(mt.peerName))
	if typing {
		title = fmt.Sprintf(" %s [%s]typing…[-] ", tview.Escape(mt.peerName), ui.Tag(mt.theme.TypingColor))
	}
	mt.messages.SetTitle(title)
}

// Peer returns the open conversation's peer.
func (mt *MessageThread) Peer() string { return mt.peer }

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnType sets the callback run on every composer edit.
func (mt *MessageThread) SetOnType(fn func()) {
	mt.onType = fn
}

// Update renders the timeline, oldest first.
func (mt *MessageThread) Update(tl *rpc.Timeline) {
	mt.messages.Clear()
	if tl == nil {
		return
	}
	for _, m := range tl.Messages {
		_, _ = fmt.Fprint(mt.messages, messageLine(mt.theme, m, mt.peerName))
	}
	mt.messages.ScrollToEnd()
}

// UpdateDraft lists the staged attachments above the composer.
func (mt *MessageThread) UpdateDraft(files []rpc.StagedFile) {
	mt.draft.Clear()
	if len(files) == 0 {
		mt.ResizeItem(mt.draft, 0, 0)
		return
	}
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = fmt.Sprintf("%s (%s)", display(f.Name), humanize.IBytes(uint64(f.Size)))
	}
	_, _ = fmt.Fprintf(mt.draft, " 📎 %s", strings.Join(parts, ", "))
	mt.ResizeItem(mt.draft, 1, 0)
}

func messageLine(th *ui.Theme, m rpc.Message, peerName string) string {
	sender, color := peerName, th.PeerColor
	if m.FromMe {
		sender, color = "You", th.OwnColor
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]", ui.Tag(color), display(sender), formatTimestamp(m.Timestamp))
	switch m.State {
	case "pending":
		fmt.Fprintf(&b, " [%s]sending…[-]", ui.Tag(th.PendingColor))
	case "failed":
		reason := m.Error
		if reason == "" {
			reason = "not sent"
		}
		fmt.Fprintf(&b, " [%s]✗ failed: %s[-]", ui.Tag(th.FailedColor), display(reason))
	}
	b.WriteString("\n")
	if m.ReplyTo != "" {
		fmt.Fprintf(&b, "[::d]↪ reply to %s[-:-:-]\n", tview.Escape(m.ReplyTo))
	}
	if m.Text != "" {
		b.WriteString(display(m.Text))
		b.WriteString("\n")
	}
	for _, a := range m.Attachments {
		where := "remote"
		if a.Preview != "" {
			where = "local"
		}
		size := ""
		if a.Size > 0 {
			size = ", " + humanize.IBytes(uint64(a.Size))
		}
		fmt.Fprintf(&b, "📎 %s [::d](%s%s)[-:-:-]\n", display(a.Name), where, size)
	}
	b.WriteString("\n")
	return b.String()
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
