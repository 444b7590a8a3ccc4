package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session       string
	Viewer        string
	State         string
	Connected     bool
	Conversations int
	Messages      int
	Previews      int
	ExpiresAt     time.Time
	Uptime        time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := colorName(si.theme.FgColor)
	ct := colorName(si.theme.CounterColor)

	viewer := data.Viewer
	if viewer == "" {
		viewer = "-"
	}
	state := data.State
	if data.State == "READY" && !data.Connected {
		state += " (offline)"
	}
	expires := "-"
	if !data.ExpiresAt.IsZero() {
		expires = humanize.Time(data.ExpiresAt)
	}

	rows := [][2]string{
		{"Session:", data.Session},
		{"Viewer:", viewer},
		{"State:", state},
		{"Token:", "expires " + expires},
		{"Chats:", humanize.Comma(int64(data.Conversations))},
		{"Msgs:", humanize.Comma(int64(data.Messages))},
		{"Uptime:", formatDuration(data.Uptime)},
	}
	for i, r := range rows {
		if i > 0 {
			_, _ = fmt.Fprint(si, "\n")
		}
		_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] [%s]%s[-]", fg, r[0], ct, tview.Escape(r[1]))
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
