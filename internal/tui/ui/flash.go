package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashTTL = [...]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notification. Repeat counts how many times the same
// text was flashed back to back while it was still showing.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeat  int
	Expires time.Time
}

// FlashModel holds the current notification and offers every change on a
// small buffered channel; a full channel drops the notification, the next
// render picks up the state anyway.
type FlashModel struct {
	mu      sync.Mutex
	current FlashMessage
	changed chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{changed: make(chan FlashMessage, 8), now: time.Now}
}

func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo) }

func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn) }

// Err flashes err at error level. An Unauthenticated error from the daemon
// becomes a warning since the UI switches to the login page on its own.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	if status.Code(err) == codes.Unauthenticated {
		f.set(ErrorText(err), FlashWarn)
		return
	}
	f.set(ErrorText(err), FlashErr)
}

// ErrorText returns the human part of an error returned by the daemon.
func ErrorText(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

func (f *FlashModel) set(text string, level FlashLevel) {
	now := f.now()
	f.mu.Lock()
	repeat := 1
	if f.current.Text == text && f.current.Level == level && now.Before(f.current.Expires) {
		repeat = f.current.Repeat + 1
	}
	f.current = FlashMessage{Text: text, Level: level, Repeat: repeat, Expires: now.Add(flashTTL[level])}
	fm := f.current
	f.mu.Unlock()

	select {
	case f.changed <- fm:
	default:
	}
}

// Get returns the current flash message, or nil once it expired.
func (f *FlashModel) Get() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns the change channel.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.changed
}

// FlashBar is the one-line notification strip at the bottom.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color, mark := fb.theme.FlashInfoColor, "·"
	switch msg.Level {
	case FlashWarn:
		color, mark = fb.theme.FlashWarnColor, "!"
	case FlashErr:
		color, mark = fb.theme.FlashErrColor, "✗"
	}
	text := tview.Escape(msg.Text)
	if msg.Repeat > 1 {
		text = fmt.Sprintf("%s (x%d)", text, msg.Repeat)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s %s[-]", colorName(color), mark, text)
}
