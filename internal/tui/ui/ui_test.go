package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFlashRepeatAndExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Warn("event stream lost")
	f.Warn("event stream lost")
	got := f.Get()
	if got == nil || got.Repeat != 2 {
		t.Fatalf("Get() = %+v, want repeat 2", got)
	}

	f.Info("synced")
	if got := f.Get(); got.Repeat != 1 || got.Level != FlashInfo {
		t.Fatalf("new text should reset the count, got %+v", got)
	}

	now = now.Add(6 * time.Second)
	if got := f.Get(); got != nil {
		t.Fatalf("info flash should expire after 5s, got %+v", got)
	}
}

func TestFlashErrLevels(t *testing.T) {
	f := NewFlashModel()

	f.Err(nil)
	if f.Get() != nil {
		t.Fatal("nil error must not flash")
	}

	f.Err(status.Error(codes.Unauthenticated, "not logged in"))
	got := f.Get()
	if got.Level != FlashWarn || got.Text != "not logged in" {
		t.Fatalf("unauthenticated: got %+v", got)
	}

	f.Err(errors.New("boom"))
	if got := f.Get(); got.Level != FlashErr || got.Text != "boom" {
		t.Fatalf("plain error: got %+v", got)
	}
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"a", "b", "c"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("a")
	p.Push("b")
	p.Push("b")
	p.Push("c")
	if p.Depth() != 3 {
		t.Fatalf("depth = %d, want 3 (re-pushing the top is a no-op)", p.Depth())
	}

	if !p.PopTo("a") || p.Current() != "a" {
		t.Fatalf("PopTo(a) left %v", p.Stack())
	}
	if p.PopTo("zzz") {
		t.Fatal("PopTo of a missing page should report false")
	}
	if got := p.Pop(); got != "" {
		t.Fatalf("root popped: %q", got)
	}
	if len(seen) != 4 {
		t.Fatalf("onChange fired %d times, want 4", len(seen))
	}
}
