package views

import (
	"fmt"
	"slices"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// RequestsView lists the connection requests of one box.
type RequestsView struct {
	*tview.Table
	theme    *ui.Theme
	box      string
	viewer   string
	requests []backend.Request
}

// NewRequestsView creates a requests table on the received box.
func NewRequestsView(theme *ui.Theme) *RequestsView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	return &RequestsView{Table: table, theme: theme, box: backend.RequestBoxes[0]}
}

// Name implements Component.
func (rv *RequestsView) Name() string { return "Requests" }

// Start implements Component.
func (rv *RequestsView) Start() {}

// Stop implements Component.
func (rv *RequestsView) Stop() {}

// Hints implements Component.
func (rv *RequestsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next box"},
		{Key: "a", Description: "Accept"},
		{Key: "x", Description: "Reject"},
		{Key: "u", Description: "Restore"},
		{Key: "D", Description: "Delete"},
	}
}

// Box returns the box on display.
func (rv *RequestsView) Box() string { return rv.box }

// NextBox moves to the following box.
func (rv *RequestsView) NextBox() {
	i := slices.Index(backend.RequestBoxes, rv.box)
	rv.box = backend.RequestBoxes[(i+1)%len(backend.RequestBoxes)]
}

// Update renders the requests of the current box from viewer's side.
func (rv *RequestsView) Update(viewer string, reqs []backend.Request) {
	rv.Clear()
	rv.viewer = viewer
	rv.requests = reqs

	for col, h := range []string{" WITH", " DIRECTION", " STATUS", " SINCE"} {
		rv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(rv.theme.TableHeaderFg).
			SetBackgroundColor(rv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	for i, r := range reqs {
		other, dir := r.From, "received"
		if r.From.ID == viewer {
			other, dir = r.To, "sent"
		}
		name := other.Name
		if name == "" {
			name = other.ID
		}
		row := i + 1
		rv.SetCell(row, 0, tview.NewTableCell(" "+display(name)).SetTextColor(rv.theme.FgColor).SetExpansion(1))
		rv.SetCell(row, 1, tview.NewTableCell(" "+dir).SetTextColor(rv.theme.FgColor))
		rv.SetCell(row, 2, tview.NewTableCell(" "+r.Status).SetTextColor(rv.theme.CounterColor))
		rv.SetCell(row, 3, tview.NewTableCell(" "+formatAgo(r.CreatedAt)).SetTextColor(rv.theme.FgColor))
	}
	rv.SetTitle(fmt.Sprintf(" Requests: %s (%d) ", rv.box, len(reqs)))
}

// Selected returns the selected request.
func (rv *RequestsView) Selected() (backend.Request, bool) {
	row, _ := rv.GetSelection()
	if row < 1 || row > len(rv.requests) {
		return backend.Request{}, false
	}
	return rv.requests[row-1], true
}
