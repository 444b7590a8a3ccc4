package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// SearchView provides message search functionality.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []rpc.SearchResult
	names   func(peer string) string
}

// NewSearchView creates a new search view. names resolves a peer id to a
// display name.
func NewSearchView(theme *ui.Theme, names func(peer string) string) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		names:   names,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})
	return sv
}

// Name implements Component.
func (sv *SearchView) Name() string { return "Search" }

// Start implements Component.
func (sv *SearchView) Start() {}

// Stop implements Component.
func (sv *SearchView) Stop() {}

// Hints implements Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Update refreshes search results.
func (sv *SearchView) Update(results []rpc.SearchResult) {
	sv.data = results
	sv.results.Clear()

	for col, h := range []string{" CHAT", " FROM", " SNIPPET", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, r := range results {
		row := i + 1
		chat := r.PeerID
		if sv.names != nil {
			chat = sv.names(r.PeerID)
		}
		from := chat
		if r.FromMe {
			from = "You"
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+display(chat)).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+display(from)).SetMaxWidth(15).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+display(r.Snippet)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(r.Timestamp)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(" Results ")
	if len(results) == 0 {
		sv.results.SetTitle(" Results (none) ")
	}
}

// SelectedResult returns the selected result.
func (sv *SearchView) SelectedResult() (rpc.SearchResult, bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(sv.data) {
		return rpc.SearchResult{}, false
	}
	return sv.data[idx], true
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
