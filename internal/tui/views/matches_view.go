package views

import (
	"fmt"
	"slices"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// MatchesView lists one page of a matches tab.
type MatchesView struct {
	*tview.Table
	theme    *ui.Theme
	tab      string
	page     int
	hasMore  bool
	profiles []backend.Profile
}

// NewMatchesView creates a matches table on the first tab.
func NewMatchesView(theme *ui.Theme) *MatchesView {
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

	return &MatchesView{Table: table, theme: theme, tab: backend.MatchTabs[0], page: 1}
}

// Name implements Component.
func (mv *MatchesView) Name() string { return "Matches" }

// Start implements Component.
func (mv *MatchesView) Start() {}

// Stop implements Component.
func (mv *MatchesView) Stop() {}

// Hints implements Component.
func (mv *MatchesView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next tab"},
		{Key: "n/b", Description: "Next/prev page"},
		{Key: "l", Description: "Like"},
		{Key: "s", Description: "Shortlist"},
		{Key: "c", Description: "Connect"},
		{Key: "Enter", Description: "Profile"},
	}
}

// Tab returns the current tab and page.
func (mv *MatchesView) Tab() (string, int) { return mv.tab, mv.page }

// NextTab moves to the following tab, back to page 1.
func (mv *MatchesView) NextTab() {
	i := slices.Index(backend.MatchTabs, mv.tab)
	mv.tab = backend.MatchTabs[(i+1)%len(backend.MatchTabs)]
	mv.page = 1
}

// NextPage advances when the server reported more results.
func (mv *MatchesView) NextPage() bool {
	if !mv.hasMore {
		return false
	}
	mv.page++
	return true
}

// PrevPage goes back one page.
func (mv *MatchesView) PrevPage() bool {
	if mv.page <= 1 {
		return false
	}
	mv.page--
	return true
}

// Update renders a fetched page.
func (mv *MatchesView) Update(p *backend.MatchPage) {
	mv.Clear()
	mv.profiles = nil
	mv.hasMore = false
	if p != nil {
		mv.profiles = p.Profiles
		mv.hasMore = p.HasMore
	}

	for col, h := range []string{" NAME", " AGE", " LOCATION", " PROFESSION", " "} {
		mv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(mv.theme.TableHeaderFg).
			SetBackgroundColor(mv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	for i, pr := range mv.profiles {
		marks := ""
		if pr.Liked {
			marks += "♥"
		}
		if pr.Shortlisted {
			marks += "★"
		}
		if pr.RequestStatus != "" {
			marks += " " + pr.RequestStatus
		}
		age := ""
		if pr.Age > 0 {
			age = fmt.Sprint(pr.Age)
		}
		row := i + 1
		mv.SetCell(row, 0, tview.NewTableCell(" "+display(pr.Name)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
		mv.SetCell(row, 1, tview.NewTableCell(" "+age).SetTextColor(mv.theme.FgColor))
		mv.SetCell(row, 2, tview.NewTableCell(" "+display(pr.Location)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
		mv.SetCell(row, 3, tview.NewTableCell(" "+display(pr.Profession)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
		mv.SetCell(row, 4, tview.NewTableCell(" "+marks).SetTextColor(mv.theme.CounterColor))
	}

	more := ""
	if mv.hasMore {
		more = " +"
	}
	mv.SetTitle(fmt.Sprintf(" Matches: %s (page %d%s) ", mv.tab, mv.page, more))
}

// Selected returns the selected profile.
func (mv *MatchesView) Selected() (backend.Profile, bool) {
	row, _ := mv.GetSelection()
	if row < 1 || row > len(mv.profiles) {
		return backend.Profile{}, false
	}
	return mv.profiles[row-1], true
}
