package views

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

// ProfileLink is the share link encoded in a profile's QR code.
func ProfileLink(id string) string {
	return "rishta://profile/" + id
}

// ProfileView shows a member profile next to a scannable share code.
type ProfileView struct {
	*tview.Flex
	theme   *ui.Theme
	details *tview.TextView
	qr      *tview.TextView
	profile *backend.Profile
}

// NewProfileView creates a new profile view.
func NewProfileView(theme *ui.Theme) *ProfileView {
	details := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	details.SetBackgroundColor(theme.BgColor)
	details.SetTextColor(theme.FgColor)

	qr := tview.NewTextView().SetTextAlign(tview.AlignCenter)
	qr.SetBackgroundColor(theme.BgColor)
	qr.SetTextColor(theme.FgColor)

	flex := tview.NewFlex().
		AddItem(details, 0, 1, false).
		AddItem(qr, 0, 1, false)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Profile ")
	flex.SetTitleColor(theme.TitleColor)

	return &ProfileView{Flex: flex, theme: theme, details: details, qr: qr}
}

// Name implements Component.
func (pv *ProfileView) Name() string {
	if pv.profile != nil && pv.profile.Name != "" {
		return pv.profile.Name
	}
	return "Profile"
}

// Start implements Component.
func (pv *ProfileView) Start() {}

// Stop implements Component.
func (pv *ProfileView) Stop() {}

// Hints implements Component.
func (pv *ProfileView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "l", Description: "Like"},
		{Key: "s", Description: "Shortlist"},
		{Key: "c", Description: "Connect"},
		{Key: "Enter", Description: "Chat"},
		{Key: "Esc", Description: "Back"},
	}
}

// Profile returns the profile on display.
func (pv *ProfileView) Profile() *backend.Profile { return pv.profile }

// Update renders p.
func (pv *ProfileView) Update(p *backend.Profile) {
	pv.profile = p
	pv.details.Clear()
	pv.qr.Clear()
	if p == nil {
		return
	}

	age := ""
	if p.Age > 0 {
		age = fmt.Sprint(p.Age)
	}
	var marks []string
	if p.Liked {
		marks = append(marks, "liked")
	}
	if p.Shortlisted {
		marks = append(marks, "shortlisted")
	}
	if p.Blocked {
		marks = append(marks, "blocked")
	}
	if p.RequestStatus != "" {
		marks = append(marks, "request "+p.RequestStatus)
	}

	rows := [][2]string{
		{"Name", p.Name},
		{"Age", age},
		{"Gender", p.Gender},
		{"Religion", p.Religion},
		{"Community", p.Community},
		{"Location", p.Location},
		{"Profession", p.Profession},
		{"Education", p.Education},
		{"Status", strings.Join(marks, ", ")},
	}
	fg := ui.Tag(pv.theme.FgColor)
	ct := ui.Tag(pv.theme.CounterColor)
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(&b, " [%s::b]%-11s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, display(r[1]))
	}
	if p.About != "" {
		fmt.Fprintf(&b, "\n %s\n", display(p.About))
	}
	_, _ = fmt.Fprint(pv.details, b.String())
	_, _ = fmt.Fprintf(pv.qr, "\n%s\n%s", renderQR(ProfileLink(p.ID)), ProfileLink(p.ID))
	pv.SetTitle(fmt.Sprintf(" %s ", display(pv.Name())))
}

// renderQR converts a string to a compact QR code using Unicode
// half-block characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
