package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/tui/ui"
)

// AuthView asks for the bearer token issued by the platform.
type AuthView struct {
	*tview.Flex
	theme   *ui.Theme
	info    *tview.TextView
	token   *tview.InputField
	onLogin func(token string)
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	info := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	info.SetBackgroundColor(theme.BgColor)
	info.SetTextColor(theme.FgColor)

	token := tview.NewInputField().
		SetLabel(" Token: ").
		SetMaskCharacter('*').
		SetFieldWidth(0)
	token.SetBorder(true)
	token.SetBorderColor(theme.PromptBorderColor)
	token.SetBackgroundColor(theme.BgColor)
	token.SetFieldBackgroundColor(theme.BgColor)
	token.SetFieldTextColor(theme.FgColor)
	token.SetLabelColor(theme.MenuKeyColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(info, 0, 1, false).
		AddItem(token, 3, 0, true)
	flex.SetBorder(true)
	flex.SetBorderColor(theme.BorderColor)
	flex.SetBackgroundColor(theme.BgColor)
	flex.SetTitle(" Authentication Required ")
	flex.SetTitleColor(theme.TitleColor)

	av := &AuthView{
		Flex:  flex,
		theme: theme,
		info:  info,
		token: token,
	}
	token.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && av.onLogin != nil && av.token.GetText() != "" {
			av.onLogin(av.token.GetText())
		}
	})
	av.ShowMessage("")
	return av
}

// Name implements Component.
func (av *AuthView) Name() string { return "Login" }

// Start implements Component.
func (av *AuthView) Start() {}

// Stop implements Component. The typed token is never kept around.
func (av *AuthView) Stop() {
	av.token.SetText("")
}

// Hints implements Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Login"},
	}
}

// SetOnLogin sets the callback when a token is submitted.
func (av *AuthView) SetOnLogin(fn func(token string)) {
	av.onLogin = fn
}

// ShowMessage displays a status line above the token field.
func (av *AuthView) ShowMessage(msg string) {
	av.info.Clear()
	av.info.SetText("\n\nPaste the bearer token of your account and press Enter.\n\n" + tview.Escape(msg))
}

// Input returns the token field (for focus management).
func (av *AuthView) Input() *tview.InputField {
	return av.token
}
