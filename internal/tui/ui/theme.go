package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	// Message and contact state.
	OwnColor     tcell.Color
	PeerColor    tcell.Color
	PendingColor tcell.Color
	FailedColor  tcell.Color
	OnlineColor  tcell.Color
	TypingColor  tcell.Color
}

// DefaultTheme returns a dark theme with warm accents.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorWheat,
		BorderColor:       tcell.ColorIndianRed,
		BorderFocusColor:  tcell.ColorLightCoral,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorGold,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorGold,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorIndianRed,
		MenuKeyColor:      tcell.ColorIndianRed,
		NumericKeyColor:   tcell.ColorOrchid,
		TitleColor:        tcell.ColorGold,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorIndianRed,

		OwnColor:     tcell.ColorGold,
		PeerColor:    tcell.ColorLightSkyBlue,
		PendingColor: tcell.ColorGray,
		FailedColor:  tcell.ColorOrangeRed,
		OnlineColor:  tcell.ColorLimeGreen,
		TypingColor:  tcell.ColorOrchid,
	}
}

// Tag returns the tview color tag name of c.
func Tag(c tcell.Color) string { return colorName(c) }
