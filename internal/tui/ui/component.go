package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 0-9 shortcuts, displayed in a different color
}

// Component is the lifecycle interface of the views pushed on Pages.
// Start runs when the view comes to the front and Stop when it leaves.
type Component interface {
	Name() string
	Start()
	Stop()
	Hints() []MenuHint
}
