package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	name, args, _ := strings.Cut(input, " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

// commandAliases maps short forms to command names.
var commandAliases = map[string]string{
	"q":    "quit",
	"h":    "help",
	"s":    "search",
	"c":    "chat",
	"a":    "attach",
	"m":    "matches",
	"r":    "requests",
	"p":    "profile",
	"exit": "quit",
}

// Canonical returns the command with aliases resolved.
func (c Command) Canonical() Command {
	if name, ok := commandAliases[c.Name]; ok {
		c.Name = name
	}
	return c
}
