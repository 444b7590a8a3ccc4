package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/rishta/internal/daemon"
	"github.com/matheus3301/rishta/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	socketFlag := flag.String("socket", "", "control socket path (defaults to the session directory)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, SocketPath: *socketFlag}),
	)

	app.Run()
}
