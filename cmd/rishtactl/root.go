package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/rishta/internal/session"
	"github.com/matheus3301/rishta/internal/tui/client"
	"github.com/matheus3301/rishta/internal/tui/ui"
)

var (
	sessionFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "rishtactl",
	Short: "Control a running rishta daemon",
	Long: `rishtactl talks to the rishta daemon of a session over its control
socket: log in, read and send messages, and browse matches and requests.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", ui.ErrorText(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 15*time.Second, "per-command timeout")
}

// dial connects to the daemon of the selected session.
func dial() (*client.Client, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := client.New(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

// run wraps a command body with a connected client and a bounded context.
func run(fn func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
		defer cancel()
		return fn(ctx, cmd, c, args)
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
