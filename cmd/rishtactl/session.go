package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/client"
)

func init() {
	rootCmd.AddCommand(statusCmd, loginCmd, logoutCmd, watchCmd)
	loginCmd.Flags().String("token-file", "", "read the bearer token from a file ('-' for stdin)")
	watchCmd.Flags().String("prefix", "", "only show events whose kind starts with prefix")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		st, err := c.Session.GetStatus(ctx)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(st)
		}
		fmt.Printf("Session:       %s\n", st.Session)
		fmt.Printf("State:         %s (since %s)\n", st.State, humanize.Time(st.Since))
		if st.Reason != "" {
			fmt.Printf("Reason:        %s\n", st.Reason)
		}
		if st.LoggedIn {
			fmt.Printf("Viewer:        %s\n", st.Viewer)
			if !st.ExpiresAt.IsZero() {
				fmt.Printf("Token expires: %s\n", humanize.Time(st.ExpiresAt))
			}
		}
		fmt.Printf("Socket:        %s\n", connectedText(st.Connected))
		fmt.Printf("Conversations: %s\n", humanize.Comma(int64(st.ConversationCount)))
		fmt.Printf("Messages:      %s\n", humanize.Comma(int64(st.MessageCount)))
		fmt.Printf("Previews:      %d\n", st.PreviewsLive)
		fmt.Printf("Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
		return nil
	}),
}

func connectedText(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a bearer token",
	Long: `Log in with a bearer token issued by the platform. The token is read
from --token-file, or prompted for without echo.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("token-file")
		token, err := readToken(path)
		if err != nil {
			return err
		}
		return run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
			resp, err := c.Session.Login(ctx, &rpc.LoginRequest{Token: token})
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(resp)
			}
			fmt.Printf("Logged in as %s", resp.Viewer)
			if !resp.ExpiresAt.IsZero() {
				fmt.Printf(" (token expires %s)", humanize.Time(resp.ExpiresAt))
			}
			fmt.Println()
			return nil
		})(cmd, args)
	},
}

func readToken(path string) (string, error) {
	var raw []byte
	var err error
	switch {
	case path == "-":
		raw, err = io.ReadAll(bufio.NewReader(os.Stdin))
	case path != "":
		raw, err = os.ReadFile(path)
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprint(os.Stderr, "Bearer token: ")
		raw, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
	default:
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and purge the local cache",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		if err := c.Session.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		c, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		stream, err := c.Session.WatchEvents(ctx, &rpc.WatchRequest{Prefix: prefix})
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if jsonFlag {
				if err := outputJSON(evt); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%s  %-28s %s\n", evt.Timestamp.Local().Format("15:04:05.000"), evt.Kind, string(evt.Payload))
		}
	},
}
