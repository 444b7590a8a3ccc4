package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/client"
)

func init() {
	rootCmd.AddCommand(conversationsCmd, historyCmd, sendCmd, retryCmd, discardCmd,
		deleteCmd, deleteConversationCmd, searchCmd, syncCmd, presenceCmd)

	conversationsCmd.Flags().Int("limit", 0, "maximum number of conversations")
	conversationsCmd.Flags().Int("offset", 0, "skip the first n conversations")
	sendCmd.Flags().StringArrayP("attach", "a", nil, "attach a file (repeatable)")
	sendCmd.Flags().String("reply-to", "", "id of the message being replied to")
	searchCmd.Flags().String("peer", "", "restrict the search to one conversation")
	searchCmd.Flags().Int("limit", 50, "maximum number of results")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recent first",
	Args:    cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		resp, err := c.Conversations.List(ctx, &rpc.ListConversationsRequest{Limit: limit, Offset: offset})
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(resp)
		}
		if len(resp.Conversations) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, conv := range resp.Conversations {
			flags := ""
			if conv.Online {
				flags += " online"
			}
			if conv.Typing {
				flags += " typing"
			}
			if conv.UnreadCount > 0 {
				flags += fmt.Sprintf(" (%d unread)", conv.UnreadCount)
			}
			fmt.Printf("%-24s %-20s %-14s %s%s\n", conv.PeerID, conv.Name,
				ago(conv.LastMessageAt), oneLine(conv.LastMessagePreview, 40), flags)
		}
		return nil
	}),
}

var historyCmd = &cobra.Command{
	Use:     "open <peer>",
	Aliases: []string{"history"},
	Short:   "Open a conversation and print its messages",
	Args:    cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		open, err := c.Conversations.Open(ctx, args[0])
		if err != nil {
			return err
		}
		tl, err := c.Messages.List(ctx)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(tl)
		}
		if open.Cached {
			fmt.Println("(offline: cached history)")
		}
		for _, m := range tl.Messages {
			printMessage(m)
		}
		return nil
	}),
}

func printMessage(m rpc.Message) {
	who := m.SenderID
	if m.FromMe {
		who = "me"
	}
	id := m.ID
	if id == "" {
		id = m.ClientID
	}
	state := ""
	switch m.State {
	case "pending":
		state = " [sending]"
	case "failed":
		state = " [failed: " + m.Error + "]"
	}
	fmt.Printf("%s %-12s %s%s  (%s)\n", m.Timestamp.Local().Format("2006-01-02 15:04"), who, m.Text, state, id)
	for _, a := range m.Attachments {
		fmt.Printf("%17s attachment %s %s (%s)\n", "", a.Name, a.MIME, humanize.IBytes(uint64(a.Size)))
	}
}

var sendCmd = &cobra.Command{
	Use:   "send <peer> [text...]",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		peer, text := args[0], strings.Join(args[1:], " ")
		paths, _ := cmd.Flags().GetStringArray("attach")
		replyTo, _ := cmd.Flags().GetString("reply-to")

		var handles []string
		for _, p := range paths {
			f, err := c.Messages.StageAttachment(ctx, peer, p)
			if err != nil {
				return err
			}
			handles = append(handles, f.Handle)
		}
		resp, err := c.Messages.Send(ctx, &rpc.SendRequest{Peer: peer, Text: text, ReplyTo: replyTo, Attachments: handles})
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(resp)
		}
		fmt.Printf("Queued %s\n", resp.ClientID)
		return nil
	}),
}

var retryCmd = &cobra.Command{
	Use:   "retry <client-id>",
	Short: "Retry a failed send",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		return c.Messages.Retry(ctx, args[0])
	}),
}

var discardCmd = &cobra.Command{
	Use:   "discard <client-id>",
	Short: "Drop a failed send",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		return c.Messages.Discard(ctx, args[0])
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		return c.Messages.Delete(ctx, args[0])
	}),
}

var deleteConversationCmd = &cobra.Command{
	Use:   "delete-conversation <peer>",
	Short: "Delete a whole conversation",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		return c.Conversations.Delete(ctx, args[0])
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		peer, _ := cmd.Flags().GetString("peer")
		limit, _ := cmd.Flags().GetInt("limit")
		resp, err := c.Messages.Search(ctx, &rpc.SearchRequest{Query: strings.Join(args, " "), Peer: peer, Limit: limit})
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(resp)
		}
		for _, r := range resp.Results {
			fmt.Printf("%-24s %-14s %s\n", r.PeerID, ago(r.Timestamp), oneLine(r.Snippet, 80))
		}
		fmt.Printf("%d result(s)\n", len(resp.Results))
		return nil
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the contact list from the platform",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		if err := c.Conversations.Sync(ctx); err != nil {
			return err
		}
		fmt.Println("Synced.")
		return nil
	}),
}

var presenceCmd = &cobra.Command{
	Use:   "presence <peer>",
	Short: "Show whether a member is online",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		p, err := c.Conversations.Presence(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(p)
		}
		switch {
		case !p.Known:
			fmt.Printf("%s: unknown\n", p.Peer)
		case p.Online:
			fmt.Printf("%s: online (%s, %s)\n", p.Peer, p.Source, ago(p.At))
		default:
			fmt.Printf("%s: offline (%s, %s)\n", p.Peer, p.Source, ago(p.At))
		}
		return nil
	}),
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
