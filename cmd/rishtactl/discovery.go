package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/client"
	"github.com/matheus3301/rishta/internal/tui/views"
)

func init() {
	rootCmd.AddCommand(profileCmd, matchesCmd, requestsCmd, requestCmd, connectCmd,
		toggleCmd("like", "Like a member", func(c *client.Client) toggleFunc { return c.Discovery.Like }),
		toggleCmd("shortlist", "Shortlist a member", func(c *client.Client) toggleFunc { return c.Discovery.Shortlist }),
		toggleCmd("block", "Block a member", func(c *client.Client) toggleFunc { return c.Discovery.Block }),
	)
	profileCmd.Flags().Bool("qr", false, "print a QR code linking to the profile")
	matchesCmd.Flags().String("tab", backend.MatchTabs[0], "tab: "+strings.Join(backend.MatchTabs, ", "))
	matchesCmd.Flags().Int("page", 1, "page number")
	matchesCmd.Flags().Int("limit", 0, "page size")
	requestsCmd.Flags().String("box", backend.RequestBoxes[0], "box: "+strings.Join(backend.RequestBoxes, ", "))
}

var profileCmd = &cobra.Command{
	Use:   "profile [member-id]",
	Short: "Show a profile (your own when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		var p *backend.Profile
		var err error
		if len(args) == 0 {
			p, err = c.Discovery.Me(ctx)
		} else {
			p, err = c.Discovery.Profile(ctx, args[0])
		}
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(p)
		}
		printProfile(p)
		if qr, _ := cmd.Flags().GetBool("qr"); qr {
			code, err := qrcode.New(views.ProfileLink(p.ID), qrcode.Medium)
			if err != nil {
				return err
			}
			fmt.Print(code.ToSmallString(false))
		}
		return nil
	}),
}

func printProfile(p *backend.Profile) {
	fmt.Printf("%s (%s)\n", p.Name, p.ID)
	field := func(label, v string) {
		if v != "" {
			fmt.Printf("  %-12s %s\n", label+":", v)
		}
	}
	if p.Age > 0 {
		field("Age", fmt.Sprint(p.Age))
	}
	field("Gender", p.Gender)
	field("Religion", p.Religion)
	field("Location", p.Location)
	field("Community", p.Community)
	field("Education", p.Education)
	field("Profession", p.Profession)
	field("Request", p.RequestStatus)
	var marks []string
	for _, m := range []struct {
		set  bool
		name string
	}{{p.Liked, "liked"}, {p.Shortlisted, "shortlisted"}, {p.Blocked, "blocked"}} {
		if m.set {
			marks = append(marks, m.name)
		}
	}
	field("Marked", strings.Join(marks, ", "))
	if p.About != "" {
		fmt.Printf("\n  %s\n", p.About)
	}
}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Browse suggested matches",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		tab, _ := cmd.Flags().GetString("tab")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		mp, err := c.Discovery.Matches(ctx, &rpc.MatchesRequest{Tab: tab, Page: page, Limit: limit})
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(mp)
		}
		for _, p := range mp.Profiles {
			fmt.Printf("%-24s %-20s %3s  %s\n", p.ID, p.Name, ageText(p.Age), p.Location)
		}
		more := ""
		if mp.HasMore {
			more = fmt.Sprintf(", next: --page %d", mp.Page+1)
		}
		fmt.Printf("%s page %d%s\n", tab, mp.Page, more)
		return nil
	}),
}

func ageText(age int) string {
	if age <= 0 {
		return "-"
	}
	return fmt.Sprint(age)
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List connection requests",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, _ []string) error {
		box, _ := cmd.Flags().GetString("box")
		reqs, err := c.Discovery.Requests(ctx, box)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(reqs)
		}
		if len(reqs) == 0 {
			fmt.Printf("No %s requests.\n", box)
			return nil
		}
		for _, r := range reqs {
			fmt.Printf("%-24s %s -> %s  %-9s %s\n", r.ID, r.From.Name, r.To.Name, r.Status, ago(r.CreatedAt))
		}
		return nil
	}),
}

var requestCmd = &cobra.Command{
	Use:       "request <accept|reject|restore|delete> <request-id>",
	Short:     "Act on a connection request",
	Args:      cobra.ExactArgs(2),
	ValidArgs: append(append([]string{}, backend.RequestActions...), "delete"),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		resp, err := c.Discovery.RequestAction(ctx, args[1], args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(resp)
		}
		if resp.Request != nil {
			fmt.Printf("Request %s is now %s.\n", resp.Request.ID, resp.Request.Status)
		} else {
			fmt.Printf("Request %s: %s done.\n", args[1], args[0])
		}
		return nil
	}),
}

var connectCmd = &cobra.Command{
	Use:   "connect <member-id>",
	Short: "Send a connection request",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		r, err := c.Discovery.Connect(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(r)
		}
		fmt.Printf("Request %s sent to %s.\n", r.ID, r.To.Name)
		return nil
	}),
}

type toggleFunc func(ctx context.Context, userID string, undo bool, opts ...grpc.CallOption) error

// toggleCmd builds a command for a reversible member action; --undo
// reverses it.
func toggleCmd(name, short string, pick func(*client.Client) toggleFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <member-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	undo := cmd.Flags().Bool("undo", false, "reverse the action")
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, c *client.Client, args []string) error {
		if err := pick(c)(ctx, args[0], *undo); err != nil {
			return err
		}
		verb := name
		if *undo {
			verb = "un" + name
		}
		fmt.Printf("%s: %s done.\n", args[0], verb)
		return nil
	})
	return cmd
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
