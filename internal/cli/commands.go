package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/matchmaker/internal/client"
	"github.com/lazypower/matchmaker/internal/server"
	"github.com/lazypower/matchmaker/internal/store"
)

const cmdTimeout = 30 * time.Second

var (
	tenantID        string
	channelID       string
	interactionKind string
	historyLimit    int
	expireBefore    string
)

func init() {
	for _, c := range []*cobra.Command{matchCmd, interactCmd, historyCmd, optoutCmd, optinCmd, expireCmd} {
		c.Flags().StringVarP(&tenantID, "tenant", "t", "", "Tenant (workspace) ID")
		_ = c.MarkFlagRequired("tenant")
	}
	for _, c := range []*cobra.Command{matchCmd, interactCmd} {
		c.Flags().StringVarP(&channelID, "channel", "c", "", "Channel ID")
		_ = c.MarkFlagRequired("channel")
	}
	interactCmd.Flags().StringVar(&interactionKind, "type", string(store.InteractionDirectMessage), "Interaction type: direct_message or calendar")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of records")
	expireCmd.Flags().StringVar(&expireBefore, "before", "", "Expire suggestions created before this RFC3339 time")
	_ = expireCmd.MarkFlagRequired("before")
}

// --- migrate command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		backend, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		if db, ok := backend.(*store.DB); ok {
			v, err := db.SchemaVersion()
			if err != nil {
				return fmt.Errorf("schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, db.Path)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

// --- match command ---

var matchCmd = &cobra.Command{
	Use:   "match <user-id>",
	Short: "Suggest channel members for a user to meet",
	Long:  "Ask a running server for the best introductions for a user in a channel. Set MATCHMAKER_URL to reach a non-default server.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		resp, err := client.NewFromEnv().FindMatches(ctx, tenantID, channelID, args[0])
		if err != nil {
			return err
		}
		printCandidates(cmd.OutOrStdout(), resp)
		return nil
	},
}

func printCandidates(w io.Writer, resp *server.FindMatchesResponse) {
	if len(resp.Candidates) == 0 {
		fmt.Fprintln(w, "No one to introduce in this channel yet.")
		return
	}
	failed := make(map[string]bool, len(resp.PartialFailures))
	for _, id := range resp.PartialFailures {
		failed[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUSER\tNAME\tORGANIZATION\tROLE\tSCORE\tNOTE")
	for i, c := range resp.Candidates {
		note := ""
		switch {
		case failed[c.Profile.UserID]:
			note = "not recorded"
		case c.Repeat:
			note = "met before"
		}
		name := c.Profile.DisplayName
		if name == "" {
			name = c.Profile.RealName
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.1f\t%s\n",
			i+1, c.Profile.UserID, name, c.Profile.Organization, c.Profile.Role, c.Score, note)
	}
	tw.Flush()
}

// --- interact command ---

var interactCmd = &cobra.Command{
	Use:   "interact <requester-id> <candidate-id>",
	Short: "Record that a requester reached out to a suggested match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := store.ParseInteractionType(interactionKind)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		m, err := client.NewFromEnv().RecordInteraction(ctx, tenantID, args[0], args[1], channelID, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s in %s: %s (%s)\n",
			m.RequesterID, m.CandidateID, m.ChannelID, m.Status, m.InteractionType)
		return nil
	},
}

// --- history command ---

var historyCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "List match records involving a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		backend, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		matches, err := backend.ListMatches(ctx, tenantID, args[0], historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), matches)
		return nil
	},
}

func printHistory(w io.Writer, matches []store.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tREQUESTER\tCANDIDATE\tCHANNEL\tSTATUS\tINTERACTION\tSCORE")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.1f\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			m.RequesterID, m.CandidateID, m.ChannelID, m.Status, m.InteractionType, m.Score)
	}
	tw.Flush()
}

// --- optout / optin commands ---

var optoutCmd = &cobra.Command{
	Use:   "optout <user-id>",
	Short: "Exclude a user from matching",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetOptOut(true),
}

var optinCmd = &cobra.Command{
	Use:   "optin <user-id>",
	Short: "Include a user in matching again",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetOptOut(false),
}

func runSetOptOut(optedOut bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		backend, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.SetOptOut(ctx, tenantID, args[0], optedOut); err != nil {
			return err
		}
		state := "opted in"
		if optedOut {
			state = "opted out"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], state)
		return nil
	}
}

// --- expire command ---

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark old unanswered suggestions as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := time.Parse(time.RFC3339, expireBefore)
		if err != nil {
			return fmt.Errorf("--before must be RFC3339: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
		defer cancel()

		backend, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		n, err := backend.ExpireSuggestions(ctx, tenantID, before)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d suggestion(s)\n", n)
		return nil
	},
}
