package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/veil/internal/cache"
	"github.com/dreamware/veil/internal/persistence"
	"github.com/dreamware/veil/internal/policy"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "inspect persisted runtime state",
	}
	cmd.AddCommand(newSnapshotInspectCmd())
	return cmd
}

func newSnapshotInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PATH",
		Short: "decode and print a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			c := cache.New(1 << 20)
			pol := policy.New()
			subs, err := persistence.LoadState(data, c, pol)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "subscriptions: %d\n", len(subs))
			for _, t := range subs {
				fmt.Fprintf(out, "  %x\n", t[:])
			}
			fmt.Fprintf(out, "cache entries: %d\n", c.Len())
			fmt.Fprintf(out, "trusted: %v\n", pol.TrustedSet())
			fmt.Fprintf(out, "muted: %v\n", pol.MutedSet())
			fmt.Fprintf(out, "blocked: %v\n", pol.BlockedSet())
			fmt.Fprintf(out, "endorsements: %d\n", len(pol.Endorsements()))
			for _, e := range pol.Endorsements() {
				fmt.Fprintf(out, "  %s -> %s @ %d\n", e.Endorser, e.Publisher, e.Step)
			}
			return nil
		},
	}
}
