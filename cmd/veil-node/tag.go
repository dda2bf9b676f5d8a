package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/veil/internal/tag"
)

func newTagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "derive feed and rendezvous tags for a key",
	}
	cmd.AddCommand(newTagFeedCmd())
	cmd.AddCommand(newTagRVCmd())
	return cmd
}

func newTagFeedCmd() *cobra.Command {
	var namespace uint16
	cmd := &cobra.Command{
		Use:   "feed KEY",
		Short: "print the feed tag for a hex-encoded publisher key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("decoding key: %w", err)
			}
			t := tag.Feed(key, namespace)
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", t[:])
			return nil
		},
	}
	cmd.Flags().Uint16Var(&namespace, "namespace", 0, "16-bit namespace")
	return cmd
}

func newTagRVCmd() *cobra.Command {
	var namespace uint16
	var epochSeconds, overlapSeconds, now int64
	cmd := &cobra.Command{
		Use:   "rv KEY",
		Short: "print the current rendezvous tag window for a hex-encoded recipient key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("decoding key: %w", err)
			}
			if now == 0 {
				now = time.Now().Unix()
			}
			tags := tag.RendezvousWindow(key, now, namespace, epochSeconds, overlapSeconds)
			out := cmd.OutOrStdout()
			for _, t := range tags {
				fmt.Fprintf(out, "%x\n", t[:])
			}
			return nil
		},
	}
	cmd.Flags().Uint16Var(&namespace, "namespace", 0, "16-bit namespace")
	cmd.Flags().Int64Var(&epochSeconds, "epoch-seconds", 3600, "epoch length in seconds")
	cmd.Flags().Int64Var(&overlapSeconds, "overlap-seconds", 120, "boundary overlap in seconds")
	cmd.Flags().Int64Var(&now, "now", 0, "unix seconds to evaluate at (defaults to the current time)")
	return cmd
}
