// Command veil-node runs a VEIL overlay node and offers a few
// operator-facing debug subcommands.
//
// Torua split its cmd/ tree into a coordinator and a worker node; VEIL
// has a single runtime role, so this binary absorbs both into one
// cobra-based entrypoint instead:
//
//	veil-node run                   # start the tick loop against configured lanes
//	veil-node snapshot inspect PATH # decode and print a persisted snapshot
//	veil-node tag feed KEY          # print the feed tag for a publisher key
//	veil-node tag rv KEY            # print the current rendezvous tag window
//
// Configuration is read from the environment (VEIL_* variables), with an
// optional .env file loaded via godotenv for local runs.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "veil-node",
		Short:         "VEIL overlay node",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			if lv := os.Getenv("VEIL_LOG_LEVEL"); lv != "" {
				parsed, err := logrus.ParseLevel(lv)
				if err != nil {
					return err
				}
				logrus.SetLevel(parsed)
			}
			return nil
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newTagCmd())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("veil-node exiting")
		os.Exit(1)
	}
}
