package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/veil/internal/lane"
	"github.com/dreamware/veil/internal/runtime"
)

func newRunCmd() *cobra.Command {
	var listen, fallbackListen, snapshotPath string
	var peers []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the runtime loop against configured lanes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(listen, fallbackListen, snapshotPath, peers)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "fast-lane TCP listen address, e.g. :9000")
	cmd.Flags().StringVar(&fallbackListen, "fallback-listen", "", "fallback-lane TCP listen address (optional, shares the fast lane's peers if unset)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot-path", "", "file to load state from at startup and persist to on the configured snapshot cadence")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "peer dial address (host:port); repeatable")

	return cmd
}

func runNode(listen, fallbackListen, snapshotPath string, peers []string) error {
	cfg, err := configFromEnv()
	if err != nil {
		return err
	}
	cfg.Logger = logrus.StandardLogger()

	var hooks runtime.Hooks
	if snapshotPath != "" {
		hooks.OnSnapshot = func(blob []byte) {
			if err := os.WriteFile(snapshotPath, blob, 0o600); err != nil {
				logrus.WithError(err).Warn("failed to persist snapshot")
			}
		}
	}

	node, err := runtime.NewNode(cfg, hooks)
	if err != nil {
		return err
	}

	if snapshotPath != "" {
		if data, err := os.ReadFile(snapshotPath); err == nil {
			node.Restore(data)
		} else if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("failed to read snapshot file")
		}
	}

	fastLane, err := lane.NewTCPLane(listen)
	if err != nil {
		return err
	}
	defer fastLane.Close()
	node.RegisterLane("fast", fastLane)

	if fallbackListen != "" {
		fallbackLane, err := lane.NewTCPLane(fallbackListen)
		if err != nil {
			return err
		}
		defer fallbackLane.Close()
		node.RegisterLane("fallback", fallbackLane)
	} else {
		node.RegisterLane("fallback", fastLane)
	}

	node.SetForwardPeers(peers)

	logrus.WithField("listen", listen).WithField("peers", peers).Info("veil-node starting")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case now := <-ticker.C:
			node.Tick(now.Sub(start).Milliseconds())
		case <-stop:
			logrus.Info("veil-node stopping")
			if snapshotPath != "" {
				if err := os.WriteFile(snapshotPath, node.Snapshot(), 0o600); err != nil {
					logrus.WithError(err).Warn("failed to persist snapshot on shutdown")
				}
			}
			return nil
		}
	}
}
