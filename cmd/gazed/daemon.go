package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eyetrax/gazed/pkg/daemon"
	"github.com/eyetrax/gazed/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the gazed daemon.
	alwaysAllowNonRootAccess = false
	syntheticInput           = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run gazed daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("gazed daemon starting")
			return daemon.Run(daemon.Options{
				ConfigPath:     configPath,
				SocketPath:     unixSocketPath,
				StatePath:      statePath,
				AllowNonRoot:   alwaysAllowNonRootAccess,
				SyntheticInput: syntheticInput,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.StringVar(&statePath, "state", statePath, "Session state file path.")
	f.BoolVar(&syntheticInput, "synthetic", false,
		"Use a synthetic gaze sampler instead of a camera. Useful for demos and development without a webcam.")

	return cmd
}
