package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/client"
	"github.com/cdmslab/hvctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)

			if backend != backendDaemon {
				return
			}
			v, err := client.NewClient(unixSocketPath).GetVersion()
			if err != nil {
				logrus.Warnf("failed to get daemon version: %v", err)
				return
			}
			cmd.Printf("daemon: %s %s\n", v.Version, v.GitCommit)
			if v.Version != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": v.Version,
				}).Warn("Version mismatch between client and daemon.")
			}
		},
	}
}
