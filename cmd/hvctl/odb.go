package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewODBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "odb",
		Short:   "Read or write raw ODB values",
		GroupID: gAdvanced,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "read PATH",
			Short:   "Print the value of an ODB key",
			Example: `  hvctl odb read "/Equipment/Tower01/Settings/DCRC1/Charge/Bias (V)[0]"`,
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := newODBClient().Read(args[0])
				if err != nil {
					return err
				}
				cmd.Println(v)
				return nil
			},
		},
		&cobra.Command{
			Use:     "write PATH VALUE",
			Short:   "Set the value of an ODB key",
			Example: `  hvctl odb write "/Logger/Write data" n`,
			Args:    cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := newODBClient().Write(args[0], args[1]); err != nil {
					return err
				}
				logrus.Infof("set %s = %s", args[0], args[1])
				return nil
			},
		},
	)

	return cmd
}

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Start or stop a data taking run",
		GroupID: gAdvanced,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start a run",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := newODBClient().StartRun(); err != nil {
					return err
				}
				logrus.Info("run started")
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the current run",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := newODBClient().StopRun(); err != nil {
					return err
				}
				logrus.Info("run stopped")
				return nil
			},
		},
	)

	return cmd
}
