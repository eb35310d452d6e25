package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cdmslab/hvctl/pkg/client"
	"github.com/cdmslab/hvctl/pkg/config"
)

const (
	defaultUnixSocketPath = "/var/run/hvctl.sock"
	defaultConfigPath     = "/etc/hvctl.json"
)

var (
	logLevel       = "info"
	unixSocketPath = defaultUnixSocketPath
	configPath     = defaultConfigPath
	backend        = backendOdbedit
	envFile        = ""
)

var conf config.Config

var (
	gRamp         = "Ramping:"
	gScan         = "Scans:"
	gHardware     = "Hardware:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"

	commandGroups = []string{
		gRamp,
		gScan,
		gHardware,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("%w: failed to parse log level: %v", errUsage, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.TimeOnly,
		})
	}

	return nil
}

func handleCmdError(cmd *cobra.Command, err error) {
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, cmd.UsageString())
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: hvctl daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'hvctl daemon', or use '--backend odbedit' to call odbedit directly.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag")
	}
}

func main() {
	cmd := NewCommand()
	if c, err := cmd.ExecuteC(); err != nil {
		handleCmdError(c, err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hvctl",
		Short: "hvctl ramps and scans DCRC detector bias voltages",
		Long: `hvctl ramps and scans DCRC detector bias voltages.

High voltages are converted to DCRC charge bias settings through a measured
calibration table and applied in small steps at a bounded rate. Scans take data
series at a list of voltages (or charge biases), with optional LED flashing
between them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			if err := checkBackend(backend); err != nil {
				return err
			}

			// odbedit reads MIDAS_EXPT_NAME, MIDAS_SERVER_HOST and friends
			// from the environment.
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return pkgerrors.Wrapf(err, "failed to load environment file %s", envFile)
				}
				logrus.WithField("file", envFile).Debug("environment loaded")
			}

			c, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			conf = c
			logrus.WithFields(c.LogrusFields()).Debug("config loaded")

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			printMockSummary(cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", defaultConfigPath, "config file path")
	globalFlags.StringVar(&backend, "backend", backendOdbedit, "how to reach the ODB ("+backendOdbedit+", "+backendDaemon+", "+backendMock+")")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", defaultUnixSocketPath, "hvctl daemon unix socket path")
	globalFlags.StringVar(&envFile, "env-file", "", "file of KEY=VALUE lines added to the environment, e.g. MIDAS_EXPT_NAME")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewChangeCommand(),
		NewInterpolateCommand(),
		NewScanCommand(),
		NewQScanCommand(),
		NewFlashCommand(),
		NewPowerCommand(),
		NewLEDCommand(),
		NewQBiasCommand(),
		NewODBCommand(),
		NewRunCommand(),
		NewConfigCommand(),
		NewMonitorCommand(),
		NewDaemonCommand(),
		NewVersionCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
