package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/client"
	"github.com/cdmslab/hvctl/pkg/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change hvctl configuration",
		GroupID: gAdvanced,
		Long: `Show or change hvctl configuration.

With '--backend daemon' the daemon's configuration is used, and changes take
effect right away. Otherwise the config file given by --config is edited
directly; a running daemon picks it up on 'systemctl reload hvctl'.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the configuration, including defaults",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var raw *config.RawFileConfig
				var err error
				if backend == backendDaemon {
					raw, err = client.NewClient(unixSocketPath).GetConfig()
				} else {
					raw, err = config.NewRawFileConfigFromConfig(conf)
				}
				if err != nil {
					return err
				}

				b, err := json.MarshalIndent(raw, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Change one configuration key",
			Long: fmt.Sprintf(`Change one configuration key.

Keys: %s`, strings.Join(config.Keys, ", ")),
			Example: `  hvctl config set rampRate 0.5
  hvctl config set experiment cdms --backend daemon`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, value := args[0], args[1]

				if backend == backendDaemon {
					msg, err := client.NewClient(unixSocketPath).SetConfig(key, value)
					if err != nil {
						return err
					}
					cmd.Println(msg)
					return nil
				}

				if err := config.Set(conf, key, value); err != nil {
					if errors.Is(err, config.ErrUnknownKey) || errors.Is(err, config.ErrInvalidValue) {
						return fmt.Errorf("%w: %v", errUsage, err)
					}
					return err
				}
				if err := conf.Save(); err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{
					"key":    key,
					"value":  value,
					"config": configPath,
				}).Info("config saved")
				cmd.Printf("set %s to %q\n", key, value)
				return nil
			},
		},
	)

	return cmd
}
