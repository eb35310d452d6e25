package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/ramp"
)

func NewInterpolateCommand() *cobra.Command {
	var cf calFlags

	cmd := &cobra.Command{
		Use:     "interpolate VOLTAGE...",
		Short:   "Print the charge bias settings for HV values",
		GroupID: gRamp,
		Long: `Print the charge bias settings for HV values.

Settings are interpolated linearly from the calibration table and rounded to 3
decimals, exactly as a ramp would apply them. No hardware is touched.`,
		Example: `  hvctl interpolate --cal-file dcrc1.tsv 10 20 45`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "cal-file"); err != nil {
				return err
			}

			voltages := make([]float64, 0, len(args))
			for _, a := range args {
				v, err := parseFloatArg(a, "voltage")
				if err != nil {
					return err
				}
				voltages = append(voltages, v)
			}

			table, err := cf.load()
			if err != nil {
				return err
			}

			lo, hi := table.Range()
			cmd.Printf("%s (%d points, %g V to %g V)\n", bold("%s", table.Source()), table.Len(), lo, hi)
			for _, v := range voltages {
				setting, err := table.Interpolate(v)
				if err != nil {
					return fmt.Errorf("bad bias setting for %g V: %w", v, err)
				}
				cmd.Printf("%10g V  %g\n", v, ramp.Round(setting, 3))
			}
			return nil
		},
	}

	cf.register(cmd)

	return cmd
}
