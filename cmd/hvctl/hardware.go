package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/flash"
)

func NewFlashCommand() *cobra.Command {
	var (
		dcrcs string
		ff    flashFlags
		led   dcrc.LEDSetup
	)

	cmd := &cobra.Command{
		Use:     "flash",
		Short:   "Flash the LEDs of one or more DCRCs",
		GroupID: gHardware,
		Long: `Flash the LEDs of one or more DCRCs.

The 15V LED power of every board is saved and enabled, the LEDs are switched on
for the flash time and off again, the saved 15V power states are restored and
hvctl waits for the cooldown time.

--led-current, --pulse-width and --rep-rate configure the LED pulses before
flashing. They must be given together.`,
		Example: `  hvctl flash --dcrcs 1,2 --flash-seconds 30 --cool-minutes 30`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dcrcs"); err != nil {
				return err
			}
			settings, err := ff.settings()
			if err != nil {
				return err
			}

			f := cmd.Flags()
			setup := f.Changed("led-current") || f.Changed("pulse-width") || f.Changed("rep-rate")
			if setup {
				if err := requireFlags(cmd, "led-current", "pulse-width", "rep-rate"); err != nil {
					return err
				}
			}

			bs, err := boards(dcrcs)
			if err != nil {
				return err
			}

			if setup {
				for _, b := range bs {
					logrus.WithFields(logrus.Fields{
						"dcrc":       b.Number,
						"currentMA":  led.CurrentMA,
						"pulseWidth": led.PulseWidthUS,
						"repRate":    led.RepRateUS,
					}).Info("setting up LEDs")
					if err := b.SetupLEDs(led); err != nil {
						return fmt.Errorf("failed to set up LEDs: %w", err)
					}
				}
			}

			if err := flash.Run(bs, settings, clock()); err != nil {
				return err
			}

			cmd.Printf("%s flashed %d DCRC(s)\n", ok("✔"), len(bs))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dcrcs, "dcrcs", "", "comma-separated DCRC numbers")
	f.Float64Var(&led.CurrentMA, "led-current", 0, "LED current in mA")
	f.Float64Var(&led.PulseWidthUS, "pulse-width", 0, "LED pulse width in us")
	f.Float64Var(&led.RepRateUS, "rep-rate", 0, "LED pulse repetition period in us")
	ff.register(cmd)

	return cmd
}

func NewPowerCommand() *cobra.Command {
	var board int

	cmd := &cobra.Command{
		Use:     "power [on|off]",
		Short:   "Switch the HV power supply of a DCRC",
		GroupID: gHardware,
		Long: `Switch the HV power supply of a DCRC.

hvctl waits a few seconds after switching for the supply to settle.`,
		Example: `  hvctl power on --dcrc 1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlags(cmd, "dcrc"); err != nil {
				return err
			}
			on, err := dcrc.ParsePowerState(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			b := dcrc.New(newODBClient(), conf.Equipment(), board, clock())
			if err := b.SetHVPower(on); err != nil {
				return err
			}

			cmd.Printf("%s HV power of %s switched %s\n", ok("✔"), b, bold("%s", args[0]))
			return nil
		},
	}

	cmd.Flags().IntVar(&board, "dcrc", 0, "DCRC number")

	return cmd
}

func NewLEDCommand() *cobra.Command {
	var dcrcs string

	cmd := newOnOffCommand("led", "the LEDs of DCRCs",
		`Switch both LEDs of one or more DCRCs on or off.

This does not touch the 15V LED power. Use "hvctl flash" for a complete flash.`,
		func(on bool) error {
			if dcrcs == "" {
				return usageErrorf("required flag(s) --dcrcs not set")
			}
			bs, err := boards(dcrcs)
			if err != nil {
				return err
			}
			for _, b := range bs {
				if err := b.EnableLEDs(on); err != nil {
					return err
				}
			}
			return nil
		},
	)
	cmd.PersistentFlags().StringVar(&dcrcs, "dcrcs", "", "comma-separated DCRC numbers")

	return cmd
}

func NewQBiasCommand() *cobra.Command {
	var dcrcs string

	cmd := &cobra.Command{
		Use:     "qbias",
		Short:   "Control the charge bias outputs of DCRCs",
		GroupID: gHardware,
	}

	off := &cobra.Command{
		Use:   "off",
		Short: "Set both charge bias outputs of DCRCs to 0 V",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dcrcs"); err != nil {
				return err
			}
			bs, err := boards(dcrcs)
			if err != nil {
				return err
			}
			for _, b := range bs {
				if err := b.QBiasOff(); err != nil {
					return err
				}
				logrus.Infof("%s charge bias off", b)
			}
			return nil
		},
	}
	off.Flags().StringVar(&dcrcs, "dcrcs", "", "comma-separated DCRC numbers")

	cmd.AddCommand(off)

	return cmd
}
