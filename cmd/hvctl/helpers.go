package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/calibration"
	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/flash"
	"github.com/cdmslab/hvctl/pkg/ramp"
	"github.com/cdmslab/hvctl/pkg/scan"
)

// errUsage marks errors caused by bad command line input. The usage of the
// failing command is printed for them.
var errUsage = errors.New("usage error")

func usageErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

// requireFlags fails with a usage error naming every flag in names that was
// not set on the command line.
func requireFlags(cmd *cobra.Command, names ...string) error {
	var missing []string
	for _, n := range names {
		if !cmd.Flags().Changed(n) {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return usageErrorf("required flag(s) %s not set", strings.Join(missing, ", "))
	}
	return nil
}

func parseFloatArg(arg, valueName string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, usageErrorf("invalid %s %q", valueName, arg)
	}
	return v, nil
}

// rampFlags are the rate/period flags shared by every command that ramps HV.
type rampFlags struct {
	rate   float64
	period float64
}

func (f *rampFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.rate, "rate", 1.0, "maximum HV change rate in V/s (default from config)")
	cmd.Flags().Float64Var(&f.period, "period", 1, "seconds between two HV updates, at least 1 (default from config)")
}

// resolve fills in the config defaults for flags not set on the command line.
func (f *rampFlags) resolve(cmd *cobra.Command) (float64, time.Duration, error) {
	rate := f.rate
	if !cmd.Flags().Changed("rate") {
		rate = conf.RampRate()
	}
	period := time.Duration(f.period * float64(time.Second))
	if !cmd.Flags().Changed("period") {
		period = conf.UpdatePeriod()
	}

	if !(rate > 0) {
		return 0, 0, usageErrorf("ramp rate must be positive, got %g V/s", rate)
	}
	if period < ramp.MinUpdatePeriod {
		return 0, 0, usageErrorf("minimum update period is %s", ramp.MinUpdatePeriod)
	}
	return rate, period, nil
}

// calFlags selects and loads a calibration table.
type calFlags struct {
	path           string
	allowUnordered bool
}

func (f *calFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "cal-file", "", "calibration file (tab-separated setting and voltage, one header line)")
	cmd.Flags().BoolVar(&f.allowUnordered, "allow-unordered-cal", false, "accept calibration tables whose voltages are not monotonic")
}

func (f *calFlags) load() (*calibration.Table, error) {
	var opts []calibration.LoadOption
	if f.allowUnordered {
		opts = append(opts, calibration.WithUnorderedAllowed())
	}
	return calibration.Load(f.path, opts...)
}

// flashFlags are the LED flash settings shared by scans and the flash command.
type flashFlags struct {
	seconds     float64
	coolMinutes float64
}

func (f *flashFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.seconds, "flash-seconds", 30, "how long the LEDs stay on")
	cmd.Flags().Float64Var(&f.coolMinutes, "cool-minutes", 30, "how long to wait after flashing")
}

func (f *flashFlags) settings() (s flash.Settings, err error) {
	if f.seconds < 0 || f.coolMinutes < 0 {
		return s, usageErrorf("flash and cooldown times must not be negative")
	}
	s.Duration = time.Duration(f.seconds * float64(time.Second))
	s.Cooldown = time.Duration(f.coolMinutes * float64(time.Minute))
	return s, nil
}

// boards builds one dcrc.Board per number in the comma-separated list s.
func boards(s string) ([]*dcrc.Board, error) {
	ns, err := scan.ParseBoards(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	client := newODBClient()
	out := make([]*dcrc.Board, 0, len(ns))
	for _, n := range ns {
		out = append(out, dcrc.New(client, conf.Equipment(), n, clock()))
	}
	return out, nil
}

func newOnOffCommand(
	use, short, long string,
	setFunc func(on bool) error,
) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: gHardware,
	}

	for _, on := range []bool{true, false} {
		state := "off"
		if on {
			state = "on"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   state,
			Short: "Switch " + short + " " + state,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := setFunc(on); err != nil {
					return fmt.Errorf("failed to switch %s %s: %w", use, state, err)
				}
				logrus.Infof("successfully switched %s %s", use, state)
				return nil
			},
		})
	}

	return cmd
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func ok(format string, a ...interface{}) string {
	return color.New(color.Bold, color.FgGreen).Sprintf(format, a...)
}
