package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

func NewChangeCommand() *cobra.Command {
	var (
		board   int
		start   float64
		end     float64
		preBias string
		dryRun  bool
		rf      rampFlags
		cf      calFlags
	)

	cmd := &cobra.Command{
		Use:     "change",
		Short:   "Ramp the HV of one DCRC from one voltage to another",
		GroupID: gRamp,
		Long: `Ramp the HV of one DCRC from one voltage to another.

Every update period the HV moves by at most rate*period towards the target and
the matching charge bias setting, read from the calibration table, is written
to the board. The last step always lands exactly on the target.

With --prebias P/M the HV first overshoots the target by P percent, stays
there for M minutes and then ramps down to the target.`,
		Example: `  hvctl change --dcrc 1 --start 0 --end 45 --cal-file dcrc1.tsv
  hvctl change --dcrc 1 --start 0 --end 45 --cal-file dcrc1.tsv --prebias 15/5 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dcrc", "start", "end", "cal-file"); err != nil {
				return err
			}
			rate, period, err := rf.resolve(cmd)
			if err != nil {
				return err
			}
			pb, err := ramp.ParsePreBias(preBias)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			req := ramp.Request{Start: start, End: end, Rate: rate, Period: period}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			table, err := cf.load()
			if err != nil {
				return err
			}

			if dryRun {
				return printRampPlan(cmd, table, req, pb)
			}

			b := dcrc.New(newODBClient(), conf.Equipment(), board, clock())
			s := &ramp.Stepper{
				Table:   table,
				Applier: b,
				Clock:   clock(),
				OnStep: func(st ramp.Step) {
					logrus.Debugf("%s: HV %g V (setting %g)", b, st.Voltage, st.Setting)
				},
			}

			logrus.WithFields(logrus.Fields{
				"dcrc":    board,
				"from":    start,
				"to":      end,
				"preBias": preBias,
			}).Info("changing HV")

			if err := ramp.Run(s, req, pb); err != nil {
				return err
			}

			cmd.Printf("%s HV of %s is now %s\n", ok("✔"), b, bold("%g V", end))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&board, "dcrc", 0, "DCRC number")
	f.Float64Var(&start, "start", 0, "current HV in V")
	f.Float64Var(&end, "end", 0, "target HV in V")
	f.StringVar(&preBias, "prebias", "", "overbias percent and wait minutes, e.g. 15/5")
	f.BoolVar(&dryRun, "dry-run", false, "print the planned steps without touching hardware")
	rf.register(cmd)
	cf.register(cmd)

	return cmd
}

// printRampPlan prints every step a ramp would apply, in order.
func printRampPlan(cmd *cobra.Command, table ramp.Interpolator, req ramp.Request, pb *ramp.PreBias) error {
	type segment struct {
		name string
		req  ramp.Request
		wait time.Duration
	}

	segments := []segment{{name: "ramp", req: req}}
	if pb != nil {
		over := ramp.OverbiasTarget(req.End, pb.Percent)
		up, down := req, req
		up.End = over
		down.Start = over
		segments = []segment{
			{name: "pre-bias ramp", req: up, wait: pb.Wait},
			{name: "ramp down", req: down},
		}
	}

	red := color.New(color.Bold, color.FgRed).SprintFunc()
	var total time.Duration
	for _, seg := range segments {
		plan, err := ramp.Plan(seg.req)
		if err != nil {
			return err
		}
		cmd.Println(bold("%s %g V -> %g V (%d steps):", seg.name, seg.req.Start, seg.req.End, len(plan)))
		for i, hv := range plan {
			setting, err := table.Interpolate(hv)
			if err != nil {
				cmd.Printf("  %4d  %10g V  %s\n", i, hv, red(err.Error()))
				return fmt.Errorf("bad bias setting for %g V: %w", hv, err)
			}
			cmd.Printf("  %4d  %10g V  setting %g\n", i, hv, ramp.Round(setting, 3))
		}
		total += time.Duration(len(plan))*seg.req.Period + seg.wait
		if seg.wait > 0 {
			cmd.Printf("  hold for %s\n", seg.wait)
		}
	}
	cmd.Printf("Estimated duration: %s\n", bold("%s", total))

	return nil
}
