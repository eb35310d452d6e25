package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/ramp"
	"github.com/cdmslab/hvctl/pkg/scan"
)

// seriesFlags are the data-taking flags shared by both scans.
type seriesFlags struct {
	minutes         float64
	subSeries       int
	flashDCRCs      string
	continueOnError bool
	startAt         string
	ff              flashFlags
}

func (f *seriesFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.minutes, "series-minutes", 0, "length of one data series in minutes")
	fs.IntVar(&f.subSeries, "subseries", 1, "number of runs each series is split into")
	fs.StringVar(&f.flashDCRCs, "flash-dcrcs", "", "comma-separated DCRCs whose LEDs are flashed after each series")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "log a failing series, ramp it back to 0 V and go on with the next one")
	fs.StringVar(&f.startAt, "start-at", "", "cron expression, the scan starts at its next match (e.g. \"0 22 * * *\")")
	f.ff.register(cmd)
}

func (f *seriesFlags) validate() error {
	if f.subSeries < 1 {
		return usageErrorf("--subseries must be at least 1, got %d", f.subSeries)
	}
	if f.startAt != "" {
		if _, err := scan.NextStart(f.startAt, time.Now()); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	return nil
}

func NewScanCommand() *cobra.Command {
	var (
		board       int
		hvs         string
		driftRate   float64
		driftPeriod float64
		preBias     string
		rf          rampFlags
		cf          calFlags
		sf          seriesFlags
	)

	cmd := &cobra.Command{
		Use:     "scan",
		Short:   "Take a data series at each of a list of HV biases",
		GroupID: gScan,
		Long: `Take a data series at each of a list of HV biases.

For every HV the board is powered, ramped up from 0 V (with optional
pre-bias), data is taken for the series length (split into sub-series, one run
each, optionally while the HV drifts), the HV is ramped back to 0 V and the
LEDs of the flash DCRCs are flashed.`,
		Example: `  hvctl scan --dcrc 1 --hvs 10,20,45 --cal-file dcrc1.tsv --series-minutes 30 --flash-dcrcs 1,2
  hvctl scan --dcrc 1 --hvs 45 --cal-file dcrc1.tsv --series-minutes 60 --subseries 4 --flash-dcrcs 1 --drift-rate 0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dcrc", "hvs", "cal-file", "series-minutes", "flash-dcrcs"); err != nil {
				return err
			}
			rate, period, err := rf.resolve(cmd)
			if err != nil {
				return err
			}
			if err := sf.validate(); err != nil {
				return err
			}
			voltages, err := scan.ParseVoltages(hvs)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			pb, err := ramp.ParsePreBias(preBias)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			flashSettings, err := sf.ff.settings()
			if err != nil {
				return err
			}
			dp := time.Duration(driftPeriod * float64(time.Second))
			if !cmd.Flags().Changed("drift-period") {
				dp = conf.DriftPeriod()
			}

			table, err := cf.load()
			if err != nil {
				return err
			}
			flashBoards, err := boards(sf.flashDCRCs)
			if err != nil {
				return err
			}

			client := newODBClient()
			s := &scan.HVScan{
				Client:          client,
				Board:           dcrc.New(client, conf.Equipment(), board, clock()),
				Table:           table,
				Voltages:        voltages,
				Rate:            rate,
				Period:          period,
				DriftRate:       driftRate,
				DriftPeriod:     dp,
				PreBias:         pb,
				SeriesDuration:  scan.SeriesDuration(sf.minutes),
				SubSeries:       sf.subSeries,
				FlashBoards:     flashBoards,
				Flash:           flashSettings,
				ContinueOnError: sf.continueOnError,
				StartAt:         sf.startAt,
				Clock:           clock(),
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			if err := s.Run(); err != nil {
				return err
			}

			logrus.Infof("HV scan of DCRC%d finished", board)
			cmd.Printf("%s scanned %s at %v V\n", ok("✔"), bold("DCRC%d", board), voltages)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&board, "dcrc", 0, "DCRC number")
	f.StringVar(&hvs, "hvs", "", "comma-separated HV biases in V, scanned in order")
	f.Float64Var(&driftRate, "drift-rate", 0, "HV drift in V/s during each series, 0 to hold the HV")
	f.Float64Var(&driftPeriod, "drift-period", 10, "seconds between two drift updates (default from config)")
	f.StringVar(&preBias, "prebias", "", "overbias percent and wait minutes applied when ramping up, e.g. 15/5")
	rf.register(cmd)
	cf.register(cmd)
	sf.register(cmd)

	return cmd
}

func NewQScanCommand() *cobra.Command {
	var (
		sides string
		vs    string
		sf    seriesFlags
	)

	cmd := &cobra.Command{
		Use:     "qscan",
		Short:   "Take a data series at each of a list of charge bias pairs",
		GroupID: gScan,
		Long: `Take a data series at each of a list of charge bias pairs.

--dcrc-sides names the DCRCs of side 1 and side 2 as "S1/S2". --vs lists the
charge bias pairs as "(V1/V2),(V1/V2),...". For each pair both charge bias
indices of each side are set, data is taken, the biases are switched off and
the LEDs are flashed.`,
		Example: `  hvctl qscan --dcrc-sides 3/1 --vs "(0/0),(5/-5)" --series-minutes 30 --flash-dcrcs 1,3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dcrc-sides", "vs", "series-minutes", "flash-dcrcs"); err != nil {
				return err
			}
			if err := sf.validate(); err != nil {
				return err
			}
			side1, side2, err := scan.ParseSides(sides)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			pairs, err := scan.ParseQBiasPairs(vs)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			flashSettings, err := sf.ff.settings()
			if err != nil {
				return err
			}
			flashBoards, err := boards(sf.flashDCRCs)
			if err != nil {
				return err
			}

			client := newODBClient()
			s := &scan.QScan{
				Client:          client,
				Side1:           dcrc.New(client, conf.Equipment(), side1, clock()),
				Side2:           dcrc.New(client, conf.Equipment(), side2, clock()),
				Pairs:           pairs,
				SeriesDuration:  scan.SeriesDuration(sf.minutes),
				SubSeries:       sf.subSeries,
				FlashBoards:     flashBoards,
				Flash:           flashSettings,
				ContinueOnError: sf.continueOnError,
				StartAt:         sf.startAt,
				Clock:           clock(),
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}

			if err := s.Run(); err != nil {
				return err
			}

			cmd.Printf("%s charge bias scan of %s finished (%d pairs)\n", ok("✔"), bold("DCRC%d/DCRC%d", side1, side2), len(pairs))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sides, "dcrc-sides", "", "side 1 and side 2 DCRC numbers, e.g. 3/1")
	f.StringVar(&vs, "vs", "", "charge bias pairs in V, e.g. \"(0/0),(5/-5)\"")
	sf.register(cmd)

	return cmd
}
