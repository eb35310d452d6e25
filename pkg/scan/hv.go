package scan

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/flash"
	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

// DefaultDriftPeriod is the update period used while drifting the HV.
const DefaultDriftPeriod = 10 * time.Second

// HVScan takes one data series per HV bias.
//
// Each series switches the HV supply on, ramps from 0 V to the bias (with
// pre-bias if requested), takes data, ramps back to 0 V and flashes. The HV
// supply is left on between series: switching it off makes channels rail.
type HVScan struct {
	Client odb.Client
	Board  *dcrc.Board
	Table  ramp.Interpolator

	Voltages []float64
	// Rate and Period control ramps before and after data taking.
	Rate   float64
	Period time.Duration
	// DriftRate, when not 0, slowly changes the HV during data taking.
	DriftRate   float64
	DriftPeriod time.Duration
	PreBias     *ramp.PreBias

	SeriesDuration time.Duration
	SubSeries      int

	FlashBoards []*dcrc.Board
	Flash       flash.Settings

	// ContinueOnError keeps scanning after a failed series instead of
	// aborting the whole scan.
	ContinueOnError bool
	// StartAt is an optional cron expression delaying the scan start.
	StartAt string

	// ID tags the log entries of one scan. Run generates one when empty.
	ID string

	Clock  ramp.Clock
	OnStep func(ramp.Step)
}

func (s *HVScan) clock() ramp.Clock {
	if s.Clock == nil {
		return ramp.RealClock
	}
	return s.Clock
}

func (s *HVScan) subSeries() int {
	if s.SubSeries < 1 {
		return 1
	}
	return s.SubSeries
}

// Validate checks the scan before any hardware is touched.
func (s *HVScan) Validate() error {
	if len(s.Voltages) == 0 {
		return fmt.Errorf("%w: no HV biases", ErrInvalidScan)
	}
	if s.Client == nil || s.Board == nil || s.Table == nil {
		return fmt.Errorf("%w: control system, board and calibration table are required", ErrInvalidScan)
	}
	if s.SeriesDuration <= 0 {
		return fmt.Errorf("%w: series duration must be positive, got %s", ErrInvalidScan, s.SeriesDuration)
	}
	if err := (ramp.Request{Start: 0, End: 1, Rate: s.Rate, Period: s.Period}).Validate(); err != nil {
		return err
	}
	if s.DriftRate != 0 {
		if err := (ramp.Request{Start: 0, End: 1, Rate: math.Abs(s.DriftRate), Period: s.driftPeriod()}).Validate(); err != nil {
			return fmt.Errorf("drift: %w", err)
		}
	}
	if len(s.FlashBoards) == 0 {
		return fmt.Errorf("%w: no DCRCs to flash", ErrInvalidScan)
	}
	return nil
}

func (s *HVScan) driftPeriod() time.Duration {
	if s.DriftPeriod == 0 {
		return DefaultDriftPeriod
	}
	return s.DriftPeriod
}

// Run executes the scan. Without ContinueOnError the first failing series
// aborts the scan. Otherwise the failure is logged, the HV is ramped back to
// 0 V on a best-effort basis and the scan moves on; all failures are returned
// together. The data logger is restored in both cases.
func (s *HVScan) Run() error {
	if err := s.Validate(); err != nil {
		return err
	}
	clk := s.clock()

	if s.StartAt != "" {
		if err := WaitForStart(s.StartAt, clk); err != nil {
			return err
		}
	}

	if s.ID == "" {
		s.ID = xid.New().String()
	}
	logrus.WithFields(logrus.Fields{
		"scan":     s.ID,
		"dcrc":     s.Board.Number,
		"voltages": s.Voltages,
		"series":   s.SeriesDuration,
	}).Info("HV bias scan")

	if err := startLogging(s.Client, 0); err != nil {
		return fmt.Errorf("failed to enable data logging: %w", err)
	}

	var errs []error
	for i, hv := range s.Voltages {
		st := &hvSeries{scan: s, clock: clk}
		err := st.run(i, hv)
		if err == nil {
			continue
		}

		err = fmt.Errorf("series %d/%d at %g V: %w", i+1, len(s.Voltages), hv, err)
		if !s.ContinueOnError {
			return finish(s.Client, []error{err})
		}

		logrus.WithError(err).WithField("scan", s.ID).Error("series failed, continuing with the next one")
		errs = append(errs, err)
		st.recover()
	}

	return finish(s.Client, errs)
}

// hvSeries tracks the state of one series so a failure can be cleaned up.
type hvSeries struct {
	scan  *HVScan
	clock ramp.Clock
	acq   *acquisition
	// hv is the last HV that was applied.
	hv float64
}

func (st *hvSeries) stepper() *ramp.Stepper {
	return &ramp.Stepper{
		Table:   st.scan.Table,
		Applier: st.scan.Board,
		Clock:   st.clock,
		OnStep: func(step ramp.Step) {
			st.hv = step.Voltage
			if st.scan.OnStep != nil {
				st.scan.OnStep(step)
			}
		},
	}
}

func (st *hvSeries) run(i int, hv float64) error {
	s := st.scan

	if err := s.Board.SetHVPower(true); err != nil {
		return err
	}

	// Pre-bias only makes sense for a non-zero bias.
	pb := s.PreBias
	if hv == 0 {
		pb = nil
	}
	up := ramp.Request{Start: 0, End: hv, Rate: s.Rate, Period: s.Period}
	if err := ramp.Run(st.stepper(), up, pb); err != nil {
		return err
	}
	st.hv = hv

	logrus.Infof("take data, set %d/%d", i+1, len(s.Voltages))
	d := SubSeriesDuration(s.SeriesDuration, s.subSeries())
	if err := writeSeriesDuration(s.Client, d); err != nil {
		return err
	}

	st.acq = &acquisition{
		client:    s.Client,
		clock:     st.clock,
		subSeries: s.subSeries(),
		duration:  d,
	}
	var during func(time.Duration) error
	if s.DriftRate != 0 {
		during = st.drift
	}
	if err := st.acq.take(during); err != nil {
		return err
	}

	down := ramp.Request{Start: st.hv, End: 0, Rate: s.Rate, Period: s.Period}
	if err := st.stepper().Ramp(down); err != nil {
		return fmt.Errorf("failed to ramp down: %w", err)
	}
	st.hv = 0

	logrus.Info("flash and cooldown")
	return flash.Run(s.FlashBoards, s.Flash, st.clock)
}

// drift changes the HV at the drift rate for the length of a run.
func (st *hvSeries) drift(d time.Duration) error {
	s := st.scan
	end := st.hv + s.DriftRate*d.Seconds()
	logrus.Infof("drifting HV at %g V/s", s.DriftRate)

	r := ramp.Request{Start: st.hv, End: end, Rate: math.Abs(s.DriftRate), Period: s.driftPeriod()}
	if err := st.stepper().Ramp(r); err != nil {
		return fmt.Errorf("failed to drift HV: %w", err)
	}
	st.hv = end
	return nil
}

// recover stops a dangling run and ramps the HV back to 0 V.
func (st *hvSeries) recover() {
	if st.acq != nil {
		st.acq.stopIfRunning()
	}
	if st.hv == 0 {
		return
	}

	s := st.scan
	r := ramp.Request{Start: st.hv, End: 0, Rate: s.Rate, Period: s.Period}
	if err := st.stepper().Ramp(r); err != nil {
		logrus.WithError(err).Errorf("failed to ramp HV back to 0 V from %g V", st.hv)
	}
}
