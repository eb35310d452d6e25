package ramp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// MinUpdatePeriod is the shortest update period accepted from users.
const MinUpdatePeriod = time.Second

// ErrInvalidRequest is returned for ramps that would never terminate or that
// violate the minimum update period.
var ErrInvalidRequest = errors.New("invalid ramp request")

// Interpolator maps an HV output to a control setting.
type Interpolator interface {
	Interpolate(hv float64) (float64, error)
}

// Applier writes a control setting to the hardware.
type Applier interface {
	ApplySetting(setting float64) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(setting float64) error

// ApplySetting calls f(setting).
func (f ApplierFunc) ApplySetting(setting float64) error { return f(setting) }

// Request describes a single ramp.
type Request struct {
	Start float64
	End   float64
	// Rate is the maximum HV change in V/s.
	Rate float64
	// Period is the time between two applied settings.
	Period time.Duration
}

// Increment is the HV change per update period.
func (r Request) Increment() float64 {
	return r.Rate * r.Period.Seconds()
}

// Validate checks the request against user-facing limits.
func (r Request) Validate() error {
	if err := r.check(); err != nil {
		return err
	}
	if r.Period < MinUpdatePeriod {
		return fmt.Errorf("%w: minimum update period is %s, got %s", ErrInvalidRequest, MinUpdatePeriod, r.Period)
	}
	return nil
}

// check guards termination of the stepping loop.
func (r Request) check() error {
	if !(r.Rate > 0) || math.IsInf(r.Rate, 0) {
		return fmt.Errorf("%w: ramp rate must be positive, got %g V/s", ErrInvalidRequest, r.Rate)
	}
	if r.Period <= 0 {
		return fmt.Errorf("%w: update period must be positive, got %s", ErrInvalidRequest, r.Period)
	}
	if math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsInf(r.Start, 0) || math.IsInf(r.End, 0) {
		return fmt.Errorf("%w: start and end must be finite, got %g V -> %g V", ErrInvalidRequest, r.Start, r.End)
	}
	if m := math.Max(math.Abs(r.Start), math.Abs(r.End)); m+r.Increment() == m {
		return fmt.Errorf("%w: increment %g V is too small to move from %g V", ErrInvalidRequest, r.Increment(), m)
	}
	return nil
}

// Step is one applied point of a ramp.
type Step struct {
	Index   int
	Voltage float64
	Setting float64
}

// next returns the HV following current. The last step snaps to end.
func next(current, end, increment float64) float64 {
	if math.Abs(end-current) < increment {
		return end
	}
	if current < end {
		return current + increment
	}
	return current - increment
}

// Plan returns the HV values a ramp will apply, in order, without touching
// hardware. The last value is always exactly r.End. A ramp whose start equals
// its end applies nothing.
func Plan(r Request) ([]float64, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	inc := r.Increment()
	var out []float64
	for cur := r.Start; cur != r.End; {
		cur = next(cur, r.End, inc)
		out = append(out, cur)
	}
	return out, nil
}

// Stepper walks the control setting from one HV to another.
type Stepper struct {
	Table   Interpolator
	Applier Applier
	Clock   Clock

	// OnStep, if set, is called after every applied setting.
	OnStep func(Step)
}

func (s *Stepper) clock() Clock {
	if s.Clock == nil {
		return RealClock
	}
	return s.Clock
}

// Ramp steps the HV from r.Start to r.End, changing it by at most
// r.Rate*r.Period every r.Period. Each HV is converted to a setting through
// the calibration table, rounded to 3 decimals and applied, then the stepper
// sleeps for r.Period. Any interpolation or apply error aborts the ramp;
// settings that were already applied stay in place.
func (s *Stepper) Ramp(r Request) error {
	if err := r.check(); err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{
		"from":   r.Start,
		"to":     r.End,
		"rate":   r.Rate,
		"period": r.Period,
	})
	log.Info("ramping HV")

	clk := s.clock()
	inc := r.Increment()
	cur := r.Start
	i := 0

	for cur != r.End {
		cur = next(cur, r.End, inc)

		setting, err := s.Table.Interpolate(cur)
		if err != nil {
			return fmt.Errorf("bad bias setting for %g V: %w", cur, err)
		}
		setting = Round(setting, 3)

		if err := s.Applier.ApplySetting(setting); err != nil {
			return fmt.Errorf("failed to apply setting %g for %g V: %w", setting, cur, err)
		}

		log.WithFields(logrus.Fields{
			"step":    i,
			"hv":      cur,
			"setting": setting,
		}).Debug("applied HV step")

		if s.OnStep != nil {
			s.OnStep(Step{Index: i, Voltage: cur, Setting: setting})
		}
		i++

		clk.Sleep(r.Period)
	}

	log.WithField("steps", i).Info("HV ramp finished")

	return nil
}

// Round rounds x to the given number of decimal places. Values that round to
// zero are returned as +0 so they never print as "-0".
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(x*p) / p
	if r == 0 {
		return 0
	}
	return r
}
