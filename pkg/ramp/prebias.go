package ramp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidPreBias is returned for pre-bias strings that are not
// "<overbias percent>/<wait minutes>".
var ErrInvalidPreBias = errors.New("invalid pre-bias")

// PreBias overshoots the target HV by Percent, holds it for Wait, and then
// ramps down to the real target.
type PreBias struct {
	Percent float64
	Wait    time.Duration
}

func (p PreBias) String() string {
	return fmt.Sprintf("%g/%g", p.Percent, p.Wait.Minutes())
}

// ParsePreBias parses "<overbias percent>/<wait minutes>", e.g. "15/5" to
// overbias by 15% for 5 minutes. An empty string or "None" means no pre-bias
// and yields nil. The wait is truncated to whole seconds.
func ParsePreBias(s string) (*PreBias, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q, expected <overbias %%>/<wait minutes>", ErrInvalidPreBias, s)
	}

	percent, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: overbias percent %q: %v", ErrInvalidPreBias, parts[0], err)
	}
	minutes, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: wait minutes %q: %v", ErrInvalidPreBias, parts[1], err)
	}
	if minutes < 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return nil, fmt.Errorf("%w: wait minutes must be non-negative, got %g", ErrInvalidPreBias, minutes)
	}
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return nil, fmt.Errorf("%w: overbias percent must be finite", ErrInvalidPreBias)
	}

	return &PreBias{
		Percent: percent,
		Wait:    time.Duration(int64(60.0*minutes)) * time.Second,
	}, nil
}

// OverbiasTarget returns end*(1+percent/100) rounded to 2 decimals.
func OverbiasTarget(end, percent float64) float64 {
	return Round((1.0+percent/100.)*end, 2)
}

// Run ramps from r.Start to r.End. With a pre-bias it ramps to the overbias
// target instead, waits pb.Wait, and ramps from there down to r.End. The first
// failing ramp aborts the sequence.
func Run(s *Stepper, r Request, pb *PreBias) error {
	if pb == nil {
		logrus.Infof("set HV = %g V", r.End)
		return s.Ramp(r)
	}

	over := OverbiasTarget(r.End, pb.Percent)
	logrus.WithFields(logrus.Fields{
		"percent": pb.Percent,
		"wait":    pb.Wait,
		"target":  over,
	}).Infof("pre-biasing by %g%% for %g minutes", pb.Percent, pb.Wait.Minutes())

	up := r
	up.End = over
	if err := s.Ramp(up); err != nil {
		return fmt.Errorf("failed to ramp to pre-bias HV %g V: %w", over, err)
	}

	logrus.Infof("waiting %s at pre-bias HV", pb.Wait)
	s.clock().Sleep(pb.Wait)

	down := r
	down.Start = over
	logrus.Infof("set HV = %g V", r.End)
	if err := s.Ramp(down); err != nil {
		return fmt.Errorf("failed to ramp down from pre-bias HV %g V: %w", over, err)
	}

	return nil
}
