// Package flash runs the LED flash and cooldown sequence used between data
// series to neutralize the detectors.
package flash

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

const (
	DefaultDuration = 30 * time.Second
	DefaultCooldown = 30 * time.Minute
)

// Settings describes one flash.
type Settings struct {
	// Duration is how long the LEDs stay on.
	Duration time.Duration
	// Cooldown is the wait after the LEDs are switched off.
	Cooldown time.Duration
}

// Run flashes the LEDs of all boards and waits for the cooldown. The 15V
// power state of every board is saved first and restored after the flash.
//
// If switching the LEDs on fails, hvctl still tries to switch them off and
// restore the 15V power before returning the error.
func Run(boards []*dcrc.Board, s Settings, clock ramp.Clock) error {
	if clock == nil {
		clock = ramp.RealClock
	}

	saved := make([]string, len(boards))
	for i, b := range boards {
		state, err := b.Get15VPower()
		if err != nil {
			return fmt.Errorf("failed to save 15V power state: %w", err)
		}
		saved[i] = state
	}

	restore := func() error {
		for i, b := range boards {
			if err := b.Set15VPower(saved[i]); err != nil {
				return fmt.Errorf("failed to restore 15V power state: %w", err)
			}
		}
		return nil
	}

	for _, b := range boards {
		if err := b.Enable15VPower(); err != nil {
			return fmt.Errorf("failed to enable 15V power: %w", err)
		}
	}

	logrus.WithField("boards", boards).Info("flashing LEDs")
	if err := setLEDs(boards, true); err != nil {
		if offErr := setLEDs(boards, false); offErr != nil {
			logrus.WithError(offErr).Error("failed to switch LEDs off after a failed flash")
		}
		if rErr := restore(); rErr != nil {
			logrus.WithError(rErr).Error("failed to restore 15V power after a failed flash")
		}
		return fmt.Errorf("failed to enable LEDs: %w", err)
	}

	logrus.Infof("wait %s", s.Duration)
	clock.Sleep(s.Duration)

	if err := setLEDs(boards, false); err != nil {
		return fmt.Errorf("failed to disable LEDs: %w", err)
	}
	if err := restore(); err != nil {
		return err
	}

	logrus.Infof("cooldown %s", s.Cooldown)
	clock.Sleep(s.Cooldown)

	return nil
}

func setLEDs(boards []*dcrc.Board, on bool) error {
	for _, b := range boards {
		if err := b.EnableLEDs(on); err != nil {
			return err
		}
	}
	return nil
}
