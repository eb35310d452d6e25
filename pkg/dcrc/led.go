package dcrc

import (
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/odb"
)

// Get15VPower returns the raw 15V power enable state.
func (b *Board) Get15VPower() (string, error) {
	v, err := b.Client.Read(odb.LEDPath(b.Equipment, b.Number, odb.LEDEnable15VPower))
	if err != nil {
		return "", err
	}
	logrus.Tracef("%s Get15VPower returned %s", b, v)
	return v, nil
}

// Set15VPower restores a raw 15V power enable state.
func (b *Board) Set15VPower(state string) error {
	return b.write(odb.LEDPath(b.Equipment, b.Number, odb.LEDEnable15VPower), state)
}

// Enable15VPower turns the 15V LED power on.
func (b *Board) Enable15VPower() error {
	return b.Set15VPower(odb.Bool(true))
}

// EnableLEDs switches both LEDs.
func (b *Board) EnableLEDs(on bool) error {
	logrus.Tracef("%s EnableLEDs(%t) called", b, on)

	state := odb.Bool(on)
	if err := b.write(odb.LEDPath(b.Equipment, b.Number, odb.LEDEnable1), state); err != nil {
		return err
	}
	return b.write(odb.LEDPath(b.Equipment, b.Number, odb.LEDEnable2), state)
}

// LEDSetup holds the LED pulse parameters.
type LEDSetup struct {
	CurrentMA    float64
	PulseWidthUS float64
	RepRateUS    float64
}

// SetupLEDs writes pulse width, repetition rate and current of both LEDs.
func (b *Board) SetupLEDs(s LEDSetup) error {
	writes := []struct {
		key   string
		value float64
	}{
		{odb.LEDPulseWidth, s.PulseWidthUS},
		{odb.LEDRepRate, s.RepRateUS},
		{odb.LED1Current, s.CurrentMA},
		{odb.LED2Current, s.CurrentMA},
	}
	for _, w := range writes {
		if err := b.write(odb.LEDPath(b.Equipment, b.Number, w.key), formatFloat(w.value)); err != nil {
			return err
		}
	}
	return nil
}
