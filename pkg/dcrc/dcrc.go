// Package dcrc controls DCRC detector readout boards through the ODB.
package dcrc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

const (
	// HVPowerOnValue is written to charge bias index 1 to switch the HV
	// supply on.
	HVPowerOnValue = "10"
	// HVPowerOffValue switches the HV supply off.
	HVPowerOffValue = "0"
	// HVPowerSettle is the wait after switching the HV supply.
	HVPowerSettle = 5 * time.Second
)

// ErrInvalidPowerState is returned by ParsePowerState.
var ErrInvalidPowerState = errors.New("invalid power supply state")

// Board is a single DCRC.
type Board struct {
	Client    odb.Client
	Equipment string
	Number    int
	Clock     ramp.Clock
}

var _ ramp.Applier = &Board{}

// New returns a board under the given equipment settings root.
func New(client odb.Client, equipment string, number int, clock ramp.Clock) *Board {
	if equipment == "" {
		equipment = odb.DefaultEquipment
	}
	if clock == nil {
		clock = ramp.RealClock
	}
	return &Board{
		Client:    client,
		Equipment: equipment,
		Number:    number,
		Clock:     clock,
	}
}

func (b *Board) String() string {
	return "DCRC" + strconv.Itoa(b.Number)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b *Board) write(path, value string) error {
	if err := b.Client.Write(path, value); err != nil {
		return fmt.Errorf("%s: %w", b, err)
	}
	return nil
}

// SetChargeBias writes the Qi charge bias (index 0) which scales the HV
// supply output.
func (b *Board) SetChargeBias(v float64) error {
	logrus.WithFields(logrus.Fields{
		"dcrc": b.Number,
		"bias": v,
	}).Trace("SetChargeBias called")

	return b.write(odb.ChargeBiasPath(b.Equipment, b.Number, 0), formatFloat(v))
}

// ApplySetting sets the charge bias. It lets a Board drive a ramp.
func (b *Board) ApplySetting(setting float64) error {
	return b.SetChargeBias(setting)
}

// SetQBias writes one element of the charge bias array.
func (b *Board) SetQBias(index int, v float64) error {
	logrus.WithFields(logrus.Fields{
		"dcrc":  b.Number,
		"index": index,
		"bias":  v,
	}).Trace("SetQBias called")

	return b.write(odb.ChargeBiasPath(b.Equipment, b.Number, index), formatFloat(v))
}

// QBiasOff sets both charge bias outputs to 0.
func (b *Board) QBiasOff() error {
	for i := 0; i < 2; i++ {
		if err := b.write(odb.ChargeBiasPath(b.Equipment, b.Number, i), "0"); err != nil {
			return err
		}
	}
	return nil
}

// SetHVPower switches the HV power supply and waits for it to settle.
func (b *Board) SetHVPower(on bool) error {
	value := HVPowerOffValue
	state := "OFF"
	if on {
		value = HVPowerOnValue
		state = "ON"
	}
	logrus.WithField("dcrc", b.Number).Infof("turn HV power supply %s", state)

	if err := b.write(odb.ChargeBiasPath(b.Equipment, b.Number, 1), value); err != nil {
		return err
	}
	b.Clock.Sleep(HVPowerSettle)

	return nil
}

// ParsePowerState accepts "on", "off", "1" and "0".
func ParsePowerState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1":
		return true, nil
	case "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q, expected on or off", ErrInvalidPowerState, s)
}
