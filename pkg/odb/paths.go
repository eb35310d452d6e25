package odb

import (
	"fmt"
	"strings"
)

// DefaultEquipment is the settings root of the tower the DCRCs belong to.
const DefaultEquipment = "/Equipment/Tower01/Settings"

const (
	LoggerWriteDataPath   = "/Logger/Write data"
	LoggerRunDurationPath = "/Logger/Run duration"
	SeriesDurationPath    = "/Seriesinfo/Duration (s)"
)

// LED settings keys under DCRC<n>/LED.
const (
	LEDEnable15VPower = "Enable15VPower"
	LEDEnable1        = "EnableLED1"
	LEDEnable2        = "EnableLED2"
	LEDPulseWidth     = "LEDPulseWidth (us)"
	LEDRepRate        = "LEDRepRate (us)"
	LED1Current       = "LED1Current (mA)"
	LED2Current       = "LED2Current (mA)"
)

// DCRCPath returns the settings directory of a DCRC board.
func DCRCPath(equipment string, dcrc int) string {
	return fmt.Sprintf("%s/DCRC%d", strings.TrimRight(equipment, "/"), dcrc)
}

// ChargeBiasPath returns the path of one element of the charge bias array.
// Index 0 is the Qi bias that drives the HV control circuit, index 1 is the
// second charge bias output, which also switches the HV supply.
func ChargeBiasPath(equipment string, dcrc, index int) string {
	return fmt.Sprintf("%s/Charge/Bias (V)[%d]", DCRCPath(equipment, dcrc), index)
}

// LEDPath returns the path of an LED setting of a DCRC board.
func LEDPath(equipment string, dcrc int, key string) string {
	return DCRCPath(equipment, dcrc) + "/LED/" + key
}

// Bool formats a boolean the way the ODB expects it.
func Bool(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
