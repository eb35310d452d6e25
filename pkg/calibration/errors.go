package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCalibrationFile is returned when a calibration line cannot
	// be parsed as two floats.
	ErrMalformedCalibrationFile = errors.New("malformed calibration file")

	// ErrUnorderedCalibrationTable is returned when the HV column is not
	// strictly increasing or strictly decreasing.
	ErrUnorderedCalibrationTable = errors.New("unordered calibration table")

	// ErrOutOfRange is returned when a requested HV has no bracketing entries.
	ErrOutOfRange = errors.New("voltage outside calibration range")
)

// OutOfRangeError carries the voltage that could not be interpolated and the
// range the table covers.
type OutOfRangeError struct {
	Voltage float64
	Min     float64
	Max     float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %g V is not within [%g V, %g V]", ErrOutOfRange, e.Voltage, e.Min, e.Max)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }
