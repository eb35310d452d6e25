// Package odb talks to the MIDAS online database (ODB). Paths are
// hierarchical keys such as "/Equipment/Tower01/Settings/DCRC1/Charge/Bias (V)[0]".
package odb

import "errors"

// ErrControlSystem is returned when a read, write or run control command
// fails. Failures are not retried.
var ErrControlSystem = errors.New("control system command failed")

// Client is the small read/write/run-control surface hvctl needs.
type Client interface {
	Write(path, value string) error
	Read(path string) (string, error)
	StartRun() error
	StopRun() error
}
