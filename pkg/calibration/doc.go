// Package calibration holds the HV calibration lookup used by the ramp
// controller. It contains:
//
//   - Table: the ordered (DCRC setting, HV output) pairs read from a
//     tab-separated calibration file
//   - Load/Parse: the file loader, which discards the header line
//   - Interpolate: the piecewise-linear mapping from a desired HV output to
//     the DCRC charge bias setting that produces it
//
// A Table is read-only once loaded and is owned by a single ramp command.
package calibration
