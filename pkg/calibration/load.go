package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type loadOptions struct {
	allowUnordered bool
}

// LoadOption customizes Load and Parse.
type LoadOption func(*loadOptions)

// WithUnorderedAllowed skips the monotonicity check. Interpolation over an
// unordered table is best-effort: the first bracketing pair wins.
func WithUnorderedAllowed() LoadOption {
	return func(o *loadOptions) {
		o.allowUnordered = true
	}
}

// Load reads a calibration table from a file.
func Load(path string, opts ...LoadOption) (*Table, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open calibration file %s", path)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	return Parse(fp, path, opts...)
}

// Parse reads a calibration table from r. The first line is a header and is
// skipped. Every following line must hold at least two tab-separated finite
// floats: the DCRC setting and the resulting HV. Blank lines are only allowed
// at the end of the file.
func Parse(r io.Reader, source string, opts ...LoadOption) (*Table, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	blankLine := 0
	var entries []Entry

	for sc.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if blankLine == 0 {
				blankLine = lineNo
			}
			continue
		}
		if blankLine != 0 {
			return nil, fmt.Errorf("%w: %s line %d: blank line inside the table", ErrMalformedCalibrationFile, source, blankLine)
		}

		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d %q: %v", ErrMalformedCalibrationFile, source, lineNo, line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedCalibrationFile, source, lineNo+1, err)
		}
		return nil, pkgerrors.Wrapf(err, "failed to read calibration file %s", source)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no calibration entries", ErrMalformedCalibrationFile, source)
	}

	t := &Table{entries: entries, source: source}
	if !t.Monotonic() {
		if !o.allowUnordered {
			return nil, fmt.Errorf("%w: %s", ErrUnorderedCalibrationTable, source)
		}
		logrus.WithField("file", source).Warn("calibration table is not monotonic in HV, interpolation may be wrong")
	}

	lo, hi := t.Range()
	logrus.WithFields(logrus.Fields{
		"file":    source,
		"entries": len(entries),
		"minHV":   lo,
		"maxHV":   hi,
	}).Debug("calibration table loaded")

	return t, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return Entry{}, fmt.Errorf("expected 2 tab-separated fields, got %d", len(fields))
	}

	setting, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid setting: %v", err)
	}
	hv, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid voltage: %v", err)
	}
	if !finite(setting) || !finite(hv) {
		return Entry{}, fmt.Errorf("setting and voltage must be finite, got %g and %g", setting, hv)
	}

	return Entry{Setting: setting, Voltage: hv}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
