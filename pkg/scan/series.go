// Package scan orchestrates multi-series data taking: set a bias, take one or
// more MIDAS runs, return the bias to zero, flash the detectors and cool down.
package scan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

// ErrInvalidScan is returned for scan definitions that cannot run.
var ErrInvalidScan = errors.New("invalid scan")

// SeriesDuration converts a series length in minutes to whole seconds.
func SeriesDuration(minutes float64) time.Duration {
	return time.Duration(math.Round(minutes*60)) * time.Second
}

// SubSeriesDuration splits a series into n runs of whole seconds each.
func SubSeriesDuration(series time.Duration, n int) time.Duration {
	if n <= 1 {
		return series
	}
	return time.Duration(math.Round(series.Seconds()/float64(n))) * time.Second
}

// ParseVoltages parses a comma-separated list of voltages.
func ParseVoltages(s string) ([]float64, error) {
	var vs []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: voltage %q: %v", ErrInvalidScan, f, err)
		}
		vs = append(vs, v)
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no voltages in %q", ErrInvalidScan, s)
	}
	return vs, nil
}

// ParseBoards parses a comma-separated list of DCRC numbers.
func ParseBoards(s string) ([]int, error) {
	var ns []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: DCRC number %q", ErrInvalidScan, f)
		}
		ns = append(ns, n)
	}
	if len(ns) == 0 {
		return nil, fmt.Errorf("%w: no DCRC numbers in %q", ErrInvalidScan, s)
	}
	return ns, nil
}

// acquisition takes the runs of one series.
type acquisition struct {
	client    odb.Client
	clock     ramp.Clock
	subSeries int
	duration  time.Duration
	// running is true between a successful StartRun and StopRun.
	running bool
}

// take starts and stops subSeries runs. During each run it calls during, or
// sleeps for the sub-series duration when during is nil.
func (a *acquisition) take(during func(d time.Duration) error) error {
	for i := 0; i < a.subSeries; i++ {
		log := logrus.WithField("duration", a.duration)
		if a.subSeries > 1 {
			log = log.WithField("subSeries", fmt.Sprintf("%d/%d", i+1, a.subSeries))
		}

		log.Info("start run")
		if err := a.client.StartRun(); err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}
		a.running = true

		if during == nil {
			log.Infof("waiting %s", a.duration)
			a.clock.Sleep(a.duration)
		} else if err := during(a.duration); err != nil {
			return err
		}

		log.Info("stop run")
		if err := a.client.StopRun(); err != nil {
			return fmt.Errorf("failed to stop run: %w", err)
		}
		a.running = false
	}
	return nil
}

// stopIfRunning is the best-effort cleanup after a failed series.
func (a *acquisition) stopIfRunning() {
	if !a.running {
		return
	}
	if err := a.client.StopRun(); err != nil {
		logrus.WithError(err).Error("failed to stop run after a failed series")
		return
	}
	a.running = false
}

// startLogging enables the data logger. A zero run duration lets runs last
// until they are stopped.
func startLogging(client odb.Client, runDuration time.Duration) error {
	if err := client.Write(odb.LoggerWriteDataPath, odb.Bool(true)); err != nil {
		return err
	}
	return client.Write(odb.LoggerRunDurationPath, strconv.Itoa(int(runDuration.Seconds())))
}

// stopLogging restores the data logger to its normal setting.
func stopLogging(client odb.Client) error {
	logrus.Info("restore normal settings")
	return client.Write(odb.LoggerWriteDataPath, odb.Bool(false))
}

func writeSeriesDuration(client odb.Client, d time.Duration) error {
	return client.Write(odb.SeriesDurationPath, strconv.Itoa(int(d.Seconds())))
}

// finish restores logging and combines it with the scan errors.
func finish(client odb.Client, errs []error) error {
	if err := stopLogging(client); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore logger settings: %w", err))
	}
	return errors.Join(errs...)
}
