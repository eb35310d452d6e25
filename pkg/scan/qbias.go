package scan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/dcrc"
	"github.com/cdmslab/hvctl/pkg/flash"
	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

// QBiasPair is the charge bias of both detector sides for one series.
type QBiasPair struct {
	Side1 float64
	Side2 float64
}

var (
	qbiasPairRe = regexp.MustCompile(`\(\s*([+-]?\d*\.?\d+)\s*/\s*([+-]?\d*\.?\d+)\s*\)`)
	sidesRe     = regexp.MustCompile(`^\s*(\d+)\s*/\s*(\d+)\s*$`)
	separators  = strings.NewReplacer(",", "", " ", "", "\t", "")
)

// ParseQBiasPairs parses "(V1/V2),(V1/V2),..." e.g. "(0/0),(5/-5),(10/-10)".
func ParseQBiasPairs(s string) ([]QBiasPair, error) {
	matches := qbiasPairRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no (side1/side2) bias pairs in %q", ErrInvalidScan, s)
	}
	if rest := separators.Replace(qbiasPairRe.ReplaceAllString(s, "")); rest != "" {
		return nil, fmt.Errorf("%w: unexpected %q in bias pairs %q", ErrInvalidScan, rest, s)
	}

	pairs := make([]QBiasPair, 0, len(matches))
	for _, m := range matches {
		v1, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidScan, m[0], err)
		}
		v2, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidScan, m[0], err)
		}
		pairs = append(pairs, QBiasPair{Side1: v1, Side2: v2})
	}
	return pairs, nil
}

// ParseSides parses "<side1 DCRC>/<side2 DCRC>", e.g. "3/1".
func ParseSides(s string) (side1, side2 int, err error) {
	m := sidesRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: DCRC sides %q, expected <side1>/<side2>", ErrInvalidScan, s)
	}
	side1, _ = strconv.Atoi(m[1])
	side2, _ = strconv.Atoi(m[2])
	return side1, side2, nil
}

// QScan takes one data series per pair of charge biases.
type QScan struct {
	Client odb.Client
	Side1  *dcrc.Board
	Side2  *dcrc.Board

	Pairs []QBiasPair

	SeriesDuration time.Duration
	SubSeries      int

	FlashBoards []*dcrc.Board
	Flash       flash.Settings

	ContinueOnError bool
	StartAt         string

	// ID tags the log entries of one scan. Run generates one when empty.
	ID string

	Clock ramp.Clock
}

func (s *QScan) clock() ramp.Clock {
	if s.Clock == nil {
		return ramp.RealClock
	}
	return s.Clock
}

func (s *QScan) subSeries() int {
	if s.SubSeries < 1 {
		return 1
	}
	return s.SubSeries
}

// Validate checks the scan before any hardware is touched.
func (s *QScan) Validate() error {
	if len(s.Pairs) == 0 {
		return fmt.Errorf("%w: no charge bias pairs", ErrInvalidScan)
	}
	if s.Client == nil || s.Side1 == nil || s.Side2 == nil {
		return fmt.Errorf("%w: control system and both side DCRCs are required", ErrInvalidScan)
	}
	if s.SeriesDuration <= 0 {
		return fmt.Errorf("%w: series duration must be positive, got %s", ErrInvalidScan, s.SeriesDuration)
	}
	if len(s.FlashBoards) == 0 {
		return fmt.Errorf("%w: no DCRCs to flash", ErrInvalidScan)
	}
	return nil
}

// Run executes the scan with the same error policy as HVScan.Run.
func (s *QScan) Run() error {
	if err := s.Validate(); err != nil {
		return err
	}
	clk := s.clock()

	if s.StartAt != "" {
		if err := WaitForStart(s.StartAt, clk); err != nil {
			return err
		}
	}

	if s.ID == "" {
		s.ID = xid.New().String()
	}
	logrus.WithFields(logrus.Fields{
		"scan":  s.ID,
		"side1": s.Side1.Number,
		"side2": s.Side2.Number,
		"pairs": s.Pairs,
	}).Info("Qbias scan")

	d := SubSeriesDuration(s.SeriesDuration, s.subSeries())
	if err := startLogging(s.Client, d); err != nil {
		return fmt.Errorf("failed to enable data logging: %w", err)
	}

	var errs []error
	for i, p := range s.Pairs {
		acq := &acquisition{client: s.Client, clock: clk, subSeries: s.subSeries(), duration: d}
		err := s.series(i, p, acq, clk)
		if err == nil {
			continue
		}

		err = fmt.Errorf("series %d/%d at %g/%g V: %w", i+1, len(s.Pairs), p.Side1, p.Side2, err)
		if !s.ContinueOnError {
			return finish(s.Client, []error{err})
		}

		logrus.WithError(err).WithField("scan", s.ID).Error("series failed, continuing with the next one")
		errs = append(errs, err)
		acq.stopIfRunning()
		if err := s.biasOff(); err != nil {
			logrus.WithError(err).Error("failed to set charge bias back to 0 V")
		}
	}

	return finish(s.Client, errs)
}

func (s *QScan) setBias(p QBiasPair) error {
	for _, w := range []struct {
		board *dcrc.Board
		v     float64
	}{{s.Side1, p.Side1}, {s.Side2, p.Side2}} {
		for i := 0; i < 2; i++ {
			if err := w.board.SetQBias(i, w.v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *QScan) biasOff() error {
	if err := s.Side1.QBiasOff(); err != nil {
		return err
	}
	return s.Side2.QBiasOff()
}

func (s *QScan) series(i int, p QBiasPair, acq *acquisition, clk ramp.Clock) error {
	logrus.Infof("set Qbias %g V / %g V", p.Side1, p.Side2)
	if err := s.setBias(p); err != nil {
		return err
	}

	logrus.Infof("take data, set %d/%d", i+1, len(s.Pairs))
	if err := writeSeriesDuration(s.Client, acq.duration); err != nil {
		return err
	}
	if err := acq.take(nil); err != nil {
		return err
	}

	if err := s.biasOff(); err != nil {
		return err
	}

	logrus.Info("flash and cooldown")
	return flash.Run(s.FlashBoards, s.Flash, clk)
}
