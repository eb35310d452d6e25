package ramp

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/cdmslab/hvctl/pkg/calibration"
)

type recordingApplier struct {
	settings []float64
	failAt   int
	err      error
}

func (a *recordingApplier) ApplySetting(setting float64) error {
	if a.err != nil && len(a.settings) == a.failAt {
		return a.err
	}
	a.settings = append(a.settings, setting)
	return nil
}

// tenToOne maps HV to setting = HV/10 over [0, 100] V.
func tenToOne() *calibration.Table {
	return calibration.NewTable([]calibration.Entry{
		{Setting: 0, Voltage: 0},
		{Setting: 10, Voltage: 100},
	})
}

func newTestStepper(table Interpolator) (*Stepper, *recordingApplier, *FakeClock, *[]float64) {
	app := &recordingApplier{}
	clk := NewFakeClock(time.Unix(0, 0))
	var hvs []float64
	s := &Stepper{
		Table:   table,
		Applier: app,
		Clock:   clk,
		OnStep: func(st Step) {
			hvs = append(hvs, st.Voltage)
		},
	}
	return s, app, clk, &hvs
}

func TestStepper_Ramp(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantHVs  []float64
		wantSets []float64
	}{
		{
			name:     "up in whole steps",
			req:      Request{Start: 0, End: 3, Rate: 1, Period: time.Second},
			wantHVs:  []float64{1, 2, 3},
			wantSets: []float64{0.1, 0.2, 0.3},
		},
		{
			name:     "down in whole steps",
			req:      Request{Start: 3, End: 0, Rate: 1, Period: time.Second},
			wantHVs:  []float64{2, 1, 0},
			wantSets: []float64{0.2, 0.1, 0},
		},
		{
			name:     "final step snaps to end",
			req:      Request{Start: 0, End: 2.5, Rate: 1, Period: time.Second},
			wantHVs:  []float64{1, 2, 2.5},
			wantSets: []float64{0.1, 0.2, 0.25},
		},
		{
			name:     "increment scales with period",
			req:      Request{Start: 10, End: 4, Rate: 0.5, Period: 4 * time.Second},
			wantHVs:  []float64{8, 6, 4},
			wantSets: []float64{0.8, 0.6, 0.4},
		},
		{
			name:     "step smaller than increment",
			req:      Request{Start: 45, End: 45.25, Rate: 1, Period: time.Second},
			wantHVs:  []float64{45.25},
			wantSets: []float64{4.525},
		},
		{
			name:     "nothing to do",
			req:      Request{Start: 7, End: 7, Rate: 1, Period: time.Second},
			wantHVs:  nil,
			wantSets: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, app, clk, hvs := newTestStepper(tenToOne())

			if err := s.Ramp(tt.req); err != nil {
				t.Fatalf("Ramp() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(*hvs, tt.wantHVs) {
				t.Errorf("HVs = %v, want %v", *hvs, tt.wantHVs)
			}
			if len(app.settings) != len(tt.wantSets) {
				t.Fatalf("settings = %v, want %v", app.settings, tt.wantSets)
			}
			for i := range tt.wantSets {
				if math.Abs(app.settings[i]-tt.wantSets[i]) > 1e-12 {
					t.Errorf("setting %d = %v, want %v", i, app.settings[i], tt.wantSets[i])
				}
			}

			sleeps := clk.Sleeps()
			if len(sleeps) != len(tt.wantHVs) {
				t.Fatalf("got %d sleeps, want %d", len(sleeps), len(tt.wantHVs))
			}
			for _, d := range sleeps {
				if d != tt.req.Period {
					t.Errorf("slept %s, want %s", d, tt.req.Period)
				}
			}
		})
	}
}

func TestStepper_RampRoundsSettings(t *testing.T) {
	table := calibration.NewTable([]calibration.Entry{
		{Setting: 0, Voltage: 0},
		{Setting: 1, Voltage: 3},
	})
	s, app, _, _ := newTestStepper(table)

	if err := s.Ramp(Request{Start: 0, End: 2, Rate: 1, Period: time.Second}); err != nil {
		t.Fatalf("Ramp() unexpected error: %v", err)
	}

	want := []float64{0.333, 0.667}
	if !reflect.DeepEqual(app.settings, want) {
		t.Errorf("settings = %v, want %v", app.settings, want)
	}
}

func TestStepper_RampOutOfRangeAborts(t *testing.T) {
	table := calibration.NewTable([]calibration.Entry{
		{Setting: 0, Voltage: 0},
		{Setting: 2, Voltage: 20},
	})
	s, app, clk, _ := newTestStepper(table)

	err := s.Ramp(Request{Start: 0, End: 30, Rate: 5, Period: time.Second})
	if !errors.Is(err, calibration.ErrOutOfRange) {
		t.Fatalf("Ramp() error = %v, want ErrOutOfRange", err)
	}
	if len(app.settings) != 4 {
		t.Errorf("applied %d settings before aborting, want 4", len(app.settings))
	}
	if len(clk.Sleeps()) != 4 {
		t.Errorf("slept %d times, want 4", len(clk.Sleeps()))
	}
}

func TestStepper_RampApplyErrorAborts(t *testing.T) {
	s, app, clk, _ := newTestStepper(tenToOne())
	writeErr := errors.New("odbedit exited with status 1")
	app.failAt = 1
	app.err = writeErr

	err := s.Ramp(Request{Start: 0, End: 5, Rate: 1, Period: time.Second})
	if !errors.Is(err, writeErr) {
		t.Fatalf("Ramp() error = %v, want %v", err, writeErr)
	}
	if len(app.settings) != 1 || len(clk.Sleeps()) != 1 {
		t.Errorf("applied %d settings and slept %d times, want 1 and 1", len(app.settings), len(clk.Sleeps()))
	}
}

func TestStepper_RampInvalid(t *testing.T) {
	tests := []Request{
		{Start: 0, End: 1, Rate: 0, Period: time.Second},
		{Start: 0, End: 1, Rate: -1, Period: time.Second},
		{Start: 0, End: 1, Rate: math.NaN(), Period: time.Second},
		{Start: 0, End: 1, Rate: 1, Period: 0},
		{Start: 0, End: math.Inf(1), Rate: 1, Period: time.Second},
		{Start: 1e20, End: 0, Rate: 1e-6, Period: time.Second},
	}

	for _, req := range tests {
		s, app, _, _ := newTestStepper(tenToOne())
		if err := s.Ramp(req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Ramp(%+v) error = %v, want ErrInvalidRequest", req, err)
		}
		if len(app.settings) != 0 {
			t.Errorf("Ramp(%+v) applied settings on an invalid request", req)
		}
	}
}

func TestRequest_Validate(t *testing.T) {
	if err := (Request{Start: 0, End: 1, Rate: 1, Period: time.Second}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	err := (Request{Start: 0, End: 1, Rate: 1, Period: 500 * time.Millisecond}).Validate()
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
	}
}

func TestPlan_TerminatesAtEnd(t *testing.T) {
	starts := []float64{0, -12.5, 3.3, 100, 45}
	ends := []float64{0, 45, -7.1, 51.75, 99.99}
	rates := []float64{0.1, 0.7, 1, 2.5, 33}
	periods := []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

	for _, start := range starts {
		for _, end := range ends {
			for _, rate := range rates {
				for _, period := range periods {
					req := Request{Start: start, End: end, Rate: rate, Period: period}
					hvs, err := Plan(req)
					if err != nil {
						t.Fatalf("Plan(%+v) unexpected error: %v", req, err)
					}

					if start == end {
						if len(hvs) != 0 {
							t.Errorf("Plan(%+v) = %v, want no steps", req, hvs)
						}
						continue
					}

					maxSteps := int(math.Ceil(math.Abs(end-start)/req.Increment())) + 1
					if len(hvs) == 0 || len(hvs) > maxSteps {
						t.Fatalf("Plan(%+v) took %d steps, want 1..%d", req, len(hvs), maxSteps)
					}
					if last := hvs[len(hvs)-1]; last != end {
						t.Errorf("Plan(%+v) ended at %v, want exactly %v", req, last, end)
					}

					prev := start
					for i, hv := range hvs[:len(hvs)-1] {
						if d := math.Abs(hv - prev); math.Abs(d-req.Increment()) > 1e-9 {
							t.Errorf("Plan(%+v) step %d moved %v, want %v", req, i, d, req.Increment())
						}
						if math.Abs(end-hv) >= math.Abs(end-prev) {
							t.Errorf("Plan(%+v) step %d did not move toward end", req, i)
						}
						prev = hv
					}
				}
			}
		}
	}
}

func TestPlan_ExactIncrement(t *testing.T) {
	hvs, err := Plan(Request{Start: 0, End: 10, Rate: 0.5, Period: 4 * time.Second})
	if err != nil {
		t.Fatalf("Plan() unexpected error: %v", err)
	}
	want := []float64{2, 4, 6, 8, 10}
	if !reflect.DeepEqual(hvs, want) {
		t.Errorf("Plan() = %v, want %v", hvs, want)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		x        float64
		decimals int
		want     float64
	}{
		{1.23456, 3, 1.235},
		{-1.23449, 3, -1.234},
		{0.0004, 3, 0},
		{51.749999999999993, 2, 51.75},
		{7, 0, 7},
		{-0.0004, 3, 0},
		{math.Copysign(0, -1), 3, 0},
	}
	for _, tt := range tests {
		got := Round(tt.x, tt.decimals)
		if got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.x, tt.decimals, got, tt.want)
		}
		if got == 0 && math.Signbit(got) {
			t.Errorf("Round(%v, %d) returned negative zero", tt.x, tt.decimals)
		}
	}
}
