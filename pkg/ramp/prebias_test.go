package ramp

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/cdmslab/hvctl/pkg/calibration"
)

func TestParsePreBias(t *testing.T) {
	tests := []struct {
		in      string
		want    *PreBias
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "None", want: nil},
		{in: "15/5", want: &PreBias{Percent: 15, Wait: 5 * time.Minute}},
		{in: " 10 / 0.5 ", want: &PreBias{Percent: 10, Wait: 30 * time.Second}},
		{in: "20/0.0125", want: &PreBias{Percent: 20, Wait: 0}},
		{in: "5/1.01", want: &PreBias{Percent: 5, Wait: 60 * time.Second}},
		{in: "15", wantErr: true},
		{in: "15/5/1", wantErr: true},
		{in: "x/5", wantErr: true},
		{in: "15/y", wantErr: true},
		{in: "15/-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePreBias(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPreBias) {
					t.Fatalf("ParsePreBias(%q) error = %v, want ErrInvalidPreBias", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePreBias(%q) unexpected error: %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePreBias(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOverbiasTarget(t *testing.T) {
	tests := []struct {
		end, percent, want float64
	}{
		{45.0, 15, 51.75},
		{30.0, 10, 33.0},
		{12.34, 0, 12.34},
		{-20.0, 15, -23.0},
	}
	for _, tt := range tests {
		if got := OverbiasTarget(tt.end, tt.percent); got != tt.want {
			t.Errorf("OverbiasTarget(%v, %v) = %v, want %v", tt.end, tt.percent, got, tt.want)
		}
	}
}

func TestRun_WithoutPreBias(t *testing.T) {
	s, _, clk, hvs := newTestStepper(tenToOne())

	err := Run(s, Request{Start: 0, End: 3, Rate: 1, Period: time.Second}, nil)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if want := []float64{1, 2, 3}; !reflect.DeepEqual(*hvs, want) {
		t.Errorf("HVs = %v, want %v", *hvs, want)
	}
	if clk.Elapsed() != 3*time.Second {
		t.Errorf("elapsed %s, want 3s", clk.Elapsed())
	}
}

func TestRun_WithPreBias(t *testing.T) {
	s, _, clk, hvs := newTestStepper(tenToOne())
	pb := &PreBias{Percent: 15, Wait: 5 * time.Minute}

	err := Run(s, Request{Start: 0, End: 45, Rate: 10, Period: time.Second}, pb)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	want := []float64{10, 20, 30, 40, 50, 51.75, 45}
	if !reflect.DeepEqual(*hvs, want) {
		t.Errorf("HVs = %v, want %v", *hvs, want)
	}

	wantSleeps := []time.Duration{
		time.Second, time.Second, time.Second, time.Second, time.Second, time.Second,
		5 * time.Minute,
		time.Second,
	}
	if got := clk.Sleeps(); !reflect.DeepEqual(got, wantSleeps) {
		t.Errorf("sleeps = %v, want %v", got, wantSleeps)
	}
}

func TestRun_PreBiasAbortsOnFirstRampFailure(t *testing.T) {
	table := calibration.NewTable([]calibration.Entry{
		{Setting: 0, Voltage: 0},
		{Setting: 5, Voltage: 50},
	})
	s, _, clk, hvs := newTestStepper(table)
	pb := &PreBias{Percent: 15, Wait: 5 * time.Minute}

	err := Run(s, Request{Start: 0, End: 45, Rate: 10, Period: time.Second}, pb)
	if !errors.Is(err, calibration.ErrOutOfRange) {
		t.Fatalf("Run() error = %v, want ErrOutOfRange", err)
	}
	if want := []float64{10, 20, 30, 40, 50}; !reflect.DeepEqual(*hvs, want) {
		t.Errorf("HVs = %v, want %v", *hvs, want)
	}
	for _, d := range clk.Sleeps() {
		if d == pb.Wait {
			t.Error("pre-bias wait must not run after a failed ramp")
		}
	}
}
