package calibration

import (
	"bufio"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	in := "DCRC QI (V)\tHV (V)\n0.0\t0.0\n1.0\t10.0\n2.0\t20.0\n"

	table, err := Parse(strings.NewReader(in), "test")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	want := []Entry{{0, 0}, {1, 10}, {2, 20}}
	got := table.Entries()
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParse_HeaderIsNotValidated(t *testing.T) {
	in := "1.5\t2.5\n0\t0\n1\t10\n"

	table, err := Parse(strings.NewReader(in), "test")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("got %d entries, want 2 (header skipped)", table.Len())
	}
}

func TestParse_ToleratesCRLFAndExtraColumns(t *testing.T) {
	in := "set\thv\r\n0\t0\tnote\r\n1\t10\r\n\r\n"

	table, err := Parse(strings.NewReader(in), "test")
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("got %d entries, want 2", table.Len())
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantLine string
	}{
		{name: "single field", in: "h\n0\t0\n1.0\n", wantLine: "line 3"},
		{name: "space separated", in: "h\n0 0\n", wantLine: "line 2"},
		{name: "bad setting", in: "h\nabc\t0\n", wantLine: "line 2"},
		{name: "bad voltage", in: "h\n0\t0\n1\tten\n", wantLine: "line 3"},
		{name: "infinite voltage", in: "h\n0\t0\n10\tInf\n", wantLine: "line 3"},
		{name: "negative infinite setting", in: "h\n-Inf\t0\n1\t10\n", wantLine: "line 2"},
		{name: "NaN voltage", in: "h\n0\t0\n1\tNaN\n2\t-10\n", wantLine: "line 3"},
		{name: "NaN setting", in: "h\nnan\t0\n1\t10\n", wantLine: "line 2"},
		{name: "blank line inside table", in: "h\n0\t0\n\n1\t10\n", wantLine: "line 3"},
		{name: "line too long", in: "h\n0\t" + strings.Repeat("0", bufio.MaxScanTokenSize) + "\n", wantLine: "line 2"},
		{name: "header only", in: "h\n", wantLine: "no calibration entries"},
		{name: "empty", in: "", wantLine: "no calibration entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in), "test")
			if !errors.Is(err, ErrMalformedCalibrationFile) {
				t.Fatalf("error = %v, want ErrMalformedCalibrationFile", err)
			}
			if !strings.Contains(err.Error(), tt.wantLine) {
				t.Errorf("error %q does not mention %q", err, tt.wantLine)
			}
		})
	}
}

func TestParse_Unordered(t *testing.T) {
	in := "h\n0\t0\n1\t20\n2\t10\n"

	_, err := Parse(strings.NewReader(in), "test")
	if !errors.Is(err, ErrUnorderedCalibrationTable) {
		t.Fatalf("error = %v, want ErrUnorderedCalibrationTable", err)
	}

	table, err := Parse(strings.NewReader(in), "test", WithUnorderedAllowed())
	if err != nil {
		t.Fatalf("Parse() with unordered allowed: %v", err)
	}
	// First bracketing pair wins: 15 V lies between 0 V and 20 V.
	got, err := table.Interpolate(15)
	if err != nil {
		t.Fatalf("Interpolate() unexpected error: %v", err)
	}
	if math.Abs(got-0.75) > 1e-12 {
		t.Errorf("Interpolate(15) = %v, want 0.75", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hvcal.txt")
	if err := os.WriteFile(path, []byte("DCRC\tHV\n0\t0\n1\t10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if table.Source() != path {
		t.Errorf("Source() = %q, want %q", table.Source(), path)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	if _, err := Load(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
