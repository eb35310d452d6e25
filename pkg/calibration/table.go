package calibration

// Entry is a single calibration point.
type Entry struct {
	// Setting is the DCRC charge bias control voltage.
	Setting float64
	// Voltage is the HV supply output produced by Setting.
	Voltage float64
}

// Table is an ordered list of calibration points.
type Table struct {
	entries []Entry
	source  string
}

// NewTable builds a table from entries without validating their order.
func NewTable(entries []Entry) *Table {
	e := make([]Entry, len(entries))
	copy(e, entries)
	return &Table{entries: e}
}

// Entries returns a copy of the calibration points.
func (t *Table) Entries() []Entry {
	e := make([]Entry, len(t.entries))
	copy(e, t.entries)
	return e
}

// Len returns the number of calibration points.
func (t *Table) Len() int {
	return len(t.entries)
}

// Source is the file the table was loaded from, if any.
func (t *Table) Source() string {
	return t.source
}

// Range returns the lowest and highest HV covered by the table.
func (t *Table) Range() (lo, hi float64) {
	if len(t.entries) == 0 {
		return 0, 0
	}
	lo, hi = t.entries[0].Voltage, t.entries[0].Voltage
	for _, e := range t.entries[1:] {
		if e.Voltage < lo {
			lo = e.Voltage
		}
		if e.Voltage > hi {
			hi = e.Voltage
		}
	}
	return lo, hi
}

// Monotonic reports whether the HV column is strictly increasing or strictly
// decreasing. Tables with fewer than two entries are monotonic.
func (t *Table) Monotonic() bool {
	if len(t.entries) < 2 {
		return true
	}
	increasing := t.entries[1].Voltage > t.entries[0].Voltage
	for i := 1; i < len(t.entries); i++ {
		prev, cur := t.entries[i-1].Voltage, t.entries[i].Voltage
		if increasing && cur <= prev {
			return false
		}
		if !increasing && cur >= prev {
			return false
		}
	}
	return true
}

// Interpolate returns the DCRC setting that produces the HV output v.
//
// Exact matches return the stored setting unchanged. Otherwise the first pair
// of neighbouring entries that strictly brackets v is used for a linear
// interpolation. If no entry matches and no pair brackets v, an
// *OutOfRangeError is returned.
func (t *Table) Interpolate(v float64) (float64, error) {
	if len(t.entries) == 0 {
		return 0, t.outOfRange(v)
	}

	setA, hvA := t.entries[0].Setting, t.entries[0].Voltage
	if hvA == v {
		return setA, nil
	}

	for _, e := range t.entries {
		setB, hvB := e.Setting, e.Voltage
		if hvB == v {
			return setB, nil
		}
		if (hvA < v && v < hvB) || (hvA > v && v > hvB) {
			m := (setB - setA) / (hvB - hvA)
			return setA + m*(v-hvA), nil
		}
		setA, hvA = setB, hvB
	}

	return 0, t.outOfRange(v)
}

func (t *Table) outOfRange(v float64) error {
	lo, hi := t.Range()
	return &OutOfRangeError{Voltage: v, Min: lo, Max: hi}
}
