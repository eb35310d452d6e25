package odb

import (
	"errors"
	"reflect"
	"testing"
)

func TestMock(t *testing.T) {
	m := NewMock(map[string]string{"/a": "1"})

	v, err := m.Read("/a")
	if err != nil || v != "1" {
		t.Fatalf("Read(/a) = %q, %v", v, err)
	}
	if _, err := m.Read("/missing"); !errors.Is(err, ErrControlSystem) {
		t.Errorf("Read(/missing) error = %v, want ErrControlSystem", err)
	}

	if err := m.Write("/a", "2"); err != nil {
		t.Fatal(err)
	}
	if err := m.StartRun(); err != nil {
		t.Fatal(err)
	}
	if !m.Running() {
		t.Error("Running() = false after StartRun")
	}
	if err := m.StopRun(); err != nil {
		t.Fatal(err)
	}

	want := []Op{
		{Kind: OpRead, Path: "/a", Value: "1"},
		{Kind: OpWrite, Path: "/a", Value: "2"},
		{Kind: OpStartRun},
		{Kind: OpStopRun},
	}
	if got := m.Ops(); !reflect.DeepEqual(got, want) {
		t.Errorf("Ops() = %v, want %v", got, want)
	}
	if got := m.Writes("/a"); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("Writes(/a) = %v", got)
	}
}

func TestMock_FailOn(t *testing.T) {
	m := NewMock(nil)
	boom := errors.New("boom")
	m.FailOn("/b", boom)
	m.FailOn(string(OpStartRun), boom)

	if err := m.Write("/b", "1"); !errors.Is(err, ErrControlSystem) {
		t.Errorf("Write() error = %v, want ErrControlSystem", err)
	}
	if err := m.StartRun(); !errors.Is(err, ErrControlSystem) {
		t.Errorf("StartRun() error = %v, want ErrControlSystem", err)
	}
	if len(m.Ops()) != 0 {
		t.Errorf("failed operations must not be recorded, got %v", m.Ops())
	}
}

func TestMock_SetFallback(t *testing.T) {
	m := NewMock(map[string]string{"/a": "1"})
	m.SetFallback("y")

	if v, err := m.Read("/unknown"); err != nil || v != "y" {
		t.Errorf("Read(/unknown) = %q, %v, want fallback", v, err)
	}
	if v, _ := m.Read("/a"); v != "1" {
		t.Errorf("Read(/a) = %q, stored value must win over fallback", v)
	}
}
