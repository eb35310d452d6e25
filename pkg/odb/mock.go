package odb

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// OpKind is the kind of a recorded Mock operation.
type OpKind string

const (
	OpWrite    OpKind = "write"
	OpRead     OpKind = "read"
	OpStartRun OpKind = "start"
	OpStopRun  OpKind = "stop"
)

// Op is one operation performed against a Mock.
type Op struct {
	Kind  OpKind
	Path  string
	Value string
}

func (o Op) String() string {
	switch o.Kind {
	case OpWrite:
		return fmt.Sprintf("write %q = %q", o.Path, o.Value)
	case OpRead:
		return fmt.Sprintf("read %q -> %q", o.Path, o.Value)
	default:
		return string(o.Kind) + " run"
	}
}

// Mock is an in-memory ODB. It records every operation in order and can be
// told to fail on specific paths. It backs tests and dry runs.
type Mock struct {
	mu       sync.Mutex
	values   map[string]string
	ops      []Op
	failures map[string]error
	running  bool

	fallback *string
}

var _ Client = &Mock{}

// NewMock returns a Mock prefilled with values.
func NewMock(prefillValues map[string]string) *Mock {
	m := &Mock{
		values:   map[string]string{},
		failures: map[string]error{},
	}
	for k, v := range prefillValues {
		m.values[k] = v
	}
	return m
}

// SetFallback makes reads of keys that were never written return v instead
// of failing.
func (m *Mock) SetFallback(v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &v
}

// FailOn makes every operation on path return err wrapped in
// ErrControlSystem. Use "start" or "stop" as path for run control.
func (m *Mock) FailOn(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = err
}

func (m *Mock) failure(path string) error {
	if err, ok := m.failures[path]; ok {
		return fmt.Errorf("%w: %s: %v", ErrControlSystem, path, err)
	}
	return nil
}

// Write stores value at path.
func (m *Mock) Write(path, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(path); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"path":  path,
		"value": value,
	}).Trace("mock ODB write")

	m.values[path] = value
	m.ops = append(m.ops, Op{Kind: OpWrite, Path: path, Value: value})
	return nil
}

// Read returns the value stored at path.
func (m *Mock) Read(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(path); err != nil {
		return "", err
	}
	v, ok := m.values[path]
	if !ok && m.fallback != nil {
		v, ok = *m.fallback, true
	}
	if !ok {
		return "", fmt.Errorf("%w: key %s not found", ErrControlSystem, path)
	}
	m.ops = append(m.ops, Op{Kind: OpRead, Path: path, Value: v})
	return v, nil
}

// StartRun marks a run as started.
func (m *Mock) StartRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(string(OpStartRun)); err != nil {
		return err
	}
	m.running = true
	m.ops = append(m.ops, Op{Kind: OpStartRun})
	return nil
}

// StopRun marks the run as stopped.
func (m *Mock) StopRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(string(OpStopRun)); err != nil {
		return err
	}
	m.running = false
	m.ops = append(m.ops, Op{Kind: OpStopRun})
	return nil
}

// Value returns the current value at path.
func (m *Mock) Value(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[path]
	return v, ok
}

// Running reports whether a run is in progress.
func (m *Mock) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Ops returns a copy of all recorded operations.
func (m *Mock) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]Op, len(m.ops))
	copy(ops, m.ops)
	return ops
}

// Writes returns the values written to path, in order.
func (m *Mock) Writes(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ws []string
	for _, op := range m.ops {
		if op.Kind == OpWrite && op.Path == path {
			ws = append(ws, op.Value)
		}
	}
	return ws
}
