package events

import "encoding/json"

// Event name constants
const (
	// DaemonHello is sent once to every new subscriber.
	DaemonHello = "daemon.hello"
	ODBWrite    = "odb.write"
	RunControl  = "run.control"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// HelloEvent is the typed payload for daemon.hello.
type HelloEvent struct {
	Version string `json:"version"`
	Ts      int64  `json:"ts"`
}

// ODBWriteEvent is the typed payload for odb.write.
type ODBWriteEvent struct {
	Path  string `json:"path"`
	Value string `json:"value"`
	Ts    int64  `json:"ts"`
}

// RunControlEvent is the typed payload for run.control.
type RunControlEvent struct {
	// Action is "start" or "stop".
	Action string `json:"action"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
