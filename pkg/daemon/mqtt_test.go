package daemon

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cdmslab/hvctl/pkg/events"
)

func TestEventTopic(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"hvctl", events.ODBWrite, "hvctl/odb/write"},
		{"lab/tower1/", events.RunControl, "lab/tower1/run/control"},
		{"hvctl", "custom", "hvctl/custom"},
	}
	for _, tt := range tests {
		if got := eventTopic(tt.prefix, tt.name); got != tt.want {
			t.Errorf("eventTopic(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestForwardEvents(t *testing.T) {
	ch := make(chan events.Event, 3)
	ch <- events.Event{Name: events.ODBWrite, Data: []byte(`{"path":"/a"}`)}
	ch <- events.Event{Name: events.RunControl, Data: []byte(`{"action":"start"}`)}
	ch <- events.Event{Name: events.RunControl, Data: []byte(`{"action":"stop"}`)}
	close(ch)

	var topics []string
	forwardEvents(ch, "hvctl", func(topic string, payload []byte) error {
		topics = append(topics, topic)
		if string(payload) == `{"action":"start"}` {
			return errors.New("broker gone")
		}
		return nil
	})

	want := []string{"hvctl/odb/write", "hvctl/run/control", "hvctl/run/control"}
	if !reflect.DeepEqual(topics, want) {
		t.Errorf("published topics = %v, want %v", topics, want)
	}
}
