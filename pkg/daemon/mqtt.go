package daemon

import (
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/events"
)

// publishFunc sends one payload to an MQTT topic.
type publishFunc func(topic string, payload []byte) error

// eventTopic maps an event name such as "odb.write" to "<prefix>/odb/write".
func eventTopic(prefix, name string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + strings.ReplaceAll(name, ".", "/")
}

// forwardEvents publishes every event from ch until ch is closed. Failed
// publishes are logged and dropped.
func forwardEvents(ch <-chan events.Event, prefix string, publish publishFunc) {
	for ev := range ch {
		topic := eventTopic(prefix, ev.Name)
		if err := publish(topic, ev.Data); err != nil {
			logrus.WithError(err).WithField("topic", topic).Warn("failed to publish event to MQTT")
			continue
		}
		logrus.WithField("topic", topic).Trace("event published to MQTT")
	}
}

// startMQTTBridge connects to broker and forwards hub events to it. The
// returned function disconnects.
func startMQTTBridge(hub *events.Hub, broker, prefix string) (func(), error) {
	hostname, _ := os.Hostname()
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("hvctl-%s-%d", hostname, os.Getpid())).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	logrus.WithFields(logrus.Fields{
		"broker": broker,
		"topic":  prefix,
	}).Info("forwarding events to MQTT")

	ch := hub.Subscribe()
	go forwardEvents(ch, prefix, func(topic string, payload []byte) error {
		token := client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("timed out publishing to %s", topic)
		}
		return token.Error()
	})

	return func() {
		hub.Unsubscribe(ch)
		client.Disconnect(250)
	}, nil
}
