package config

import "time"

type Config interface {
	// Equipment is the ODB settings root of the DCRC boards.
	Equipment() string
	OdbeditPath() string
	Experiment() string
	Host() string
	RampRate() float64
	UpdatePeriod() time.Duration
	DriftPeriod() time.Duration
	AllowNonRootAccess() bool
	// MQTTBroker is the broker daemon events are forwarded to. Empty
	// disables forwarding.
	MQTTBroker() string
	MQTTTopic() string

	SetEquipment(string)
	SetOdbeditPath(string)
	SetExperiment(string)
	SetHost(string)
	SetRampRate(float64)
	SetUpdatePeriod(time.Duration)
	SetDriftPeriod(time.Duration)
	SetAllowNonRootAccess(bool)
	SetMQTTBroker(string)
	SetMQTTTopic(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
