package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownKey is returned by Set for keys that are not in Keys.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue is returned by Set for values the key does not accept.
	ErrInvalidValue = errors.New("invalid config value")
)

// Keys lists the settable keys, named like the JSON fields of the config
// file.
var Keys = []string{
	"equipment",
	"odbeditPath",
	"experiment",
	"host",
	"rampRate",
	"updatePeriodSeconds",
	"driftPeriodSeconds",
	"allowNonRootAccess",
	"mqttBroker",
	"mqttTopic",
}

// AffectsODB reports whether changing key requires a new odbedit backend.
func AffectsODB(key string) bool {
	switch key {
	case "odbeditPath", "experiment", "host":
		return true
	}
	return false
}

// Set parses value for key and stores it in c. Nothing is saved.
func Set(c Config, key, value string) error {
	switch key {
	case "equipment":
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("%w: %s must be an absolute ODB path, got %q", ErrInvalidValue, key, value)
		}
		c.SetEquipment(strings.TrimSuffix(value, "/"))
	case "odbeditPath":
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
		}
		c.SetOdbeditPath(value)
	case "experiment":
		c.SetExperiment(value)
	case "host":
		c.SetHost(value)
	case "rampRate":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil || !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: %s must be a positive number of V/s, got %q", ErrInvalidValue, key, value)
		}
		c.SetRampRate(r)
	case "updatePeriodSeconds", "driftPeriodSeconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s must be a whole number of seconds, at least 1, got %q", ErrInvalidValue, key, value)
		}
		if key == "updatePeriodSeconds" {
			c.SetUpdatePeriod(time.Duration(n) * time.Second)
		} else {
			c.SetDriftPeriod(time.Duration(n) * time.Second)
		}
	case "allowNonRootAccess":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false, got %q", ErrInvalidValue, key, value)
		}
		c.SetAllowNonRootAccess(b)
	case "mqttBroker":
		c.SetMQTTBroker(value)
	case "mqttTopic":
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
		}
		c.SetMQTTTopic(strings.Trim(value, "/"))
	default:
		return fmt.Errorf("%w: %q, expected one of %s", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	return nil
}
