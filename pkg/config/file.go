package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Equipment:          ptr.To(odb.DefaultEquipment),
		OdbeditPath:        ptr.To("odbedit"),
		Experiment:         ptr.To(""),
		Host:               ptr.To(""),
		RampRate:           ptr.To(1.0),
		UpdatePeriodSecs:   ptr.To(1),
		DriftPeriodSecs:    ptr.To(10),
		AllowNonRootAccess: ptr.To(false),
		MQTTBroker:         ptr.To(""),
		MQTTTopic:          ptr.To("hvctl"),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Equipment          *string  `json:"equipment,omitempty"`
	OdbeditPath        *string  `json:"odbeditPath,omitempty"`
	Experiment         *string  `json:"experiment,omitempty"`
	Host               *string  `json:"host,omitempty"`
	RampRate           *float64 `json:"rampRate,omitempty"`
	UpdatePeriodSecs   *int     `json:"updatePeriodSeconds,omitempty"`
	DriftPeriodSecs    *int     `json:"driftPeriodSeconds,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
	MQTTBroker         *string  `json:"mqttBroker,omitempty"`
	MQTTTopic          *string  `json:"mqttTopic,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Equipment:          ptr.To(c.Equipment()),
		OdbeditPath:        ptr.To(c.OdbeditPath()),
		Experiment:         ptr.To(c.Experiment()),
		Host:               ptr.To(c.Host()),
		RampRate:           ptr.To(c.RampRate()),
		UpdatePeriodSecs:   ptr.To(int(c.UpdatePeriod().Seconds())),
		DriftPeriodSecs:    ptr.To(int(c.DriftPeriod().Seconds())),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		MQTTBroker:         ptr.To(c.MQTTBroker()),
		MQTTTopic:          ptr.To(c.MQTTTopic()),
	}

	return rawConfig, nil
}

// get returns *field, or *def when the field is unset.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func set[T any](f *File, field func(*RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = &v
}

func (f *File) Equipment() string {
	return get(f, func(c *RawFileConfig) *string { return c.Equipment })
}

func (f *File) OdbeditPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.OdbeditPath })
}

func (f *File) Experiment() string {
	return get(f, func(c *RawFileConfig) *string { return c.Experiment })
}

func (f *File) Host() string {
	return get(f, func(c *RawFileConfig) *string { return c.Host })
}

func (f *File) RampRate() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.RampRate })
}

func (f *File) UpdatePeriod() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.UpdatePeriodSecs })) * time.Second
}

func (f *File) DriftPeriod() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.DriftPeriodSecs })) * time.Second
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) MQTTBroker() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) SetEquipment(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.Equipment }, s)
}

func (f *File) SetOdbeditPath(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.OdbeditPath }, s)
}

func (f *File) SetExperiment(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.Experiment }, s)
}

func (f *File) SetHost(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.Host }, s)
}

func (f *File) SetRampRate(r float64) {
	if r <= 0 {
		panic("ramp rate must be positive")
	}
	set(f, func(c *RawFileConfig) **float64 { return &c.RampRate }, r)
}

func (f *File) SetUpdatePeriod(d time.Duration) {
	if d < time.Second {
		panic("update period must be at least 1s")
	}
	set(f, func(c *RawFileConfig) **int { return &c.UpdatePeriodSecs }, int(d.Seconds()))
}

func (f *File) SetDriftPeriod(d time.Duration) {
	if d < time.Second {
		panic("drift period must be at least 1s")
	}
	set(f, func(c *RawFileConfig) **int { return &c.DriftPeriodSecs }, int(d.Seconds()))
}

func (f *File) SetAllowNonRootAccess(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.AllowNonRootAccess }, b)
}

func (f *File) SetMQTTBroker(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MQTTBroker }, s)
}

func (f *File) SetMQTTTopic(s string) {
	set(f, func(c *RawFileConfig) **string { return &c.MQTTTopic }, s)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if conf.UpdatePeriodSecs != nil && *conf.UpdatePeriodSecs < 1 {
		return pkgerrors.Errorf("invalid config in %s: updatePeriodSeconds must be at least 1, got %d", f.filepath, *conf.UpdatePeriodSecs)
	}
	if conf.DriftPeriodSecs != nil && *conf.DriftPeriodSecs < 1 {
		return pkgerrors.Errorf("invalid config in %s: driftPeriodSeconds must be at least 1, got %d", f.filepath, *conf.DriftPeriodSecs)
	}
	if conf.RampRate != nil && *conf.RampRate <= 0 {
		return pkgerrors.Errorf("invalid config in %s: rampRate must be positive, got %g", f.filepath, *conf.RampRate)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"equipment":          f.Equipment(),
		"odbeditPath":        f.OdbeditPath(),
		"experiment":         f.Experiment(),
		"host":               f.Host(),
		"rampRate":           f.RampRate(),
		"updatePeriod":       f.UpdatePeriod(),
		"driftPeriod":        f.DriftPeriod(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"mqttBroker":         f.MQTTBroker(),
		"mqttTopic":          f.MQTTTopic(),
	}
}
