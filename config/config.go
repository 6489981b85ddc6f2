// Package config loads bench files. A bench file names the serial devices,
// the actuators on each device, timing overrides and optional step records
// to download.
package config

import (
	"os"
	"time"

	"github.com/blang/semver/v4"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/ArxtronTech/Matthew-Redo/smc"
	"github.com/ArxtronTech/Matthew-Redo/transport"
)

// EnvPath is the environment variable that names the default bench file
const EnvPath = "SMC_CONFIG"

// DefaultFile is used when EnvPath is not set
const DefaultFile = "smc.yaml"

// SchemaVersion is the bench file format this package writes. Files with
// the same major version can be read.
var SchemaVersion = semver.MustParse("1.0.0")

// Bench is the contents of a bench file
type Bench struct {
	Version string             `yaml:"version"`
	Debug   int                `yaml:"debug"`
	Devices []transport.Config `yaml:"devices"`
	Axes    []Axis             `yaml:"axes"`
	Timing  Timing             `yaml:"timing"`
	Records Records            `yaml:"records"`
	Steps   []Step             `yaml:"steps"`
}

// Axis is one actuator controller on a device
type Axis struct {
	Name    string `yaml:"name"`
	Device  string `yaml:"device"`
	Address int    `yaml:"address"`
}

// Timing overrides smc.DefaultTiming. Zero fields keep the default.
type Timing struct {
	SendDelay       time.Duration `yaml:"sendDelay"`
	ReplyTimeout    time.Duration `yaml:"replyTimeout"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	StablePolls     int           `yaml:"stablePolls"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	ServoOnTimeout  time.Duration `yaml:"servoOnTimeout"`
	HomeTimeout     time.Duration `yaml:"homeTimeout"`
	ServoOffTimeout time.Duration `yaml:"servoOffTimeout"`
	AlarmTimeout    time.Duration `yaml:"alarmTimeout"`
	InPosTimeout    time.Duration `yaml:"inPosTimeout"`
}

// Records controls how step records are handled
type Records struct {
	// Strict rejects out of range record fields instead of clamping them
	Strict    bool   `yaml:"strict"`
	WordOrder string `yaml:"wordOrder"`
}

// Step is a step record to store in an axis step table
type Step struct {
	Axis   string       `yaml:"axis"`
	Step   int          `yaml:"step"`
	Record smc.StepData `yaml:"record"`
}

// DefaultPath returns the bench file named by EnvPath, or DefaultFile.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultFile
}

// Load reads and validates a bench file.
func Load(path string) (*Bench, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading bench file")
	}

	b, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "bench file %v", path)
	}

	return b, nil
}

// Parse decodes and validates bench file data. Device defaults are filled
// in.
func Parse(data []byte) (*Bench, error) {
	var b Bench
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, "error decoding bench file")
	}

	if b.Version == "" {
		b.Version = SchemaVersion.String()
	}

	for i := range b.Devices {
		b.Devices[i] = b.Devices[i].WithDefaults()
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return &b, nil
}

// Validate checks versions, names and references.
func (b *Bench) Validate() error {
	v, err := semver.ParseTolerant(b.Version)
	if err != nil {
		return errors.Wrapf(err, "invalid version %q", b.Version)
	}

	if v.Major != SchemaVersion.Major {
		return errors.Errorf("bench file version %v is not supported, need %v.x", v, SchemaVersion.Major)
	}

	devices := make(map[string]bool)
	for _, d := range b.Devices {
		if err := d.Validate(); err != nil {
			return err
		}
		if devices[d.Name] {
			return errors.Errorf("duplicate device %v", d.Name)
		}
		devices[d.Name] = true
	}

	type drop struct {
		device  string
		address int
	}
	names := make(map[string]bool)
	drops := make(map[drop]string)

	for _, a := range b.Axes {
		if a.Name == "" {
			return errors.New("axis name is required")
		}
		if names[a.Name] {
			return errors.Errorf("duplicate axis %v", a.Name)
		}
		names[a.Name] = true

		if !devices[a.Device] {
			return errors.Errorf("axis %v: unknown device %q", a.Name, a.Device)
		}

		if a.Address < 1 || a.Address > 255 {
			return errors.Errorf("axis %v: address must be 1-255, got %d", a.Name, a.Address)
		}

		if other, ok := drops[drop{a.Device, a.Address}]; ok {
			return errors.Errorf("axis %v: address %d already used by %v", a.Name, a.Address, other)
		}
		drops[drop{a.Device, a.Address}] = a.Name
	}

	if b.Timing.StablePolls < 0 {
		return errors.New("timing: stablePolls must not be negative")
	}

	if _, err := smc.ParseWordOrder(b.Records.WordOrder); err != nil {
		return errors.Wrap(err, "records")
	}

	for _, s := range b.Steps {
		if !names[s.Axis] {
			return errors.Errorf("step %d: unknown axis %q", s.Step, s.Axis)
		}
		if s.Step < 0 || s.Step >= smc.StepCount {
			return errors.Errorf("axis %v: step %d not in [0, %d]", s.Axis, s.Step, smc.StepCount-1)
		}
		if b.Records.Strict {
			if err := s.Record.Validate(); err != nil {
				return errors.Wrapf(err, "axis %v step %d", s.Axis, s.Step)
			}
		}
	}

	return nil
}

// Apply returns base with the non-zero overrides of t applied.
func (t Timing) Apply(base smc.Timing) smc.Timing {
	set := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}

	set(&base.SendDelay, t.SendDelay)
	set(&base.ReplyTimeout, t.ReplyTimeout)
	set(&base.RetryDelay, t.RetryDelay)
	set(&base.PollInterval, t.PollInterval)
	set(&base.ServoOnTimeout, t.ServoOnTimeout)
	set(&base.HomeTimeout, t.HomeTimeout)
	set(&base.ServoOffTimeout, t.ServoOffTimeout)
	set(&base.AlarmTimeout, t.AlarmTimeout)
	set(&base.InPosTimeout, t.InPosTimeout)

	if t.StablePolls != 0 {
		base.StablePolls = t.StablePolls
	}

	return base
}

// FindAxis returns the axis with name.
func (b *Bench) FindAxis(name string) (Axis, error) {
	for _, a := range b.Axes {
		if a.Name == name {
			return a, nil
		}
	}
	return Axis{}, errors.Errorf("unknown axis %q", name)
}

// StepsFor returns the step records configured for an axis.
func (b *Bench) StepsFor(axis string) []Step {
	var ret []Step
	for _, s := range b.Steps {
		if s.Axis == axis {
			ret = append(ret, s)
		}
	}
	return ret
}

// NewSession returns a session on device configured from the bench file.
func (b *Bench) NewSession(t smc.Transport, device string) *smc.Session {
	s := smc.NewSession(t, device, b.Debug)
	s.SetTiming(b.Timing.Apply(smc.DefaultTiming))
	s.SetStrictRecords(b.Records.Strict)
	// validated in Parse
	order, _ := smc.ParseWordOrder(b.Records.WordOrder)
	s.SetWordOrder(order)
	return s
}

// NewBus registers every device of the bench file on a new bus. Ports are
// not opened.
func (b *Bench) NewBus() (*transport.Bus, error) {
	bus := transport.NewBus(b.Debug)
	for _, d := range b.Devices {
		if err := bus.Add(d); err != nil {
			return nil, err
		}
	}
	return bus, nil
}
