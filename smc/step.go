package smc

import (
	"fmt"
	"log"
	"math"
)

// MoveMode selects how a step record position is interpreted
type MoveMode int64

// Defined move modes
const (
	MoveAbsolute MoveMode = 1
	MoveRelative MoveMode = 2
)

func (m MoveMode) String() string {
	switch m {
	case MoveAbsolute:
		return "absolute"
	case MoveRelative:
		return "relative"
	}
	return fmt.Sprintf("move mode %d", int64(m))
}

// StepData is one motion step record. Fields are wider than their wire
// encoding so that out of range values can be detected and clamped.
// Positions are in 0.01 mm, speeds in mm/s, forces in percent.
type StepData struct {
	MoveMode     MoveMode `yaml:"moveMode"`
	Speed        int64    `yaml:"speed"`
	Position     int64    `yaml:"position"`
	Accel        int64    `yaml:"accel"`
	Decel        int64    `yaml:"decel"`
	PushForce    int64    `yaml:"pushForce"`
	TriggerLevel int64    `yaml:"triggerLevel"`
	PushSpeed    int64    `yaml:"pushSpeed"`
	MoveForce    int64    `yaml:"moveForce"`
	AreaOut1     int64    `yaml:"areaOut1"`
	AreaOut2     int64    `yaml:"areaOut2"`
	InPosition   int64    `yaml:"inPosition"`
}

// StepRecordLen is the encoded size of a step record
const StepRecordLen = 32

type stepField struct {
	name     string
	width    int
	min, max int64
	value    func(*StepData) *int64
}

// stepFields lists the record fields in wire order
var stepFields = []stepField{
	{"MoveMode", 2, 1, 2, func(d *StepData) *int64 { return (*int64)(&d.MoveMode) }},
	{"Speed", 2, 1, math.MaxUint16, func(d *StepData) *int64 { return &d.Speed }},
	{"Position", 4, math.MinInt32, math.MaxInt32, func(d *StepData) *int64 { return &d.Position }},
	{"Accel", 2, 1, math.MaxUint16, func(d *StepData) *int64 { return &d.Accel }},
	{"Decel", 2, 1, math.MaxUint16, func(d *StepData) *int64 { return &d.Decel }},
	{"PushForce", 2, 0, 100, func(d *StepData) *int64 { return &d.PushForce }},
	{"TriggerLevel", 2, 0, 100, func(d *StepData) *int64 { return &d.TriggerLevel }},
	{"PushSpeed", 2, 1, math.MaxUint16, func(d *StepData) *int64 { return &d.PushSpeed }},
	{"MoveForce", 2, 0, 300, func(d *StepData) *int64 { return &d.MoveForce }},
	{"AreaOut1", 4, math.MinInt32, math.MaxInt32, func(d *StepData) *int64 { return &d.AreaOut1 }},
	{"AreaOut2", 4, math.MinInt32, math.MaxInt32, func(d *StepData) *int64 { return &d.AreaOut2 }},
	{"InPosition", 4, math.MinInt32, math.MaxInt32, func(d *StepData) *int64 { return &d.InPosition }},
}

// Clamp returns a copy of d with every field forced into its range, and
// a description of each field that had to change.
func (d StepData) Clamp() (StepData, []string) {
	var changed []string
	for _, f := range stepFields {
		v := f.value(&d)
		c := *v
		if c < f.min {
			c = f.min
		} else if c > f.max {
			c = f.max
		}
		if c != *v {
			changed = append(changed, fmt.Sprintf("%v %d out of range [%d, %d], clamped to %d",
				f.name, *v, f.min, f.max, c))
			*v = c
		}
	}
	return d, changed
}

// Validate returns an ErrRange error naming the first field that is out of
// range.
func (d StepData) Validate() error {
	for _, f := range stepFields {
		v := *f.value(&d)
		if v < f.min || v > f.max {
			return rangeErrorf("step %v %d not in [%d, %d]", f.name, v, f.min, f.max)
		}
	}
	return nil
}

// Encode packs the record into its 32 byte big endian wire form. Fields
// must already be in range, see Clamp.
func (d StepData) Encode() []byte {
	buf := make([]byte, StepRecordLen)
	i := 0
	for _, f := range stepFields {
		PutBE(buf[i:], uint32(*f.value(&d)), f.width)
		i += f.width
	}
	return buf
}

// Words returns the encoded record as 16 registers.
func (d StepData) Words() []uint16 {
	return Uint16Array(d.Encode())
}

// DecodeStepData unpacks a 32 byte record.
func DecodeStepData(buf []byte) (StepData, error) {
	if len(buf) != StepRecordLen {
		return StepData{}, fmt.Errorf("%w: step record is %d bytes, expected %d",
			ErrBadReply, len(buf), StepRecordLen)
	}

	var d StepData
	i := 0
	for _, f := range stepFields {
		raw := DecodeBE(buf[i:], f.width)
		if f.min < 0 {
			*f.value(&d) = int64(int32(raw))
		} else {
			*f.value(&d) = int64(raw)
		}
		i += f.width
	}
	return d, nil
}

// prepareStep applies the session record policy: clamp and log, or reject.
func (s *Session) prepareStep(d StepData) (StepData, error) {
	if s.strict {
		if err := d.Validate(); err != nil {
			return d, err
		}
		return d, nil
	}

	d, changed := d.Clamp()
	for _, c := range changed {
		log.Printf("SMC %v step record: %v\n", s.device, c)
	}
	return d, nil
}
