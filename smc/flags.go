package smc

import "fmt"

// StateChangeFlag addresses a controller input bit (Y10-Y3F). These can be
// read with function 0x01 and written with 0x05 or 0x0F.
type StateChangeFlag uint16

// Defined state change flags
const (
	IN0         StateChangeFlag = 0x10
	IN1         StateChangeFlag = 0x11
	IN2         StateChangeFlag = 0x12
	IN3         StateChangeFlag = 0x13
	IN4         StateChangeFlag = 0x14
	IN5         StateChangeFlag = 0x15
	HOLD        StateChangeFlag = 0x18
	SVON        StateChangeFlag = 0x19 // servo on/off
	DRIVE       StateChangeFlag = 0x1A // start/stop motion
	RESET       StateChangeFlag = 0x1B // alarm reset
	SETUP       StateChangeFlag = 0x1C // return to origin
	JOGN        StateChangeFlag = 0x1D
	JOGP        StateChangeFlag = 0x1E
	SERIALINPUT StateChangeFlag = 0x30 // 0 = parallel input, 1 = serial input
)

var stateChangeFlagNames = map[StateChangeFlag]string{
	IN0:         "IN0",
	IN1:         "IN1",
	IN2:         "IN2",
	IN3:         "IN3",
	IN4:         "IN4",
	IN5:         "IN5",
	HOLD:        "HOLD",
	SVON:        "SVON",
	DRIVE:       "DRIVE",
	RESET:       "RESET",
	SETUP:       "SETUP",
	JOGN:        "JOGN",
	JOGP:        "JOGP",
	SERIALINPUT: "SERIALINPUT",
}

// Valid returns true if f is a defined state change flag.
func (f StateChangeFlag) Valid() bool {
	_, ok := stateChangeFlagNames[f]
	return ok
}

func (f StateChangeFlag) String() string {
	if n, ok := stateChangeFlagNames[f]; ok {
		return n
	}
	return fmt.Sprintf("state change flag 0x%04x", uint16(f))
}

// StatusFlag addresses a controller output bit (X40-X4F). Status flags are
// read only (function 0x02).
type StatusFlag uint16

// Defined status flags
const (
	OUT0  StatusFlag = 0x40
	OUT1  StatusFlag = 0x41
	OUT2  StatusFlag = 0x42
	OUT3  StatusFlag = 0x43
	OUT4  StatusFlag = 0x44
	OUT5  StatusFlag = 0x45
	BUSY  StatusFlag = 0x48 // axis is moving
	SVRE  StatusFlag = 0x49 // servo ready, follows SVON
	SETON StatusFlag = 0x4A // return to origin complete
	INP   StatusFlag = 0x4B // in position
	AREA  StatusFlag = 0x4C // between AreaOut1 and AreaOut2
	WAREA StatusFlag = 0x4D
	ESTOP StatusFlag = 0x4E
	ALARM StatusFlag = 0x4F
)

var statusFlagNames = map[StatusFlag]string{
	OUT0:  "OUT0",
	OUT1:  "OUT1",
	OUT2:  "OUT2",
	OUT3:  "OUT3",
	OUT4:  "OUT4",
	OUT5:  "OUT5",
	BUSY:  "BUSY",
	SVRE:  "SVRE",
	SETON: "SETON",
	INP:   "INP",
	AREA:  "AREA",
	WAREA: "WAREA",
	ESTOP: "ESTOP",
	ALARM: "ALARM",
}

// Valid returns true if f is a defined status flag.
func (f StatusFlag) Valid() bool {
	_, ok := statusFlagNames[f]
	return ok
}

func (f StatusFlag) String() string {
	if n, ok := statusFlagNames[f]; ok {
		return n
	}
	return fmt.Sprintf("status flag 0x%04x", uint16(f))
}

// ParseStateChangeFlag looks up a state change flag by name.
func ParseStateChangeFlag(name string) (StateChangeFlag, error) {
	for f, n := range stateChangeFlagNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown state change flag %q", ErrRange, name)
}

// ParseStatusFlag looks up a status flag by name.
func ParseStatusFlag(name string) (StatusFlag, error) {
	for f, n := range statusFlagNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status flag %q", ErrRange, name)
}

// stepSelectBits is the number of IN flags used to select a step.
const stepSelectBits = 6
