// Package smc implements the serial link used by SMC LEC series actuator
// controllers. The link is a binary master/slave query-reply protocol framed
// like Modbus RTU: every request carries a controller address, a function
// code, a payload and a CRC-16, and every non-broadcast request is answered
// with a reply frame of the same shape.
//
// A Session owns one named serial device. Function library calls
// (ReadStatusFlags, ForceFlag, WriteWords, ...) are built on Session.Query.
// An Axis layers the motion sequences (motor on, homing, step select, run)
// on top of the function library.
package smc

import (
	"fmt"
	"time"
)

// FunctionCode represents an SMC function code
type FunctionCode byte

// Defined valid function codes
const (
	FuncReadStateChangeFlags FunctionCode = 0x01
	FuncReadStatusFlags      FunctionCode = 0x02
	FuncReadWords            FunctionCode = 0x03
	FuncForceFlag            FunctionCode = 0x05
	FuncEcho                 FunctionCode = 0x08
	FuncWriteBatchBits       FunctionCode = 0x0F
	FuncWriteWords           FunctionCode = 0x10
)

// funcErrorBit is set in the reply function byte when the controller
// rejected the request.
const funcErrorBit = 0x80

// Valid returns true for function codes the controller understands.
func (fc FunctionCode) Valid() bool {
	switch fc {
	case FuncReadStateChangeFlags, FuncReadStatusFlags, FuncReadWords,
		FuncForceFlag, FuncEcho, FuncWriteBatchBits, FuncWriteWords:
		return true
	}
	return false
}

func (fc FunctionCode) String() string {
	switch fc &^ funcErrorBit {
	case FuncReadStateChangeFlags:
		return "read state change flags"
	case FuncReadStatusFlags:
		return "read status flags"
	case FuncReadWords:
		return "read words"
	case FuncForceFlag:
		return "force flag"
	case FuncEcho:
		return "echo"
	case FuncWriteBatchBits:
		return "write batch bits"
	case FuncWriteWords:
		return "write words"
	}
	return fmt.Sprintf("function 0x%02x", byte(fc))
}

// Broadcast is the controller address that reaches every controller on the
// bus. Controllers never reply to a broadcast.
const Broadcast byte = 0

// Wire limits
const (
	MaxPayloadLen = 256
	// MaxReplyLen covers a full read of the step table (D0410-D07FF) plus
	// framing, with a little headroom.
	MaxReplyLen = 2060
	// MaxAttempts is the number of times a request is transmitted when the
	// reply fails its CRC check.
	MaxAttempts = 5
)

// Word addresses of the controller register space
const (
	AddrCurrPos     uint16 = 0x9000 // 2 words, 0.01 mm
	AddrCurrSpd     uint16 = 0x9002 // mm/s
	AddrCurrThrust  uint16 = 0x9003 // %
	AddrTargPos     uint16 = 0x9004 // 2 words, 0.01 mm
	AddrDriveDataNo uint16 = 0x9006 // active step, 0-63
	AddrEquipName   uint16 = 0x000E // 8 words, ASCII

	AddrStartOp       uint16 = 0x9100
	AddrSpecifiedData uint16 = 0x9102

	AddrStepTable   uint16 = 0x0400
	StepTableStride uint16 = 16
	StepCount              = 64

	liveStateWords = 7
	equipNameWords = 8
)

// StepAddress returns the first word address of a step record.
func StepAddress(step int) uint16 {
	return AddrStepTable + StepTableStride*uint16(step)
}

// Timing holds the delays and bounds used by a Session. The zero value is
// not useful; start from DefaultTiming.
type Timing struct {
	// SendDelay is the spacing after each transmitted frame and the
	// interval between input queue samples.
	SendDelay time.Duration
	// ReplyTimeout bounds the wait for any reply bytes.
	ReplyTimeout time.Duration
	// RetryDelay is the pause before resending after a CRC failure.
	RetryDelay time.Duration
	// StablePolls is the number of consecutive equal, non-zero queue
	// samples that mark a reply as complete.
	StablePolls int

	// Motion waits
	PollInterval    time.Duration
	ServoOnTimeout  time.Duration
	HomeTimeout     time.Duration
	ServoOffTimeout time.Duration
	AlarmTimeout    time.Duration
	InPosTimeout    time.Duration
}

// DefaultTiming matches the LEC6 controller defaults.
var DefaultTiming = Timing{
	SendDelay:       20 * time.Millisecond,
	ReplyTimeout:    60 * time.Second,
	RetryDelay:      time.Second,
	StablePolls:     2,
	PollInterval:    20 * time.Millisecond,
	ServoOnTimeout:  5 * time.Second,
	HomeTimeout:     20 * time.Second,
	ServoOffTimeout: 60 * time.Second,
	AlarmTimeout:    60 * time.Second,
	InPosTimeout:    5 * time.Second,
}
