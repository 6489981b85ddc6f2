package smc

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. Use errors.Is to test for them.
var (
	// ErrTransport is returned when the serial device could not be written
	// or read. It is never retried by the engine.
	ErrTransport = errors.New("transport error")
	// ErrTimeout is returned when a bounded wait runs out of time.
	ErrTimeout = errors.New("timeout")
	// ErrChecksum is returned when every attempt produced a reply with a
	// bad CRC.
	ErrChecksum = errors.New("CRC from reply does not match calculated CRC")
	// ErrShortFrame is returned when a frame is too short to carry a CRC.
	ErrShortFrame = errors.New("frame too short")
	// ErrRange is returned for caller supplied values outside protocol
	// bounds. No I/O is performed when it is returned.
	ErrRange = errors.New("value out of range")
	// ErrForceFailed is returned when the force reply does not echo the
	// requested state.
	ErrForceFailed = errors.New("force did not take effect")
	// ErrBadReply is returned when a reply is well formed but does not
	// carry the data the request asked for.
	ErrBadReply = errors.New("malformed reply")
)

// ProtocolError is an error reported by the controller in a reply with the
// high bit of the function code set.
type ProtocolError struct {
	Code byte
}

var protocolErrorMessages = map[byte]string{
	1: "An undefined function code was specified.",
	2: "1) An address outside the range was set in the read or write start address.\n" +
		"2) In echo back, the test code was not 0000h.",
	3: "1) The number of points set meant that the read or write last number was outside the range.\n" +
		"2) There was an instruction meaning that the size of \"Data\" in the communication frame exceeded 256 Bytes.\n" +
		"3) In Function 05 (Forced signal output), the data of the specified \"terminal state\" was not FF00h(ON) or 0000h (OFF).\n" +
		"4) In Function 0F (Output signals batch writing), the specified \"Write points\" exceeded 256.\n" +
		"5) The read or write specified size was 0.",
}

func (e *ProtocolError) Error() string {
	if msg, ok := protocolErrorMessages[e.Code]; ok {
		return msg
	}
	return fmt.Sprintf("SMC protocol error with code %d", e.Code)
}

// Exception codes a controller may return
const (
	ExcIllegalFunction byte = 1
	ExcIllegalAddress  byte = 2
	ExcIllegalValue    byte = 3
)

// OpError records the device, operation and function that failed. Every
// error returned by a Session or Axis carries an *OpError; use errors.As
// to get at it.
type OpError struct {
	Device   string
	Op       string
	Address  byte
	Function FunctionCode
	Err      error
}

func (e *OpError) Error() string {
	if e.Function != 0 {
		return fmt.Sprintf("smc %v: %v (addr %d, %v): %v", e.Device, e.Op, e.Address, e.Function, e.Err)
	}
	return fmt.Sprintf("smc %v: %v (addr %d): %v", e.Device, e.Op, e.Address, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (s *Session) opError(op string, addr byte, fc FunctionCode, err error) error {
	var oe *OpError
	if errors.As(err, &oe) {
		// already annotated further down the stack
		return fmt.Errorf("%v: %w", op, err)
	}
	return &OpError{Device: s.device, Op: op, Address: addr, Function: fc, Err: err}
}

func rangeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrRange}, args...)...)
}
