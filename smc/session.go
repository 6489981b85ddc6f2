package smc

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ArxtronTech/Matthew-Redo/test"
)

// Transport is the raw byte interface to named serial devices. The device
// must already be open; a Session never configures the port.
type Transport interface {
	WriteRaw(device string, data []byte) (int, error)
	// ReadRaw returns at most max bytes that are already queued.
	ReadRaw(device string, max int) ([]byte, error)
	// QueueLength returns the number of received bytes waiting to be read.
	QueueLength(device string) (int, error)
	// Acquire gives the caller exclusive use of the device until release
	// is called.
	Acquire(device string) (release func(), err error)
}

// Session talks to the controllers attached to one serial device. Only one
// query is in flight per device at a time; Sessions on the same device
// serialize through Transport.Acquire.
type Session struct {
	transport Transport
	device    string
	timing    Timing
	debug     int
	wordOrder WordOrder
	strict    bool
}

// NewSession is used to create a new session on a device.
// Debug levels:
// 1 - log requests and replies
// 9 - dump raw frames
func NewSession(transport Transport, device string, debug int) *Session {
	return &Session{
		transport: transport,
		device:    device,
		timing:    DefaultTiming,
		debug:     debug,
	}
}

// Device returns the name of the serial device
func (s *Session) Device() string {
	return s.device
}

// SetDebugLevel allows you to change debug level on the fly
func (s *Session) SetDebugLevel(debug int) {
	s.debug = debug
}

// SetTiming replaces the delays and bounds used by the session.
func (s *Session) SetTiming(t Timing) {
	if t.StablePolls < 1 {
		t.StablePolls = 1
	}
	s.timing = t
}

// Timing returns the delays and bounds used by the session.
func (s *Session) Timing() Timing {
	return s.timing
}

// SetWordOrder selects how 32-bit live state values are assembled from
// two registers.
func (s *Session) SetWordOrder(o WordOrder) {
	s.wordOrder = o
}

// SetStrictRecords makes step record writes fail with ErrRange instead of
// clamping out of range fields.
func (s *Session) SetStrictRecords(strict bool) {
	s.strict = strict
}

// Query sends a request frame and returns the reply. Broadcast requests
// return an empty Reply as soon as the frame is written. Replies that fail
// the CRC check cause the request to be sent again, up to MaxAttempts
// transmissions in total. Controller error replies are returned as
// *ProtocolError and are not retried.
func (s *Session) Query(address byte, fc FunctionCode, payload []byte) (Reply, error) {
	if !fc.Valid() {
		return Reply{}, s.opError("query", address, fc,
			rangeErrorf("unknown function code 0x%02x", byte(fc)))
	}

	req, err := EncodeFrame(address, fc, payload)
	if err != nil {
		return Reply{}, s.opError("query", address, fc, err)
	}

	release, err := s.transport.Acquire(s.device)
	if err != nil {
		return Reply{}, s.opError("query", address, fc, fmt.Errorf("%w: %v", ErrTransport, err))
	}
	defer release()

	if s.debug >= 1 {
		log.Printf("SMC %v tx: addr %d %v: %v\n", s.device, address, fc, test.HexDump(payload))
	}

	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("SMC %v: %v, resending %v (attempt %d of %d)\n",
				s.device, lastErr, fc, attempt, MaxAttempts)
			time.Sleep(s.timing.RetryDelay)
		}

		frame, err := s.exchange(address, req)
		if err != nil {
			return Reply{}, s.opError("query", address, fc, err)
		}

		if address == Broadcast {
			return Reply{Address: address, Function: fc}, nil
		}

		reply, err := DecodeFrame(frame)
		if err != nil {
			lastErr = err
			continue
		}

		if s.debug >= 1 {
			log.Printf("SMC %v rx: %v\n", s.device, reply)
		}

		if err := checkReply(address, fc, reply); err != nil {
			return reply, s.opError("query", address, fc, err)
		}

		return reply, nil
	}

	return Reply{}, s.opError("query", address, fc,
		fmt.Errorf("%w: giving up after %d attempts (%v)", ErrChecksum, MaxAttempts, lastErr))
}

// exchange writes one request and, unless it is a broadcast, collects the
// raw reply frame.
func (s *Session) exchange(address byte, req []byte) ([]byte, error) {
	if err := s.discardInput(); err != nil {
		return nil, err
	}

	if s.debug >= 9 {
		log.Printf("SMC %v tx frame: %v\n", s.device, test.HexDump(req))
	}

	n, err := s.transport.WriteRaw(s.device, req)
	if err != nil {
		return nil, fmt.Errorf("%w: error writing to %v: %v", ErrTransport, s.device, err)
	}
	if n != len(req) {
		return nil, fmt.Errorf("%w: short write to %v, %d of %d bytes",
			ErrTransport, s.device, n, len(req))
	}

	time.Sleep(s.timing.SendDelay)

	if address == Broadcast {
		return nil, nil
	}

	count, err := s.awaitReply()
	if err != nil {
		return nil, err
	}

	frame, err := s.transport.ReadRaw(s.device, count)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading from %v: %v", ErrTransport, s.device, err)
	}

	if s.debug >= 9 {
		log.Printf("SMC %v rx frame: %v\n", s.device, test.HexDump(frame))
	}

	return frame, nil
}

// awaitReply samples the input queue until its length is non-zero and
// has stopped growing. Replies can arrive in bursts, so a single non-zero
// sample is not enough.
func (s *Session) awaitReply() (int, error) {
	start := time.Now()
	last, stable := 0, 0

	for {
		n, err := s.transport.QueueLength(s.device)
		if err != nil {
			return 0, fmt.Errorf("%w: error reading queue length of %v: %v",
				ErrTransport, s.device, err)
		}

		switch {
		case n == 0:
			stable = 0
		case n == last:
			stable++
		default:
			stable = 1
		}
		last = n

		if n >= MaxReplyLen {
			return MaxReplyLen, nil
		}

		if stable >= s.timing.StablePolls {
			return n, nil
		}

		if time.Since(start) > s.timing.ReplyTimeout {
			return 0, fmt.Errorf("%w: no reply from %v after %v",
				ErrTimeout, s.device, s.timing.ReplyTimeout)
		}

		time.Sleep(s.timing.SendDelay)
	}
}

// discardInput drops bytes left over from an earlier exchange so they are
// not mistaken for the start of the next reply.
func (s *Session) discardInput() error {
	n, err := s.transport.QueueLength(s.device)
	if err != nil {
		return fmt.Errorf("%w: error reading queue length of %v: %v", ErrTransport, s.device, err)
	}
	if n == 0 {
		return nil
	}

	stale, err := s.transport.ReadRaw(s.device, n)
	if err != nil {
		return fmt.Errorf("%w: error flushing %v: %v", ErrTransport, s.device, err)
	}

	log.Printf("SMC %v: discarded %d stale bytes: %v\n", s.device, len(stale), test.HexDump(stale))

	return nil
}

func checkReply(address byte, fc FunctionCode, reply Reply) error {
	if reply.Address != address {
		return fmt.Errorf("%w: reply from address %d, expected %d", ErrBadReply, reply.Address, address)
	}

	if reply.Failed() {
		if len(reply.Payload) < 1 {
			return fmt.Errorf("%w: error reply without a code", ErrBadReply)
		}
		return &ProtocolError{Code: reply.Payload[0]}
	}

	if reply.Function != fc {
		return fmt.Errorf("%w: reply function %v, expected %v", ErrBadReply, reply.Function, fc)
	}

	return nil
}

// IsRetryable is true for errors that a caller may reasonably clear by
// repeating the whole sequence: timeouts and exhausted CRC retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrChecksum)
}
