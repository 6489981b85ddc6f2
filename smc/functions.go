package smc

import (
	"bytes"
	"fmt"
	"strings"
)

// force state bytes
const (
	forceOn  byte = 0xff
	forceOff byte = 0x00
)

// echoTestCode is the only test code controllers accept
const echoTestCode uint16 = 0x0000

func (s *Session) requireAddress(op string, addr byte, fc FunctionCode) error {
	if addr == Broadcast {
		return s.opError(op, addr, fc, rangeErrorf("%v needs a controller address, not broadcast", op))
	}
	return nil
}

// readFlags is shared by the two flag read functions. The reply payload
// starts with a byte count.
func (s *Session) readFlags(op string, addr byte, fc FunctionCode, flag, count uint16) ([]byte, error) {
	if err := s.requireAddress(op, addr, fc); err != nil {
		return nil, err
	}

	if count < 1 {
		return nil, s.opError(op, addr, fc, rangeErrorf("flag count must be at least 1"))
	}

	reply, err := s.Query(addr, fc, PutUint16Array(flag, count))
	if err != nil {
		return nil, s.opError(op, addr, fc, err)
	}

	if len(reply.Payload) < 1 {
		return nil, s.opError(op, addr, fc, fmt.Errorf("%w: empty reply", ErrBadReply))
	}

	n := int(reply.Payload[0])
	if len(reply.Payload) < 1+n {
		return nil, s.opError(op, addr, fc,
			fmt.Errorf("%w: byte count %d, only %d bytes present", ErrBadReply, n, len(reply.Payload)-1))
	}

	if need := (int(count) + 7) / 8; n < need {
		return nil, s.opError(op, addr, fc,
			fmt.Errorf("%w: %d flags need %d bytes, got %d", ErrBadReply, count, need, n))
	}

	return reply.Payload[1 : 1+n], nil
}

// ReadStateChangeFlags reads count state change flags starting at flag.
// Bit 0 of the first returned byte is flag.
func (s *Session) ReadStateChangeFlags(addr byte, flag StateChangeFlag, count uint16) ([]byte, error) {
	if !flag.Valid() {
		return nil, s.opError("read state change flags", addr, FuncReadStateChangeFlags,
			rangeErrorf("unknown state change flag 0x%02x", uint16(flag)))
	}
	return s.readFlags("read state change flags", addr, FuncReadStateChangeFlags, uint16(flag), count)
}

// ReadStatusFlags reads count status flags starting at flag.
func (s *Session) ReadStatusFlags(addr byte, flag StatusFlag, count uint16) ([]byte, error) {
	if !flag.Valid() {
		return nil, s.opError("read status flags", addr, FuncReadStatusFlags,
			rangeErrorf("unknown status flag 0x%02x", uint16(flag)))
	}
	return s.readFlags("read status flags", addr, FuncReadStatusFlags, uint16(flag), count)
}

// ReadStatusFlag reads a single status flag.
func (s *Session) ReadStatusFlag(addr byte, flag StatusFlag) (bool, error) {
	data, err := s.ReadStatusFlags(addr, flag, 1)
	if err != nil {
		return false, err
	}
	return data[0]&0x01 != 0, nil
}

// ReadStateChangeFlag reads a single state change flag.
func (s *Session) ReadStateChangeFlag(addr byte, flag StateChangeFlag) (bool, error) {
	data, err := s.ReadStateChangeFlags(addr, flag, 1)
	if err != nil {
		return false, err
	}
	return data[0]&0x01 != 0, nil
}

// ReadWords reads count 16-bit registers starting at start.
func (s *Session) ReadWords(addr byte, start, count uint16) ([]uint16, error) {
	const op = "read words"
	fc := FuncReadWords

	if err := s.requireAddress(op, addr, fc); err != nil {
		return nil, err
	}

	if count < 1 || int(count)*2 > MaxPayloadLen-1 {
		return nil, s.opError(op, addr, fc, rangeErrorf("word count %d", count))
	}

	reply, err := s.Query(addr, fc, PutUint16Array(start, count))
	if err != nil {
		return nil, s.opError(op, addr, fc, err)
	}

	if len(reply.Payload) < 1 {
		return nil, s.opError(op, addr, fc, fmt.Errorf("%w: empty reply", ErrBadReply))
	}

	n := int(reply.Payload[0])
	if n != int(count)*2 || len(reply.Payload) < 1+n {
		return nil, s.opError(op, addr, fc,
			fmt.Errorf("%w: expected %d data bytes, got %d", ErrBadReply, count*2, len(reply.Payload)-1))
	}

	return Uint16Array(reply.Payload[1 : 1+n]), nil
}

// ForceFlag sets a single state change flag on or off. The controller
// echoes the request; if the echoed state differs, ErrForceFailed is
// returned.
func (s *Session) ForceFlag(addr byte, flag StateChangeFlag, on bool) error {
	const op = "force flag"
	fc := FuncForceFlag

	if err := s.requireAddress(op, addr, fc); err != nil {
		return err
	}

	if !flag.Valid() {
		return s.opError(op, addr, fc, rangeErrorf("unknown state change flag 0x%02x", uint16(flag)))
	}

	state := forceOff
	if on {
		state = forceOn
	}

	payload := PutUint16Array(uint16(flag))
	payload = append(payload, state, 0x00)

	reply, err := s.Query(addr, fc, payload)
	if err != nil {
		return s.opError(op, addr, fc, err)
	}

	if len(reply.Payload) < 3 {
		return s.opError(op, addr, fc, fmt.Errorf("%w: force reply has %d bytes", ErrBadReply, len(reply.Payload)))
	}

	if reply.Payload[2] != state {
		return s.opError(op, addr, fc,
			fmt.Errorf("%w: %v requested 0x%02x, controller reports 0x%02x",
				ErrForceFailed, flag, state, reply.Payload[2]))
	}

	return nil
}

// Echo sends data to the controller and returns what it echoed back.
func (s *Session) Echo(addr byte, data []byte) ([]byte, error) {
	const op = "echo"
	fc := FuncEcho

	if err := s.requireAddress(op, addr, fc); err != nil {
		return nil, err
	}

	if len(data) > MaxPayloadLen-2 {
		return nil, s.opError(op, addr, fc, rangeErrorf("echo data length %d", len(data)))
	}

	payload := append(PutUint16Array(echoTestCode), data...)

	reply, err := s.Query(addr, fc, payload)
	if err != nil {
		return nil, s.opError(op, addr, fc, err)
	}

	if len(reply.Payload) < 2 {
		return nil, s.opError(op, addr, fc, fmt.Errorf("%w: echo reply has %d bytes", ErrBadReply, len(reply.Payload)))
	}

	return reply.Payload[2:], nil
}

// WriteBatchBits writes count consecutive state change flags starting at
// flag. Bit 0 of data[0] is flag. Broadcast is allowed.
func (s *Session) WriteBatchBits(addr byte, flag StateChangeFlag, count uint16, data []byte) error {
	const op = "write batch bits"
	fc := FuncWriteBatchBits

	if !flag.Valid() {
		return s.opError(op, addr, fc, rangeErrorf("unknown state change flag 0x%02x", uint16(flag)))
	}

	need := (int(count) + 7) / 8
	if count < 1 || len(data) != need || len(data)+5 > MaxPayloadLen {
		return s.opError(op, addr, fc,
			rangeErrorf("%d flags need %d data bytes, got %d", count, need, len(data)))
	}

	payload := PutUint16Array(uint16(flag), count)
	payload = append(payload, byte(len(data)))
	payload = append(payload, data...)

	if _, err := s.Query(addr, fc, payload); err != nil {
		return s.opError(op, addr, fc, err)
	}

	return nil
}

// WriteWords writes consecutive 16-bit registers starting at start.
// Broadcast is allowed.
func (s *Session) WriteWords(addr byte, start uint16, words []uint16) error {
	const op = "write words"
	fc := FuncWriteWords

	if len(words) < 1 || len(words)*2+5 > MaxPayloadLen {
		return s.opError(op, addr, fc, rangeErrorf("word count %d", len(words)))
	}

	payload := PutUint16Array(start, uint16(len(words)))
	payload = append(payload, byte(len(words)*2))
	payload = append(payload, PutUint16Array(words...)...)

	if _, err := s.Query(addr, fc, payload); err != nil {
		return s.opError(op, addr, fc, err)
	}

	return nil
}

// EquipmentName reads the controller model string.
func (s *Session) EquipmentName(addr byte) (string, error) {
	words, err := s.ReadWords(addr, AddrEquipName, equipNameWords)
	if err != nil {
		return "", err
	}

	raw := PutUint16Array(words...)
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}

	return strings.TrimSpace(string(raw)), nil
}
