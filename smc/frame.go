package smc

import (
	"fmt"

	"github.com/ArxtronTech/Matthew-Redo/test"
)

// Reply is a decoded reply frame
type Reply struct {
	Address  byte
	Function FunctionCode
	Payload  []byte
}

func (r Reply) String() string {
	return fmt.Sprintf("Reply: %d %v: %v", r.Address, r.Function, test.HexDump(r.Payload))
}

// Failed returns true if the controller flagged the reply as an error.
func (r Reply) Failed() bool {
	return r.Function&funcErrorBit != 0
}

// EncodeFrame builds a request frame:
//
//	Address  : 1 byte
//	Function : 1 byte
//	Payload  : 0-256 bytes
//	CRC      : 2 bytes, low byte first
func EncodeFrame(address byte, fc FunctionCode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, rangeErrorf("payload length %d exceeds %d", len(payload), MaxPayloadLen)
	}
	ret := make([]byte, 2, len(payload)+4)
	ret[0] = address
	ret[1] = byte(fc)
	ret = append(ret, payload...)
	return AppendCrc(ret), nil
}

// DecodeFrame checks the CRC of frame and splits it into its fields.
func DecodeFrame(frame []byte) (Reply, error) {
	if err := CheckFrameCrc(frame); err != nil {
		return Reply{}, err
	}

	return Reply{
		Address:  frame[0],
		Function: FunctionCode(frame[1]),
		Payload:  frame[2 : len(frame)-2],
	}, nil
}
