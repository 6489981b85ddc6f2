package smc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func simRequest(t *testing.T, c *Controller, address byte, fc FunctionCode, payload []byte) []byte {
	t.Helper()
	frame, err := EncodeFrame(address, fc, payload)
	if err != nil {
		t.Fatal(err)
	}
	return c.Handle(frame)
}

func TestControllerExceptions(t *testing.T) {
	c := NewController(3, 0)

	tests := []struct {
		name    string
		fc      FunctionCode
		payload []byte
		code    byte
	}{
		{"unknown function", FunctionCode(0x04), []byte{0, 0, 0, 1}, ExcIllegalFunction},
		{"bad force value", FuncForceFlag, []byte{0x00, 0x19, 0x12, 0x34}, ExcIllegalValue},
		{"force of status flag", FuncForceFlag, []byte{0x00, 0x49, 0xff, 0x00}, ExcIllegalAddress},
		{"unmapped words", FuncReadWords, []byte{0x50, 0x00, 0x00, 0x01}, ExcIllegalAddress},
		{"zero words", FuncReadWords, []byte{0x90, 0x00, 0x00, 0x00}, ExcIllegalValue},
		{"status out of range", FuncReadStatusFlags, []byte{0x00, 0x4f, 0x00, 0x02}, ExcIllegalAddress},
		{"bad echo code", FuncEcho, []byte{0x00, 0x01}, ExcIllegalAddress},
		{"short batch", FuncWriteBatchBits, []byte{0x00, 0x10, 0x00, 0x06, 0x02, 0x01}, ExcIllegalValue},
	}

	for _, test := range tests {
		reply := simRequest(t, c, 3, test.fc, test.payload)
		exp := AppendCrc([]byte{3, byte(test.fc) | funcErrorBit, test.code})
		if !cmp.Equal(reply, exp) {
			t.Errorf("%v: got % x, expected % x", test.name, reply, exp)
		}
	}
}

func TestControllerIgnores(t *testing.T) {
	c := NewController(3, 0)

	if r := simRequest(t, c, 4, FuncEcho, []byte{0, 0}); r != nil {
		t.Error("frame for another address answered: ", r)
	}

	frame, _ := EncodeFrame(3, FuncEcho, []byte{0, 0})
	frame[2] ^= 0xff
	if r := c.Handle(frame); r != nil {
		t.Error("corrupt frame answered: ", r)
	}

	if r := simRequest(t, c, Broadcast, FuncForceFlag, []byte{0x00, 0x30, 0xff, 0x00}); r != nil {
		t.Error("broadcast answered: ", r)
	}

	if !c.Input(SERIALINPUT) {
		t.Error("broadcast not applied")
	}

	if len(c.Requests()) != 1 {
		t.Error("only the broadcast should be recorded: ", c.Requests())
	}
}

func TestControllerCorruptReplies(t *testing.T) {
	c := NewController(1, 0)
	c.CorruptReplies(1)

	if err := CheckFrameCrc(simRequest(t, c, 1, FuncEcho, []byte{0, 0})); err == nil {
		t.Fatal("first reply should be corrupt")
	}

	if err := CheckFrameCrc(simRequest(t, c, 1, FuncEcho, []byte{0, 0})); err != nil {
		t.Fatal("second reply should be good: ", err)
	}
}

func TestControllerNoMoveWithoutOrigin(t *testing.T) {
	c := NewController(1, 0)

	simRequest(t, c, 1, FuncForceFlag, []byte{0x00, 0x19, 0xff, 0x00})
	simRequest(t, c, 1, FuncForceFlag, []byte{0x00, 0x1a, 0xff, 0x00})

	if c.Output(BUSY) || c.Output(INP) {
		t.Fatal("drive accepted before return to origin")
	}
}

func TestRegs(t *testing.T) {
	r := NewRegs()
	r.AddWords(10, 2)
	r.AddBits(0x40, 1)

	if err := r.WriteInt32(10, -2, HighWordFirst); err != nil {
		t.Fatal(err)
	}

	if v, _ := r.ReadWord(10); v != 0xffff {
		t.Fatal("high word: ", v)
	}

	if v, _ := r.ReadInt32(10, HighWordFirst); v != -2 {
		t.Fatal("int32 read back: ", v)
	}

	if _, err := r.ReadWord(12); err == nil {
		t.Fatal("read of missing register should fail")
	}

	if err := r.WriteBit(0x41, true); err == nil {
		t.Fatal("write of missing bit should fail")
	}

	bits := []bool{true, false, true, true, false, false, false, false, true}
	packed := packBits(bits)
	if !cmp.Equal(packed, []byte{0x0d, 0x01}) {
		t.Fatalf("packed % x", packed)
	}
	if !cmp.Equal(unpackBits(packed, len(bits)), bits) {
		t.Fatal("unpack mismatch")
	}
}
