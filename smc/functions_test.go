package smc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestForceFlag(t *testing.T) {
	s, c, ft := newSimSession()

	if err := s.ForceFlag(1, SVON, true); err != nil {
		t.Fatal("force error: ", err)
	}

	exp := AppendCrc([]byte{0x01, 0x05, 0x00, 0x19, 0xff, 0x00})
	if !cmp.Equal(ft.lastWrite(), exp) {
		t.Fatalf("sent % x, expected % x", ft.lastWrite(), exp)
	}

	if !c.Input(SVON) {
		t.Fatal("controller did not see SVON")
	}

	if err := s.ForceFlag(1, SVON, false); err != nil {
		t.Fatal("force error: ", err)
	}

	if c.Input(SVON) {
		t.Fatal("controller did not see SVON off")
	}
}

func TestForceFlagMismatch(t *testing.T) {
	c := NewController(1, 0)
	ft := &fakeTransport{respond: func(req []byte) []byte {
		reply := c.Handle(req)
		// controller reports the flag still off
		reply[4] = 0x00
		return AppendCrc(reply[:len(reply)-2])
	}}
	s := NewSession(ft, "sim", 0)
	s.SetTiming(testTiming)

	err := s.ForceFlag(1, DRIVE, true)
	if !errors.Is(err, ErrForceFailed) {
		t.Fatal("expected force failure, got: ", err)
	}

	if err.Error() == "" || !isOpError(err) {
		t.Fatal("force failure should name the operation: ", err)
	}
}

func TestBroadcastRejected(t *testing.T) {
	s, _, ft := newSimSession()

	checks := map[string]error{}
	_, checks["read state change flags"] = s.ReadStateChangeFlags(Broadcast, IN0, 1)
	_, checks["read status flags"] = s.ReadStatusFlags(Broadcast, BUSY, 1)
	_, checks["read words"] = s.ReadWords(Broadcast, AddrCurrPos, 1)
	checks["force"] = s.ForceFlag(Broadcast, SVON, true)
	_, checks["echo"] = s.Echo(Broadcast, []byte{1})

	for name, err := range checks {
		if !errors.Is(err, ErrRange) {
			t.Errorf("%v to broadcast should be a range error, got: %v", name, err)
		}
	}

	if ft.writeCount() != 0 {
		t.Fatal("rejected calls must not transmit")
	}
}

func TestBroadcastWritesAllowed(t *testing.T) {
	s, c, ft := newSimSession()

	if err := s.WriteBatchBits(Broadcast, IN0, 6, []byte{0x05}); err != nil {
		t.Fatal("broadcast batch write: ", err)
	}

	if err := s.WriteWords(Broadcast, AddrStepTable, []uint16{1, 2}); err != nil {
		t.Fatal("broadcast word write: ", err)
	}

	if ft.reads != 0 {
		t.Fatal("broadcast writes must not read")
	}

	if !c.Input(IN0) || c.Input(IN1) || !c.Input(IN2) {
		t.Fatal("batch bits not applied")
	}
}

func TestInvalidFlagRejected(t *testing.T) {
	s, _, ft := newSimSession()

	if err := s.ForceFlag(1, StateChangeFlag(0x16), true); !errors.Is(err, ErrRange) {
		t.Error("undefined flag should be a range error: ", err)
	}

	if _, err := s.ReadStatusFlags(1, StatusFlag(0x47), 1); !errors.Is(err, ErrRange) {
		t.Error("undefined status flag should be a range error: ", err)
	}

	if err := s.WriteBatchBits(1, IN0, 6, []byte{1, 2}); !errors.Is(err, ErrRange) {
		t.Error("wrong data length should be a range error: ", err)
	}

	if err := s.WriteWords(1, AddrStepTable, nil); !errors.Is(err, ErrRange) {
		t.Error("empty word write should be a range error: ", err)
	}

	if ft.writeCount() != 0 {
		t.Fatal("rejected calls must not transmit")
	}
}

func TestReadFlags(t *testing.T) {
	s, c, _ := newSimSession()
	c.StickStatus(SVRE, true)
	c.StickStatus(INP, true)

	data, err := s.ReadStatusFlags(1, BUSY, 8)
	if err != nil {
		t.Fatal("read error: ", err)
	}

	// BUSY, SVRE, SETON, INP ... LSB first
	if !cmp.Equal(data, []byte{0x0a}) {
		t.Fatalf("read % x, expected 0a", data)
	}

	inp, err := s.ReadStatusFlag(1, INP)
	if err != nil || !inp {
		t.Fatal("INP should read true: ", inp, err)
	}

	if err := s.ForceFlag(1, SERIALINPUT, true); err != nil {
		t.Fatal(err)
	}

	on, err := s.ReadStateChangeFlag(1, SERIALINPUT)
	if err != nil || !on {
		t.Fatal("SERIALINPUT should read back true: ", on, err)
	}
}

func TestReadWriteWords(t *testing.T) {
	s, _, ft := newSimSession()

	if err := s.WriteWords(1, StepAddress(3), []uint16{0x0102, 0x0304}); err != nil {
		t.Fatal("write error: ", err)
	}

	exp := AppendCrc([]byte{0x01, 0x10, 0x04, 0x30, 0x00, 0x02, 0x04, 0x01, 0x02, 0x03, 0x04})
	if !cmp.Equal(ft.lastWrite(), exp) {
		t.Fatalf("sent % x, expected % x", ft.lastWrite(), exp)
	}

	words, err := s.ReadWords(1, StepAddress(3), 2)
	if err != nil {
		t.Fatal("read error: ", err)
	}

	if diff := cmp.Diff([]uint16{0x0102, 0x0304}, words); diff != "" {
		t.Fatal("words:\n", diff)
	}

	_, err = s.ReadWords(1, 0x5000, 1)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Code != ExcIllegalAddress {
		t.Fatal("unmapped address should give protocol error 2: ", err)
	}
}

func TestWriteBatchBitsPayload(t *testing.T) {
	s, _, ft := newSimSession()

	if err := s.WriteBatchBits(1, IN0, 6, []byte{0x2a}); err != nil {
		t.Fatal(err)
	}

	exp := AppendCrc([]byte{0x01, 0x0f, 0x00, 0x10, 0x00, 0x06, 0x01, 0x2a})
	if !cmp.Equal(ft.lastWrite(), exp) {
		t.Fatalf("sent % x, expected % x", ft.lastWrite(), exp)
	}
}

func TestEcho(t *testing.T) {
	s, _, ft := newSimSession()

	data, err := s.Echo(1, []byte("ping"))
	if err != nil {
		t.Fatal("echo error: ", err)
	}

	if string(data) != "ping" {
		t.Fatal("echo returned: ", string(data))
	}

	exp := AppendCrc([]byte{0x01, 0x08, 0x00, 0x00, 'p', 'i', 'n', 'g'})
	if !cmp.Equal(ft.lastWrite(), exp) {
		t.Fatalf("sent % x, expected % x", ft.lastWrite(), exp)
	}
}

func TestEquipmentName(t *testing.T) {
	s, c, _ := newSimSession()
	c.SetEquipmentName("LECP6N")

	name, err := s.EquipmentName(1)
	if err != nil {
		t.Fatal(err)
	}

	if name != "LECP6N" {
		t.Fatalf("name %q", name)
	}
}
