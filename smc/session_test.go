package smc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueryEcho(t *testing.T) {
	s, _, ft := newSimSession()

	reply, err := s.Query(1, FuncEcho, []byte{0, 0, 0xab, 0xcd})
	if err != nil {
		t.Fatal("query error: ", err)
	}

	if reply.Address != 1 || reply.Function != FuncEcho {
		t.Fatal("wrong reply: ", reply)
	}

	if !cmp.Equal(reply.Payload, []byte{0, 0, 0xab, 0xcd}) {
		t.Fatal("wrong payload: ", reply)
	}

	if ft.writeCount() != 1 {
		t.Fatal("expected one transmission, got ", ft.writeCount())
	}

	if ft.acquired != 1 || ft.released != 1 {
		t.Fatal("device lock not balanced: ", ft.acquired, ft.released)
	}
}

func TestQueryWaitsForStableLength(t *testing.T) {
	s, _, ft := newSimSession()
	ft.split = true

	reply, err := s.Query(1, FuncEcho, []byte{0, 0, 1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal("query error: ", err)
	}

	if len(reply.Payload) != 8 {
		t.Fatal("reply was read before it was complete: ", reply)
	}
}

func TestQueryBroadcast(t *testing.T) {
	s, c, ft := newSimSession()

	_, err := s.Query(Broadcast, FuncWriteWords, []byte{0x04, 0x00, 0x00, 0x01, 0x02, 0x00, 0x01})
	if err != nil {
		t.Fatal("broadcast error: ", err)
	}

	if ft.reads != 0 {
		t.Fatal("broadcast must never read a reply")
	}

	if ft.writeCount() != 1 {
		t.Fatal("expected one transmission, got ", ft.writeCount())
	}

	if r, _ := c.regs.ReadWord(AddrStepTable); r != 1 {
		t.Fatal("controller did not see broadcast write")
	}
}

func TestQueryRetryRecovers(t *testing.T) {
	s, c, ft := newSimSession()
	c.CorruptReplies(3)

	reply, err := s.Query(1, FuncEcho, []byte{0, 0, 7})
	if err != nil {
		t.Fatal("query should recover on attempt 4: ", err)
	}

	if reply.Payload[2] != 7 {
		t.Fatal("wrong reply: ", reply)
	}

	if n := ft.writeCount(); n != 4 {
		t.Fatal("expected 4 transmissions, got ", n)
	}
}

func TestQueryRetryGivesUp(t *testing.T) {
	s, c, ft := newSimSession()
	c.CorruptReplies(100)

	_, err := s.Query(1, FuncEcho, []byte{0, 0})
	if !errors.Is(err, ErrChecksum) {
		t.Fatal("expected checksum error, got: ", err)
	}

	if !isOpError(err) {
		t.Fatal("error does not carry operation details: ", err)
	}

	if n := ft.writeCount(); n != MaxAttempts {
		t.Fatalf("expected %d transmissions, got %d", MaxAttempts, n)
	}

	if ft.released != ft.acquired {
		t.Fatal("device lock not released")
	}
}

func TestQueryShortReplyRetried(t *testing.T) {
	calls := 0
	c := NewController(1, 0)
	ft := &fakeTransport{respond: func(req []byte) []byte {
		calls++
		if calls == 1 {
			return []byte{0x01, 0x08}
		}
		return c.Handle(req)
	}}
	s := NewSession(ft, "sim", 0)
	s.SetTiming(testTiming)

	if _, err := s.Query(1, FuncEcho, []byte{0, 0}); err != nil {
		t.Fatal("short reply should be retried: ", err)
	}

	if n := ft.writeCount(); n != 2 {
		t.Fatal("expected 2 transmissions, got ", n)
	}
}

func TestQueryTimeout(t *testing.T) {
	s, c, ft := newSimSession()
	c.SetSilent(true)

	_, err := s.Query(1, FuncEcho, []byte{0, 0})
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("expected timeout, got: ", err)
	}

	if errors.Is(err, ErrChecksum) {
		t.Fatal("timeout must be distinct from checksum failure")
	}

	if n := ft.writeCount(); n != 1 {
		t.Fatal("timeouts are not retried, got transmissions: ", n)
	}
}

func TestQueryProtocolError(t *testing.T) {
	s, _, ft := newSimSession()

	// test code must be 0000
	_, err := s.Query(1, FuncEcho, []byte{0x12, 0x34})

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("expected protocol error, got: ", err)
	}

	if pe.Code != ExcIllegalAddress {
		t.Fatal("wrong code: ", pe.Code)
	}

	if n := ft.writeCount(); n != 1 {
		t.Fatal("protocol errors are not retried, got transmissions: ", n)
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	if msg := (&ProtocolError{Code: 1}).Error(); msg != "An undefined function code was specified." {
		t.Error("code 1: ", msg)
	}

	if msg := (&ProtocolError{Code: 9}).Error(); msg != "SMC protocol error with code 9" {
		t.Error("code 9: ", msg)
	}
}

func TestQueryRejectsBeforeIO(t *testing.T) {
	s, _, ft := newSimSession()

	if _, err := s.Query(1, FunctionCode(0x04), nil); !errors.Is(err, ErrRange) {
		t.Error("unknown function should be a range error: ", err)
	}

	if _, err := s.Query(1, FuncEcho, make([]byte, MaxPayloadLen+1)); !errors.Is(err, ErrRange) {
		t.Error("oversize payload should be a range error: ", err)
	}

	if ft.writeCount() != 0 || ft.acquired != 0 {
		t.Fatal("rejected queries must not touch the transport")
	}
}

func TestQueryTransportErrors(t *testing.T) {
	ft := &fakeTransport{writeErr: errors.New("port gone")}
	s := NewSession(ft, "dev", 0)
	s.SetTiming(testTiming)

	_, err := s.Query(1, FuncEcho, []byte{0, 0})
	if !errors.Is(err, ErrTransport) {
		t.Fatal("expected transport error, got: ", err)
	}

	var oe *OpError
	if !errors.As(err, &oe) || oe.Device != "dev" || oe.Function != FuncEcho {
		t.Fatalf("op error details wrong: %#v", oe)
	}

	ft = &fakeTransport{shortSend: true}
	s = NewSession(ft, "dev", 0)
	s.SetTiming(testTiming)

	if _, err := s.Query(1, FuncEcho, []byte{0, 0}); !errors.Is(err, ErrTransport) {
		t.Fatal("short write should be a transport error, got: ", err)
	}
}

func TestQueryDiscardsStaleInput(t *testing.T) {
	s, _, ft := newSimSession()
	ft.rx = []byte{0xde, 0xad}

	reply, err := s.Query(1, FuncEcho, []byte{0, 0, 1})
	if err != nil {
		t.Fatal("stale bytes should be dropped: ", err)
	}

	if reply.Payload[2] != 1 {
		t.Fatal("wrong reply: ", reply)
	}
}

func TestQueryWrongAddress(t *testing.T) {
	c := NewController(2, 0)
	ft := &fakeTransport{respond: func(req []byte) []byte {
		req = append([]byte(nil), req...)
		req[0] = 2
		return c.Handle(AppendCrc(req[:len(req)-2]))
	}}
	s := NewSession(ft, "sim", 0)
	s.SetTiming(testTiming)

	if _, err := s.Query(1, FuncEcho, []byte{0, 0}); !errors.Is(err, ErrBadReply) {
		t.Fatal("reply from another address should be rejected: ", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrTimeout) || !IsRetryable(ErrChecksum) {
		t.Error("timeouts and checksum failures are retryable")
	}
	if IsRetryable(ErrRange) || IsRetryable(&ProtocolError{Code: 1}) {
		t.Error("range and protocol errors are not retryable")
	}
}
