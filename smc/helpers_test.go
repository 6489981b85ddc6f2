package smc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// testTiming keeps every wait short
var testTiming = Timing{
	SendDelay:       time.Millisecond,
	ReplyTimeout:    50 * time.Millisecond,
	RetryDelay:      time.Millisecond,
	StablePolls:     2,
	PollInterval:    time.Millisecond,
	ServoOnTimeout:  100 * time.Millisecond,
	HomeTimeout:     100 * time.Millisecond,
	ServoOffTimeout: 100 * time.Millisecond,
	AlarmTimeout:    100 * time.Millisecond,
	InPosTimeout:    100 * time.Millisecond,
}

// fakeTransport hands each written frame to respond and queues whatever it
// returns as the reply. If split is set, the reply shows up in two parts
// so the queue length changes between samples.
type fakeTransport struct {
	lock      sync.Mutex
	respond   func(req []byte) []byte
	split     bool
	rx        []byte
	late      []byte
	writes    [][]byte
	lenCalls  int
	reads     int
	acquired  int
	released  int
	writeErr  error
	shortSend bool
}

func (f *fakeTransport) WriteRaw(device string, data []byte) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.writeErr != nil {
		return 0, f.writeErr
	}

	f.writes = append(f.writes, append([]byte(nil), data...))

	if f.respond != nil {
		reply := f.respond(data)
		if f.split && len(reply) > 1 {
			f.rx = append(f.rx, reply[:len(reply)/2]...)
			f.late = append(f.late, reply[len(reply)/2:]...)
		} else {
			f.rx = append(f.rx, reply...)
		}
	}

	if f.shortSend {
		return len(data) - 1, nil
	}

	return len(data), nil
}

func (f *fakeTransport) ReadRaw(device string, max int) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.reads++
	if max > len(f.rx) {
		max = len(f.rx)
	}
	ret := append([]byte(nil), f.rx[:max]...)
	f.rx = f.rx[max:]
	return ret, nil
}

func (f *fakeTransport) QueueLength(device string) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.lenCalls++
	n := len(f.rx)
	if len(f.late) > 0 {
		f.rx = append(f.rx, f.late...)
		f.late = nil
	}
	return n, nil
}

func (f *fakeTransport) Acquire(device string) (func(), error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.acquired++
	return func() {
		f.lock.Lock()
		f.released++
		f.lock.Unlock()
	}, nil
}

func (f *fakeTransport) writeCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.writes)
}

func (f *fakeTransport) lastWrite() []byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

// newSimSession returns a session wired to a simulated controller at
// address 1.
func newSimSession() (*Session, *Controller, *fakeTransport) {
	c := NewController(1, 0)
	ft := &fakeTransport{respond: c.Handle}
	s := NewSession(ft, "sim", 0)
	s.SetTiming(testTiming)
	return s, c, ft
}

// describe renders a request in a form that is easy to compare in tests
func describe(req Reply) string {
	p := req.Payload
	switch req.Function {
	case FuncForceFlag:
		state := "off"
		if p[2] == forceOn {
			state = "on"
		}
		return fmt.Sprintf("force %v %v", StateChangeFlag(DecodeBE(p, 2)), state)
	case FuncReadStatusFlags:
		return fmt.Sprintf("read %v", StatusFlag(DecodeBE(p, 2)))
	case FuncReadStateChangeFlags:
		return fmt.Sprintf("read %v", StateChangeFlag(DecodeBE(p, 2)))
	case FuncWriteBatchBits:
		return fmt.Sprintf("batch %v %d 0x%02x", StateChangeFlag(DecodeBE(p, 2)), DecodeBE(p[2:], 2), p[5])
	case FuncWriteWords:
		return fmt.Sprintf("write 0x%04x %d", DecodeBE(p, 2), DecodeBE(p[2:], 2))
	case FuncReadWords:
		return fmt.Sprintf("read words 0x%04x %d", DecodeBE(p, 2), DecodeBE(p[2:], 2))
	}
	return req.String()
}

func describeAll(reqs []Reply) []string {
	ret := make([]string, len(reqs))
	for i, r := range reqs {
		ret[i] = describe(r)
	}
	return ret
}

func isOpError(err error) bool {
	var oe *OpError
	return errors.As(err, &oe)
}
