package test

import (
	"bytes"
	"io"
	"sync"
)

// IoSim simulates a serial line. NewIoSim returns both ends; bytes written
// to one end are read from the other. Both ends implement io.ReadWriteCloser.
type IoSim struct {
	rx   *wire
	tx   *wire
	once sync.Once
}

// wire carries bytes in one direction
type wire struct {
	lock   sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newWire() *wire {
	w := &wire{}
	w.cond = sync.NewCond(&w.lock)
	return w
}

// NewIoSim creates a new IO sim and returns the A and B side
func NewIoSim() (*IoSim, *IoSim) {
	a2b, b2a := newWire(), newWire()
	return &IoSim{rx: b2a, tx: a2b}, &IoSim{rx: a2b, tx: b2a}
}

func (ios *IoSim) Write(d []byte) (int, error) {
	w := ios.tx
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}

	n, err := w.buf.Write(d)
	w.cond.Broadcast()
	return n, err
}

// Read blocks until there is data to read or either end is closed. After
// close, buffered data is still returned before io.EOF.
func (ios *IoSim) Read(d []byte) (int, error) {
	w := ios.rx
	w.lock.Lock()
	defer w.lock.Unlock()

	for w.buf.Len() == 0 && !w.closed {
		w.cond.Wait()
	}

	if w.buf.Len() == 0 {
		return 0, io.EOF
	}

	return w.buf.Read(d)
}

// Close shuts down both directions. Blocked reads on either end return.
func (ios *IoSim) Close() error {
	ios.once.Do(func() {
		for _, w := range []*wire{ios.rx, ios.tx} {
			w.lock.Lock()
			w.closed = true
			w.cond.Broadcast()
			w.lock.Unlock()
		}
	})
	return nil
}
