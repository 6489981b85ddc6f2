package transport

import (
	"io"
	"sync"
	"time"
)

// Queue buffers everything received on a port so callers can ask how many
// bytes are waiting and take them without blocking. A goroutine reads the
// port for the life of the queue because there is no way to stop a blocked
// Read; closing the port ends it.
type Queue struct {
	port io.ReadWriteCloser
	gap  time.Duration

	lock sync.Mutex
	cond *sync.Cond
	buf  []byte
	last time.Time
	err  error
}

// NewQueue starts reading port. gap is the silence that ends a frame for
// ReadFrame.
func NewQueue(port io.ReadWriteCloser, gap time.Duration) *Queue {
	q := &Queue{port: port, gap: gap}
	q.cond = sync.NewCond(&q.lock)
	go q.readInput()
	return q
}

func (q *Queue) readInput() {
	tmp := make([]byte, 256)
	for {
		n, err := q.port.Read(tmp)

		q.lock.Lock()
		if n > 0 {
			q.buf = append(q.buf, tmp[:n]...)
			q.last = time.Now()
		}
		if err != nil {
			q.err = err
		}
		q.cond.Broadcast()
		q.lock.Unlock()

		if err != nil {
			return
		}
	}
}

// Len returns the number of buffered bytes. Once the port has failed and
// the buffer is drained, the read error is returned.
func (q *Queue) Len() (int, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.buf) == 0 && q.err != nil {
		return 0, q.err
	}

	return len(q.buf), nil
}

// Take removes and returns up to max buffered bytes.
func (q *Queue) Take(max int) []byte {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.take(max)
}

func (q *Queue) take(max int) []byte {
	if max > len(q.buf) || max < 0 {
		max = len(q.buf)
	}
	ret := make([]byte, max)
	copy(ret, q.buf)
	q.buf = q.buf[max:]
	return ret
}

// Flush drops all buffered data and returns how many bytes were dropped.
func (q *Queue) Flush() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := len(q.buf)
	q.buf = nil
	return n
}

// ReadFrame blocks until data arrives, then returns everything received
// once the line has been quiet for the gap. It returns io.EOF when the port
// is closed with nothing buffered.
func (q *Queue) ReadFrame() ([]byte, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for len(q.buf) == 0 {
		if q.err != nil {
			return nil, q.err
		}
		q.cond.Wait()
	}

	for {
		quiet := time.Since(q.last)
		if quiet >= q.gap || q.err != nil {
			return q.take(-1), nil
		}

		q.lock.Unlock()
		time.Sleep(q.gap - quiet)
		q.lock.Lock()
	}
}

// Write passes data straight to the port.
func (q *Queue) Write(data []byte) (int, error) {
	return q.port.Write(data)
}

// Close closes the port, which stops the reader.
func (q *Queue) Close() error {
	return q.port.Close()
}
