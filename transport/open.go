package transport

import (
	"io"
	"strings"
	"sync/atomic"

	goburrow "github.com/goburrow/serial"
	jacobsa "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	bugst "go.bug.st/serial"

	"github.com/ArxtronTech/Matthew-Redo/test"
)

// OpenPort opens the port described by c with the backend c selects.
// Config defaults must already be applied.
func OpenPort(c Config) (io.ReadWriteCloser, error) {
	switch c.DriverName() {
	case DriverFifo:
		return openFifo(c)
	case DriverJacobsa:
		return openJacobsa(c)
	case DriverGoburrow:
		return openGoburrow(c)
	case DriverBugst:
		return openBugst(c)
	}
	return nil, errors.Errorf("unknown driver %q", c.DriverName())
}

func openBugst(c Config) (io.ReadWriteCloser, error) {
	mode := &bugst.Mode{
		BaudRate: c.Baud,
		DataBits: c.DataBits,
	}

	switch c.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	case "M":
		mode.Parity = bugst.MarkParity
	case "S":
		mode.Parity = bugst.SpaceParity
	default:
		mode.Parity = bugst.NoParity
	}

	switch c.StopBits {
	case 1.5:
		mode.StopBits = bugst.OnePointFiveStopBits
	case 2:
		mode.StopBits = bugst.TwoStopBits
	default:
		mode.StopBits = bugst.OneStopBit
	}

	port, err := bugst.Open(c.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %v", c.Port)
	}

	// a read timeout lets the reader goroutine notice Close
	if err := port.SetReadTimeout(c.ReadTimeout); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "error setting read timeout on %v", c.Port)
	}

	return port, nil
}

func openJacobsa(c Config) (io.ReadWriteCloser, error) {
	options := jacobsa.OpenOptions{
		PortName:          c.Port,
		BaudRate:          uint(c.Baud),
		DataBits:          uint(c.DataBits),
		StopBits:          uint(c.StopBits),
		RTSCTSFlowControl: c.FlowControl,
		Rs485Enable:       c.RS485,
		MinimumReadSize:   0,
		// VTIME is in tenths of a second
		InterCharacterTimeout: uint(c.ReadTimeout.Milliseconds()/100) * 100,
	}

	if options.InterCharacterTimeout == 0 {
		options.InterCharacterTimeout = 100
	}

	if c.RS485 {
		options.Rs485RtsHighDuringSend = true
	}

	switch c.Parity {
	case "E":
		options.ParityMode = jacobsa.PARITY_EVEN
	case "O":
		options.ParityMode = jacobsa.PARITY_ODD
	default:
		options.ParityMode = jacobsa.PARITY_NONE
	}

	port, err := jacobsa.Open(options)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %v", c.Port)
	}

	// an expired inter character timeout reads as io.EOF
	return newIdleFilter(port, func(err error) bool { return err == io.EOF }), nil
}

func openGoburrow(c Config) (io.ReadWriteCloser, error) {
	config := &goburrow.Config{
		Address:  c.Port,
		BaudRate: c.Baud,
		DataBits: c.DataBits,
		StopBits: int(c.StopBits),
		Parity:   c.Parity,
		Timeout:  c.ReadTimeout,
		RS485: goburrow.RS485Config{
			Enabled:           c.RS485,
			RtsHighDuringSend: c.RS485,
		},
	}

	port, err := goburrow.Open(config)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %v", c.Port)
	}

	return newIdleFilter(port, func(err error) bool { return err == goburrow.ErrTimeout }), nil
}

func openFifo(c Config) (io.ReadWriteCloser, error) {
	name := strings.TrimPrefix(c.Port, fifoPrefix)
	port, err := test.NewFifoB(name)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening fifo %v", name)
	}
	return port, nil
}

// idleFilter hides read timeouts from the queue reader so it keeps going
// until the port is closed.
type idleFilter struct {
	io.ReadWriteCloser
	idle   func(error) bool
	closed atomic.Bool
}

func newIdleFilter(port io.ReadWriteCloser, idle func(error) bool) *idleFilter {
	return &idleFilter{ReadWriteCloser: port, idle: idle}
}

func (f *idleFilter) Read(b []byte) (int, error) {
	n, err := f.ReadWriteCloser.Read(b)
	if err != nil && !f.closed.Load() && f.idle(err) {
		return n, nil
	}
	return n, err
}

func (f *idleFilter) Close() error {
	f.closed.Store(true)
	return f.ReadWriteCloser.Close()
}
