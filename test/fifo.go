//go:build !windows

package test

import (
	"io"
	"log"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Fifo emulates a serial line with a pair of named pipes, so a simulated
// controller and the CLI can run as separate processes. The A side creates
// the pipes and removes them on Close; the B side only opens them.
type Fifo struct {
	fread  io.ReadCloser
	fwrite io.WriteCloser
	owned  []string
}

func fifoNames(name string) (a2b, b2a string) {
	return name + ".a2b", name + ".b2a"
}

// NewFifoA creates the pipes and opens the A side. This must be called
// before NewFifoB.
func NewFifoA(name string) (*Fifo, error) {
	a2b, b2a := fifoNames(name)

	for _, p := range []string{a2b, b2a} {
		os.Remove(p)
		if err := syscall.Mknod(p, syscall.S_IFIFO|0666, 0); err != nil {
			return nil, errors.Wrapf(err, "mknod %v", p)
		}
	}

	f, err := openFifo(b2a, a2b)
	if err != nil {
		return nil, err
	}
	f.owned = []string{a2b, b2a}

	return f, nil
}

// NewFifoB opens the B side of pipes created by NewFifoA.
func NewFifoB(name string) (*Fifo, error) {
	a2b, b2a := fifoNames(name)
	return openFifo(a2b, b2a)
}

func openFifo(rx, tx string) (*Fifo, error) {
	// O_RDWR keeps open from blocking until the other side shows up
	fread, err := os.OpenFile(rx, os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "error opening read fifo")
	}

	fwrite, err := os.OpenFile(tx, os.O_RDWR, 0600)
	if err != nil {
		fread.Close()
		return nil, errors.Wrap(err, "error opening write fifo")
	}

	return &Fifo{fread: fread, fwrite: fwrite}, nil
}

func (f *Fifo) Read(b []byte) (int, error) {
	return f.fread.Read(b)
}

func (f *Fifo) Write(b []byte) (int, error) {
	return f.fwrite.Write(b)
}

// Close closes the pipes, and removes them if this is the A side
func (f *Fifo) Close() error {
	if err := f.fwrite.Close(); err != nil {
		log.Println("Error closing write fifo: ", err)
	}

	if err := f.fread.Close(); err != nil {
		log.Println("Error closing read fifo: ", err)
	}

	for _, p := range f.owned {
		os.Remove(p)
	}

	return nil
}
