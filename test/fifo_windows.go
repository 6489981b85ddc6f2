//go:build windows

package test

import "errors"

var errNoFifo = errors.New("fifo ports are not supported on windows")

// Fifo is not available on windows
type Fifo struct {
}

// NewFifoA always fails on windows
func NewFifoA(name string) (*Fifo, error) {
	return nil, errNoFifo
}

// NewFifoB always fails on windows
func NewFifoB(name string) (*Fifo, error) {
	return nil, errNoFifo
}

func (f *Fifo) Read(b []byte) (int, error) {
	return 0, errNoFifo
}

func (f *Fifo) Write(b []byte) (int, error) {
	return 0, errNoFifo
}

// Close does nothing
func (f *Fifo) Close() error {
	return nil
}
