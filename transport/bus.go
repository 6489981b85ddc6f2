// Package transport provides named serial devices for the smc engine. A
// Bus opens each configured device once, buffers its input in a Queue and
// hands out exclusive use of a device one query at a time.
package transport

import (
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ArxtronTech/Matthew-Redo/test"
)

// FrameGap is the line silence that ends a frame for Queue.ReadFrame. At
// 9600 baud 3.5 characters take about 4ms; this leaves headroom for USB
// adapters.
const FrameGap = 20 * time.Millisecond

type device struct {
	config Config
	queue  *Queue
	lock   sync.Mutex
}

// Bus is a set of named serial devices. It implements smc.Transport.
type Bus struct {
	lock    sync.Mutex
	devices map[string]*device
	debug   int
}

// NewBus returns an empty bus.
// Debug levels:
// 1 - log open/close
// 9 - dump raw reads and writes
func NewBus(debug int) *Bus {
	return &Bus{
		devices: make(map[string]*device),
		debug:   debug,
	}
}

// Add registers a device. The port is not opened until Open.
func (b *Bus) Add(c Config) error {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.devices[c.Name]; ok {
		return errors.Errorf("device %v already added", c.Name)
	}

	b.devices[c.Name] = &device{config: c}
	return nil
}

// Open opens the port of a registered device.
func (b *Bus) Open(name string) error {
	d, err := b.device(name)
	if err != nil {
		return err
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if b.isOpen(d) {
		return nil
	}

	port, err := OpenPort(d.config)
	if err != nil {
		return errors.Wrapf(err, "device %v", name)
	}

	if b.debug >= 1 {
		log.Printf("transport: opened %v on %v (%v driver)\n", name, d.config.Port, d.config.DriverName())
	}

	b.setQueue(d, NewQueue(port, FrameGap))
	return nil
}

// setQueue swaps the queue of d. d.queue is only touched under b.lock.
func (b *Bus) setQueue(d *device, q *Queue) {
	b.lock.Lock()
	d.queue = q
	b.lock.Unlock()
}

func (b *Bus) isOpen(d *device) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return d.queue != nil
}

// OpenAll opens every registered device.
func (b *Bus) OpenAll() error {
	for _, name := range b.Devices() {
		if err := b.Open(name); err != nil {
			return err
		}
	}
	return nil
}

// Attach makes port available as device name. The device is registered if
// it was not added before. Attach is how simulated lines are connected.
func (b *Bus) Attach(name string, port io.ReadWriteCloser) error {
	b.lock.Lock()
	d, ok := b.devices[name]
	if !ok {
		d = &device{config: Config{Name: name, Port: "attached"}}
		b.devices[name] = d
	}
	b.lock.Unlock()

	d.lock.Lock()
	defer d.lock.Unlock()

	if b.isOpen(d) {
		return errors.Errorf("device %v is already open", name)
	}

	b.setQueue(d, NewQueue(port, FrameGap))
	return nil
}

// Close closes the port of a device. The device stays registered and can
// be opened again.
func (b *Bus) Close(name string) error {
	d, err := b.device(name)
	if err != nil {
		return err
	}

	// Acquire holds d.lock for a whole query. Detaching under b.lock
	// makes a query in flight fail on its next read.
	b.lock.Lock()
	q := d.queue
	d.queue = nil
	b.lock.Unlock()

	if q == nil {
		return nil
	}

	err = q.Close()

	if b.debug >= 1 {
		log.Printf("transport: closed %v\n", name)
	}

	return errors.Wrapf(err, "error closing %v", name)
}

// CloseAll closes every open device and returns the first error.
func (b *Bus) CloseAll() error {
	var first error
	for _, name := range b.Devices() {
		if err := b.Close(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Devices returns the registered device names, sorted.
func (b *Bus) Devices() []string {
	b.lock.Lock()
	defer b.lock.Unlock()

	ret := make([]string, 0, len(b.devices))
	for name := range b.devices {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Config returns the config of a registered device.
func (b *Bus) Config(name string) (Config, error) {
	d, err := b.device(name)
	if err != nil {
		return Config{}, err
	}
	return d.config, nil
}

func (b *Bus) device(name string) (*device, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	d, ok := b.devices[name]
	if !ok {
		return nil, errors.Errorf("unknown device %q", name)
	}
	return d, nil
}

// queue returns the queue of an open device. The device lock is not
// taken; Acquire serializes whole queries instead.
func (b *Bus) queue(name string) (*Queue, error) {
	d, err := b.device(name)
	if err != nil {
		return nil, err
	}

	b.lock.Lock()
	q := d.queue
	b.lock.Unlock()

	if q == nil {
		return nil, errors.Errorf("device %v is not open", name)
	}
	return q, nil
}

// Acquire locks device until release is called.
func (b *Bus) Acquire(name string) (func(), error) {
	d, err := b.device(name)
	if err != nil {
		return nil, err
	}

	d.lock.Lock()

	if !b.isOpen(d) {
		d.lock.Unlock()
		return nil, errors.Errorf("device %v is not open", name)
	}

	var once sync.Once
	return func() { once.Do(d.lock.Unlock) }, nil
}

// WriteRaw writes data to the device.
func (b *Bus) WriteRaw(name string, data []byte) (int, error) {
	q, err := b.queue(name)
	if err != nil {
		return 0, err
	}

	if b.debug >= 9 {
		log.Printf("transport %v tx: %v\n", name, test.HexDump(data))
	}

	n, err := q.Write(data)
	if err != nil {
		return n, errors.Wrapf(err, "error writing %v", name)
	}
	return n, nil
}

// ReadRaw returns up to max bytes already received on the device.
func (b *Bus) ReadRaw(name string, max int) ([]byte, error) {
	q, err := b.queue(name)
	if err != nil {
		return nil, err
	}

	data := q.Take(max)

	if b.debug >= 9 {
		log.Printf("transport %v rx: %v\n", name, test.HexDump(data))
	}

	return data, nil
}

// QueueLength returns the number of received bytes waiting on the device.
func (b *Bus) QueueLength(name string) (int, error) {
	q, err := b.queue(name)
	if err != nil {
		return 0, err
	}

	n, err := q.Len()
	if err != nil {
		return 0, errors.Wrapf(err, "error reading %v", name)
	}
	return n, nil
}
