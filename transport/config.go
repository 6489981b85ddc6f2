package transport

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Driver names
const (
	DriverBugst    = "bugst"
	DriverJacobsa  = "jacobsa"
	DriverGoburrow = "goburrow"
	DriverFifo     = "fifo"
)

// fifoPrefix marks a port that is a named pipe pair instead of a tty
const fifoPrefix = "fifo:"

// Config describes one named serial device
type Config struct {
	Name     string  `yaml:"name"`
	Port     string  `yaml:"port"`
	Baud     int     `yaml:"baud"`
	Parity   string  `yaml:"parity"`
	DataBits int     `yaml:"dataBits"`
	StopBits float64 `yaml:"stopBits"`
	// FlowControl enables RTS/CTS handshaking
	FlowControl bool `yaml:"flowControl"`
	// RS485 enables kernel RTS direction control for half duplex
	// adapters
	RS485 bool `yaml:"rs485"`
	// Driver forces a backend. Empty picks one from the other options.
	Driver string `yaml:"driver"`
	// ReadTimeout bounds a single blocking read of the port. It only
	// controls how quickly the reader notices a closed port.
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// Defaults for fields left empty
const (
	DefaultBaud        = 38400
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultParity      = "N"
	DefaultReadTimeout = 100 * time.Millisecond
)

// WithDefaults returns a copy of c with empty fields filled in.
func (c Config) WithDefaults() Config {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	c.Parity = strings.ToUpper(c.Parity[:1])
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// DriverName returns the backend that will open the port. Only jacobsa
// does flow control, and it also does rs485.
func (c Config) DriverName() string {
	switch {
	case strings.HasPrefix(c.Port, fifoPrefix):
		return DriverFifo
	case c.Driver != "":
		return c.Driver
	case c.FlowControl:
		return DriverJacobsa
	case c.RS485:
		return DriverGoburrow
	}
	return DriverBugst
}

// Validate checks the config after defaults have been applied.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("device name is required")
	}

	if c.Port == "" {
		return errors.Errorf("device %v: port is required", c.Name)
	}

	if c.Baud < 0 {
		return errors.Errorf("device %v: invalid baud rate %d", c.Name, c.Baud)
	}

	if c.DataBits < 5 || c.DataBits > 8 {
		return errors.Errorf("device %v: data bits must be 5-8, got %d", c.Name, c.DataBits)
	}

	switch c.Parity {
	case "N", "E", "O", "M", "S":
	default:
		return errors.Errorf("device %v: unknown parity %q", c.Name, c.Parity)
	}

	if c.StopBits != 1 && c.StopBits != 1.5 && c.StopBits != 2 {
		return errors.Errorf("device %v: stop bits must be 1, 1.5 or 2, got %v", c.Name, c.StopBits)
	}

	driver := c.DriverName()
	switch driver {
	case DriverBugst, DriverFifo:
	case DriverJacobsa, DriverGoburrow:
		if c.StopBits == 1.5 {
			return errors.Errorf("device %v: driver %v does not support 1.5 stop bits", c.Name, driver)
		}
		if c.Parity == "M" || c.Parity == "S" {
			return errors.Errorf("device %v: driver %v does not support parity %v", c.Name, driver, c.Parity)
		}
	default:
		return errors.Errorf("device %v: unknown driver %q", c.Name, driver)
	}

	if c.FlowControl && driver != DriverJacobsa {
		return errors.Errorf("device %v: flow control needs the %v driver", c.Name, DriverJacobsa)
	}

	if c.RS485 && driver != DriverGoburrow && driver != DriverJacobsa {
		return errors.Errorf("device %v: rs485 needs the %v or %v driver", c.Name, DriverGoburrow, DriverJacobsa)
	}

	return nil
}
