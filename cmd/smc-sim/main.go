package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/oklog/run"
	"github.com/pkg/errors"

	"github.com/ArxtronTech/Matthew-Redo/smc"
	"github.com/ArxtronTech/Matthew-Redo/test"
	"github.com/ArxtronTech/Matthew-Redo/transport"
)

func usage() {
	fmt.Println("Usage: smc-sim -port <tty|fifo:name> [options]")
	flag.PrintDefaults()
	os.Exit(-1)
}

func main() {
	log.Println("SMC controller simulator")

	flagPort := flag.String("port", "", "serial port, or fifo:<name> to create a fifo pair")
	flagBaud := flag.Int("baud", transport.DefaultBaud, "baud rate")
	flagParity := flag.String("parity", transport.DefaultParity, "parity N/E/O")
	flagAddresses := flag.String("addresses", "1", "comma separated controller addresses")
	flagLatency := flag.Int("latency", 2, "requests before a commanded change shows up")
	flagName := flag.String("name", "", "equipment name reported by every controller")
	flagWordOrder := flag.String("wordOrder", "", "word order of 32-bit monitor values")
	flagDebug := flag.Int("debug", 0, "debug level")

	flag.Parse()

	if *flagPort == "" {
		usage()
	}

	order, err := smc.ParseWordOrder(*flagWordOrder)
	if err != nil {
		log.Fatal(err)
	}

	addresses, err := parseAddresses(*flagAddresses)
	if err != nil {
		log.Fatal(err)
	}

	var controllers []*smc.Controller
	for _, a := range addresses {
		c := smc.NewController(a, *flagDebug)
		c.SetLatency(*flagLatency)
		c.SetWordOrder(order)
		if *flagName != "" {
			c.SetEquipmentName(*flagName)
		}
		controllers = append(controllers, c)
	}

	port, err := openPort(transport.Config{
		Name:   "sim",
		Port:   *flagPort,
		Baud:   *flagBaud,
		Parity: *flagParity,
	})
	if err != nil {
		log.Fatal(err)
	}

	queue := transport.NewQueue(port, transport.FrameGap)

	log.Printf("Serving addresses %v on %v\n", addresses, *flagPort)

	var g run.Group

	g.Add(func() error {
		return smc.Serve(queue, func(err error) {
			log.Println("sim error: ", err)
		}, controllers...)
	}, func(error) {
		queue.Close()
	})

	g.Add(run.SignalHandler(context.Background(),
		syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		log.Println("Exiting: ", err)
	}
}

// openPort creates the A side of a fifo pair so the CLI can open the B
// side with the same fifo: port. Real ports go through transport.
func openPort(c transport.Config) (io.ReadWriteCloser, error) {
	if name := strings.TrimPrefix(c.Port, "fifo:"); name != c.Port {
		f, err := test.NewFifoA(name)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return transport.OpenPort(c)
}

func parseAddresses(list string) ([]byte, error) {
	var ret []byte
	seen := make(map[int]bool)

	for _, s := range strings.Split(list, ",") {
		a, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}
		if a < 1 || a > 255 {
			return nil, errors.Errorf("address %d not in 1-255", a)
		}
		if seen[a] {
			return nil, errors.Errorf("address %d listed twice", a)
		}
		seen[a] = true
		ret = append(ret, byte(a))
	}

	return ret, nil
}
