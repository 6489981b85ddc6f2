package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/oklog/run"
	"github.com/pkg/errors"

	"github.com/ArxtronTech/Matthew-Redo/config"
	"github.com/ArxtronTech/Matthew-Redo/smc"
	"github.com/ArxtronTech/Matthew-Redo/transport"
)

func usage() {
	fmt.Println("Usage: smc [options] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")

	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  %-12v %v\n", n, commands[n].help)
	}

	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	os.Exit(-1)
}

func main() {
	flag.Usage = usage

	flagConfig := flag.String("config", config.DefaultPath(), "bench file, env "+config.EnvPath)
	flagAxes := flag.String("axes", "", "comma separated axes to command, default all")
	flagDebug := flag.Int("debug", -1, "debug level, overrides the bench file")
	flagSpeed := flag.Int("speed", 50, "speed for move in mm/s")

	flag.Parse()

	cmd, args, words, err := parseArgs(flag.Args())
	if err != nil {
		log.Println(err)
		usage()
	}

	bench, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatal(err)
	}

	if *flagDebug >= 0 {
		bench.Debug = *flagDebug
	}

	axes, err := selectAxes(bench, *flagAxes)
	if err != nil {
		log.Fatal(err)
	}

	bus, err := bench.NewBus()
	if err != nil {
		log.Fatal(err)
	}

	if err := bus.OpenAll(); err != nil {
		log.Fatal(err)
	}

	move := smc.StepData{
		MoveMode:   smc.MoveAbsolute,
		Speed:      int64(*flagSpeed),
		Accel:      1000,
		Decel:      1000,
		PushSpeed:  20,
		MoveForce:  100,
		InPosition: 50,
	}

	var g run.Group

	g.Add(func() error {
		return runAxes(bench, bus, axes, os.Stdout, func(c *cmdContext) error {
			c.args = args
			c.words = words
			c.move = move
			return cmd.run(c)
		})
	}, func(error) {
		// unblocks queries in flight
		bus.CloseAll()
	})

	g.Add(run.SignalHandler(context.Background(),
		syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	bus.CloseAll()

	if err != nil {
		log.Println(err)
		os.Exit(-1)
	}
}

// selectAxes returns the axes named in list, or all of them.
func selectAxes(bench *config.Bench, list string) ([]config.Axis, error) {
	if list == "" {
		if len(bench.Axes) == 0 {
			return nil, errors.New("bench file has no axes")
		}
		return bench.Axes, nil
	}

	var ret []config.Axis
	for _, name := range strings.Split(list, ",") {
		a, err := bench.FindAxis(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		ret = append(ret, a)
	}
	return ret, nil
}

// runAxes runs fn for every axis at once. Axes on the same device share a
// session, and the bus serializes their queries.
func runAxes(bench *config.Bench, bus *transport.Bus, axes []config.Axis, out io.Writer, fn func(*cmdContext) error) error {
	sessions := make(map[string]*smc.Session)
	for _, a := range axes {
		if _, ok := sessions[a.Device]; !ok {
			sessions[a.Device] = bench.NewSession(bus, a.Device)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(axes))

	for i, a := range axes {
		wg.Add(1)
		go func(i int, a config.Axis) {
			defer wg.Done()
			c := &cmdContext{
				bench: bench,
				name:  a.Name,
				axis:  smc.NewAxis(sessions[a.Device], byte(a.Address)),
				out:   out,
			}
			if err := fn(c); err != nil {
				errs[i] = errors.Wrap(err, a.Name)
				log.Println(errs[i])
				return
			}
			log.Printf("%v: done, state %v\n", a.Name, c.axis.State())
		}(i, a)
	}

	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d axes failed", failed, len(axes))
	}
	return nil
}
