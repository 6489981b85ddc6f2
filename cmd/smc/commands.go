package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/ArxtronTech/Matthew-Redo/config"
	"github.com/ArxtronTech/Matthew-Redo/smc"
)

type command struct {
	args int
	// words commands take names instead of numbers
	words bool
	help  string
	run   func(c *cmdContext) error
}

// cmdContext is what a command sees for one axis
type cmdContext struct {
	bench *config.Bench
	name  string
	axis  *smc.Axis
	args  []int
	words []string
	out   io.Writer
	move  smc.StepData
}

func (c *cmdContext) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, "%v: "+format+"\n", append([]interface{}{c.name}, a...)...)
}

var commands = map[string]command{
	"on": {0, false, "servo on and return to origin", func(c *cmdContext) error {
		return c.axis.MotorOn()
	}},
	"off": {0, false, "servo off", func(c *cmdContext) error {
		return c.axis.MotorOff()
	}},
	"run-step": {1, false, "run-step <n>: move using step record n", func(c *cmdContext) error {
		return c.axis.RunStep(c.args[0])
	}},
	"stop": {0, false, "release DRIVE", func(c *cmdContext) error {
		return c.axis.StopStep()
	}},
	"move": {1, false, "move <pos>: move to pos (0.01 mm) without a stored record", func(c *cmdContext) error {
		rec := c.move
		rec.Position = int64(c.args[0])
		return c.axis.RunWithSpecified(rec)
	}},
	"write-step": {0, false, "store the step records of the bench file", func(c *cmdContext) error {
		steps := c.bench.StepsFor(c.name)
		for _, s := range steps {
			if err := c.axis.WriteStep(s.Step, s.Record); err != nil {
				return err
			}
		}
		c.printf("wrote %d step records", len(steps))
		return nil
	}},
	"read-step": {1, false, "read-step <n>: print step record n", func(c *cmdContext) error {
		rec, err := c.axis.ReadStep(c.args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "error encoding step record")
		}
		c.printf("step %d\n%s", c.args[0], out)
		return nil
	}},
	"state": {0, false, "print position, speed and thrust", func(c *cmdContext) error {
		st, err := c.axis.LiveState()
		if err != nil {
			return err
		}
		c.printf("%v", st)
		return nil
	}},
	"name": {0, false, "print the controller equipment name", func(c *cmdContext) error {
		name, err := c.axis.Session().EquipmentName(c.axis.Address())
		if err != nil {
			return err
		}
		c.printf("%v", name)
		return nil
	}},
	"echo": {0, false, "check the controller answers", func(c *cmdContext) error {
		data := []byte{0x12, 0x34}
		ret, err := c.axis.Session().Echo(c.axis.Address(), data)
		if err != nil {
			return err
		}
		if string(ret) != string(data) {
			return errors.Errorf("echo returned % x, sent % x", ret, data)
		}
		c.printf("echo ok")
		return nil
	}},
	"check-error": {0, false, "print the alarm state", func(c *cmdContext) error {
		alarm, err := c.axis.CheckError()
		if err != nil {
			return err
		}
		c.printf("alarm: %v", alarm)
		return nil
	}},
	"clear-error": {0, false, "reset an active alarm", func(c *cmdContext) error {
		return c.axis.ClearError()
	}},
	"flag": {1, true, "flag <name>: read a status or state change flag", func(c *cmdContext) error {
		name := strings.ToUpper(c.words[0])
		s, addr := c.axis.Session(), c.axis.Address()

		if f, err := smc.ParseStatusFlag(name); err == nil {
			on, err := s.ReadStatusFlag(addr, f)
			if err != nil {
				return err
			}
			c.printf("%v %v", f, onOff(on))
			return nil
		}

		f, err := smc.ParseStateChangeFlag(name)
		if err != nil {
			return errors.Errorf("unknown flag %q", c.words[0])
		}

		on, err := s.ReadStateChangeFlag(addr, f)
		if err != nil {
			return err
		}
		c.printf("%v %v", f, onOff(on))
		return nil
	}},
	"force": {2, true, "force <name> <on|off>: set a state change flag", func(c *cmdContext) error {
		f, err := smc.ParseStateChangeFlag(strings.ToUpper(c.words[0]))
		if err != nil {
			return err
		}

		var on bool
		switch strings.ToLower(c.words[1]) {
		case "on", "1":
			on = true
		case "off", "0":
		default:
			return errors.Errorf("force state must be on or off, got %q", c.words[1])
		}

		if err := c.axis.Session().ForceFlag(c.axis.Address(), f, on); err != nil {
			return err
		}
		c.printf("%v %v", f, onOff(on))
		return nil
	}},
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// parseArgs checks the command name and converts its arguments. Word
// commands get their arguments back unchanged.
func parseArgs(args []string) (command, []int, []string, error) {
	if len(args) < 1 {
		return command{}, nil, nil, errors.New("command is required")
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return command{}, nil, nil, errors.Errorf("unknown command %q", args[0])
	}

	if len(args)-1 != cmd.args {
		return command{}, nil, nil, errors.Errorf("%v takes %d arguments, got %d", args[0], cmd.args, len(args)-1)
	}

	if cmd.words {
		return cmd, nil, args[1:], nil
	}

	var ret []int
	for _, a := range args[1:] {
		v, err := strconv.Atoi(a)
		if err != nil {
			return command{}, nil, nil, errors.Wrapf(err, "%v argument", args[0])
		}
		ret = append(ret, v)
	}

	return cmd, ret, nil, nil
}
