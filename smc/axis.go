package smc

import (
	"errors"
	"log"
	"sync"
)

// AxisState is the orchestrator's view of an actuator
type AxisState int

// Defined axis states
const (
	StateOff AxisState = iota
	StateHoming
	StateReady
	StateDriving
	StateFaulted
)

func (st AxisState) String() string {
	switch st {
	case StateOff:
		return "off"
	case StateHoming:
		return "homing"
	case StateReady:
		return "ready"
	case StateDriving:
		return "driving"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// startOpRequest is written to AddrStartOp to run the specified data record
const startOpRequest uint16 = 0x0100

// Axis runs motion sequences on one controller. Each sequence blocks the
// calling goroutine until the controller reports completion or a bounded
// wait expires. An Axis must not run two sequences at once.
type Axis struct {
	session *Session
	address byte

	lock  sync.Mutex
	state AxisState
}

// NewAxis returns an axis for the controller at address.
func NewAxis(session *Session, address byte) *Axis {
	return &Axis{session: session, address: address}
}

// Address returns the controller address
func (a *Axis) Address() byte {
	return a.address
}

// Session returns the session the axis talks through
func (a *Axis) Session() *Session {
	return a.session
}

// State returns the last state the axis was driven into.
func (a *Axis) State() AxisState {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.state
}

func (a *Axis) setState(st AxisState) {
	a.lock.Lock()
	old := a.state
	a.state = st
	a.lock.Unlock()

	if old != st && a.session.debug >= 1 {
		log.Printf("SMC %v axis %d: %v -> %v\n", a.session.device, a.address, old, st)
	}
}

func (a *Axis) fail(op string, err error) error {
	return a.session.opError(op, a.address, 0, err)
}

func (a *Axis) readStatus(flag StatusFlag) func() (bool, error) {
	return func() (bool, error) {
		return a.session.ReadStatusFlag(a.address, flag)
	}
}

// MotorOn selects serial input, turns the servo on and, if the actuator
// has not found its origin yet, runs the return to origin sequence.
func (a *Axis) MotorOn() error {
	const op = "motor on"
	s, t := a.session, a.session.timing

	if err := s.ForceFlag(a.address, SERIALINPUT, true); err != nil {
		return a.fail(op, err)
	}

	if err := s.ForceFlag(a.address, SVON, true); err != nil {
		return a.fail(op, err)
	}

	if err := poll("servo on", t.ServoOnTimeout, t.PollInterval, a.readStatus(SVRE)); err != nil {
		return a.fail(op, err)
	}

	a.setState(StateHoming)

	setup := false
	homeErr := poll("return to origin", t.HomeTimeout, t.PollInterval, func() (bool, error) {
		seton, err := s.ReadStatusFlag(a.address, SETON)
		if err != nil || seton {
			return seton, err
		}

		busy, err := s.ReadStatusFlag(a.address, BUSY)
		if err != nil || busy {
			return false, err
		}

		if err := s.ForceFlag(a.address, SETUP, true); err != nil {
			return false, err
		}
		setup = true
		return false, nil
	})

	if setup {
		if err := s.ForceFlag(a.address, SETUP, false); err != nil && homeErr == nil {
			homeErr = err
		}
	}

	if homeErr != nil {
		a.setState(StateFaulted)
		return a.fail(op, homeErr)
	}

	a.setState(StateReady)
	return nil
}

// MotorOff turns the servo off and returns the controller to parallel
// input.
func (a *Axis) MotorOff() error {
	const op = "motor off"
	s, t := a.session, a.session.timing

	if err := s.ForceFlag(a.address, SERIALINPUT, false); err != nil {
		return a.fail(op, err)
	}

	if err := s.ForceFlag(a.address, SVON, false); err != nil {
		return a.fail(op, err)
	}

	svre := a.readStatus(SVRE)
	err := poll("servo off", t.ServoOffTimeout, t.PollInterval, func() (bool, error) {
		on, err := svre()
		return !on, err
	})
	if err != nil {
		return a.fail(op, err)
	}

	a.setState(StateOff)
	return nil
}

// CheckError returns true if the controller alarm output is active.
func (a *Axis) CheckError() (bool, error) {
	alarm, err := a.session.ReadStatusFlag(a.address, ALARM)
	if err != nil {
		return false, a.fail("check error", err)
	}

	if alarm {
		a.setState(StateFaulted)
	}

	return alarm, nil
}

// ClearError holds RESET until the alarm output clears, then releases it.
func (a *Axis) ClearError() error {
	const op = "clear error"
	s, t := a.session, a.session.timing

	err := poll("alarm reset", t.AlarmTimeout, t.PollInterval, func() (bool, error) {
		if err := s.ForceFlag(a.address, RESET, true); err != nil {
			return false, err
		}
		alarm, err := s.ReadStatusFlag(a.address, ALARM)
		return !alarm, err
	})
	if err != nil {
		return a.fail(op, err)
	}

	if err := s.ForceFlag(a.address, RESET, false); err != nil {
		return a.fail(op, err)
	}

	if a.State() == StateFaulted {
		a.setState(StateReady)
	}

	return nil
}

// clearPendingError clears the alarm if one is active.
func (a *Axis) clearPendingError() error {
	alarm, err := a.CheckError()
	if err != nil || !alarm {
		return err
	}

	log.Printf("SMC %v axis %d: alarm active, resetting\n", a.session.device, a.address)
	return a.ClearError()
}

func checkStep(step int) error {
	if step < 0 || step >= StepCount {
		return rangeErrorf("step %d not in [0, %d]", step, StepCount-1)
	}
	return nil
}

// SetStep selects the step record that the next Run executes.
func (a *Axis) SetStep(step int) error {
	const op = "set step"

	if err := checkStep(step); err != nil {
		return a.fail(op, err)
	}

	if err := a.clearPendingError(); err != nil {
		return a.fail(op, err)
	}

	err := a.session.WriteBatchBits(a.address, IN0, stepSelectBits, []byte{byte(step)})
	if err != nil {
		return a.fail(op, err)
	}

	return nil
}

// Run drives the selected step and waits for the in position output.
// DRIVE is released even when the wait times out.
func (a *Axis) Run() error {
	const op = "run"
	s, t := a.session, a.session.timing

	if err := a.clearPendingError(); err != nil {
		return a.fail(op, err)
	}

	if err := s.ForceFlag(a.address, DRIVE, true); err != nil {
		return a.fail(op, err)
	}

	a.setState(StateDriving)

	runErr := poll("move to position", t.InPosTimeout, t.PollInterval, a.readStatus(INP))

	if err := s.ForceFlag(a.address, DRIVE, false); err != nil {
		a.setState(StateFaulted)
		return a.fail(op, errors.Join(runErr, err))
	}

	if runErr != nil {
		a.setState(StateFaulted)
		return a.fail(op, runErr)
	}

	a.setState(StateReady)
	return nil
}

// RunStep turns the motor on, selects step and runs it.
func (a *Axis) RunStep(step int) error {
	const op = "run step"

	if err := checkStep(step); err != nil {
		return a.fail(op, err)
	}

	if err := a.MotorOn(); err != nil {
		return a.fail(op, err)
	}

	if err := a.SetStep(step); err != nil {
		return a.fail(op, err)
	}

	if err := a.Run(); err != nil {
		return a.fail(op, err)
	}

	return nil
}

// StopStep releases DRIVE.
func (a *Axis) StopStep() error {
	if err := a.session.ForceFlag(a.address, DRIVE, false); err != nil {
		return a.fail("stop step", err)
	}

	if a.State() == StateDriving {
		a.setState(StateReady)
	}

	return nil
}

// WriteStep stores a step record in the controller step table.
func (a *Axis) WriteStep(step int, record StepData) error {
	const op = "write step"

	if err := checkStep(step); err != nil {
		return a.fail(op, err)
	}

	record, err := a.session.prepareStep(record)
	if err != nil {
		return a.fail(op, err)
	}

	if err := a.session.WriteWords(a.address, StepAddress(step), record.Words()); err != nil {
		return a.fail(op, err)
	}

	return nil
}

// ReadStep reads a step record back from the controller step table.
func (a *Axis) ReadStep(step int) (StepData, error) {
	const op = "read step"

	if err := checkStep(step); err != nil {
		return StepData{}, a.fail(op, err)
	}

	words, err := a.session.ReadWords(a.address, StepAddress(step), StepRecordLen/2)
	if err != nil {
		return StepData{}, a.fail(op, err)
	}

	record, err := DecodeStepData(PutUint16Array(words...))
	if err != nil {
		return StepData{}, a.fail(op, err)
	}

	return record, nil
}

// RunWithSpecified runs a one off motion described by record without
// touching the step table. The motor is turned off afterwards, also when
// the in position wait times out.
func (a *Axis) RunWithSpecified(record StepData) error {
	const op = "run specified"
	s, t := a.session, a.session.timing

	record, err := s.prepareStep(record)
	if err != nil {
		return a.fail(op, err)
	}

	if err := s.WriteWords(a.address, AddrSpecifiedData, record.Words()); err != nil {
		return a.fail(op, err)
	}

	if err := a.MotorOn(); err != nil {
		return a.fail(op, err)
	}

	if err := a.clearPendingError(); err != nil {
		return a.fail(op, err)
	}

	if err := s.WriteWords(a.address, AddrStartOp, []uint16{startOpRequest}); err != nil {
		return a.fail(op, err)
	}

	a.setState(StateDriving)

	runErr := poll("move to position", t.InPosTimeout, t.PollInterval, a.readStatus(INP))

	if err := a.MotorOff(); err != nil {
		a.setState(StateFaulted)
		return a.fail(op, errors.Join(runErr, err))
	}

	if runErr != nil {
		return a.fail(op, runErr)
	}

	return nil
}

// LiveState reads position, speed, thrust, target and active step.
func (a *Axis) LiveState() (LiveState, error) {
	st, err := a.session.LiveState(a.address)
	if err != nil {
		return LiveState{}, a.fail("live state", err)
	}
	return st, nil
}
