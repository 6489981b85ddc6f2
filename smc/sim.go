package smc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ArxtronTech/Matthew-Redo/test"
)

// Controller simulates an LEC controller on the serial link. It serves all
// function codes over an in-memory register map and models the servo,
// return to origin, drive and alarm sequences closely enough to run the
// Axis sequences against it. Used by tests and the smc-sim tool.
type Controller struct {
	address byte
	debug   int
	order   WordOrder

	lock     sync.Mutex
	regs     *Regs
	latency  int
	pending  []pendingChange
	corrupt  int
	silent   bool
	stuck    map[StatusFlag]bool
	requests []Reply
}

type pendingChange struct {
	left  int
	apply func()
}

// Register ranges present in the simulated controller
const (
	simInputBase   = 0x10
	simInputCount  = 0x30
	simOutputBase  = 0x40
	simOutputCount = 0x10
	simStartOpLen  = 2 + StepRecordLen/2
)

// NewController returns a simulated controller answering at address. The
// servo is off and the origin has not been found.
func NewController(address byte, debug int) *Controller {
	regs := NewRegs()
	regs.AddBits(simInputBase, simInputCount)
	regs.AddBits(simOutputBase, simOutputCount)
	regs.AddWords(AddrEquipName, equipNameWords)
	regs.AddWords(AddrStepTable, StepCount*int(StepTableStride))
	regs.AddWords(AddrCurrPos, liveStateWords)
	regs.AddWords(AddrStartOp, simStartOpLen)

	c := &Controller{
		address: address,
		debug:   debug,
		regs:    regs,
		stuck:   make(map[StatusFlag]bool),
	}

	c.SetEquipmentName("LECP6P-LEY25")

	return c
}

// Address returns the controller address
func (c *Controller) Address() byte {
	return c.address
}

// SetWordOrder selects how 32-bit monitor values are stored.
func (c *Controller) SetWordOrder(o WordOrder) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.order = o
}

// SetLatency sets the number of requests it takes for a commanded change
// (servo on, origin found, move complete, alarm cleared) to show up on
// the status flags. 0 applies changes immediately.
func (c *Controller) SetLatency(requests int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.latency = requests
}

// CorruptReplies makes the next n replies go out with a bad CRC.
func (c *Controller) CorruptReplies(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.corrupt = n
}

// SetSilent stops the controller from replying at all.
func (c *Controller) SetSilent(silent bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.silent = silent
}

// StickStatus pins a status flag to value regardless of the model.
func (c *Controller) StickStatus(flag StatusFlag, value bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stuck[flag] = value
}

// ReleaseStatus undoes StickStatus.
func (c *Controller) ReleaseStatus(flag StatusFlag) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.stuck, flag)
}

// RaiseAlarm sets the alarm output. Motion is refused until it is reset.
func (c *Controller) RaiseAlarm() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.setOutput(ALARM, true)
	c.setOutput(BUSY, false)
}

// SetEquipmentName sets the model string, truncated to 16 characters.
func (c *Controller) SetEquipmentName(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	buf := make([]byte, equipNameWords*2)
	copy(buf, name)
	for i, w := range Uint16Array(buf) {
		_ = c.regs.WriteWord(AddrEquipName+uint16(i), w)
	}
}

// Input returns the current value of a state change flag.
func (c *Controller) Input(flag StateChangeFlag) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	v, _ := c.regs.ReadBit(uint16(flag))
	return v
}

// Output returns the modelled value of a status flag.
func (c *Controller) Output(flag StatusFlag) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.output(flag)
}

// Position returns the current position in 0.01 mm.
func (c *Controller) Position() int32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	v, _ := c.regs.ReadInt32(AddrCurrPos, c.order)
	return v
}

// Step reads a step record back from the step table.
func (c *Controller) Step(step int) (StepData, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.record(StepAddress(step))
}

// Requests returns every request the controller accepted, in order.
func (c *Controller) Requests() []Reply {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]Reply(nil), c.requests...)
}

// Handle processes one request frame and returns the reply frame, or nil
// when no reply is due: corrupt frames, frames for other addresses and
// broadcasts are never answered.
func (c *Controller) Handle(frame []byte) []byte {
	req, err := DecodeFrame(frame)
	if err != nil {
		if c.debug >= 1 {
			log.Printf("SMC sim %d: dropping frame: %v: %v\n", c.address, err, test.HexDump(frame))
		}
		return nil
	}

	if req.Address != c.address && req.Address != Broadcast {
		return nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	req.Payload = append([]byte(nil), req.Payload...)
	c.requests = append(c.requests, req)

	c.tick()

	if c.debug >= 2 {
		log.Printf("SMC sim %d req: %v\n", c.address, req)
	}

	payload, exc := c.process(req)

	if req.Address == Broadcast || c.silent {
		return nil
	}

	var out []byte
	if exc != 0 {
		out, _ = EncodeFrame(c.address, req.Function|funcErrorBit, []byte{exc})
	} else {
		out, _ = EncodeFrame(c.address, req.Function, payload)
	}

	if c.corrupt > 0 {
		c.corrupt--
		out[len(out)-1] ^= 0xff
	}

	if c.debug >= 9 {
		log.Printf("SMC sim %d tx: %v\n", c.address, test.HexDump(out))
	}

	return out
}

// FramePort delivers whole request frames and accepts reply frames.
type FramePort interface {
	ReadFrame() ([]byte, error)
	Write(p []byte) (int, error)
}

// Serve answers requests from port on behalf of controllers sharing one
// line, until port is closed. Write errors are passed to errorCallback and
// do not stop the loop.
func Serve(port FramePort, errorCallback func(error), controllers ...*Controller) error {
	for {
		frame, err := port.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if len(frame) == 0 {
			continue
		}

		for _, c := range controllers {
			reply := c.Handle(frame)
			if reply == nil {
				continue
			}

			if _, err := port.Write(reply); err != nil {
				errorCallback(fmt.Errorf("sim %d: error writing reply: %w", c.address, err))
			}
		}
	}
}

func (c *Controller) process(req Reply) ([]byte, byte) {
	p := req.Payload

	switch req.Function {
	case FuncReadStateChangeFlags:
		return c.readBits(p, simInputBase, simInputBase+simInputCount)
	case FuncReadStatusFlags:
		return c.readBits(p, simOutputBase, simOutputBase+simOutputCount)
	case FuncReadWords:
		return c.readWords(p)
	case FuncForceFlag:
		return c.force(p)
	case FuncEcho:
		if len(p) < 2 {
			return nil, ExcIllegalValue
		}
		if DecodeBE(p, 2) != uint32(echoTestCode) {
			return nil, ExcIllegalAddress
		}
		return p, 0
	case FuncWriteBatchBits:
		return c.writeBits(p)
	case FuncWriteWords:
		return c.writeWords(p)
	}

	return nil, ExcIllegalFunction
}

func (c *Controller) readBits(p []byte, lo, hi int) ([]byte, byte) {
	if len(p) != 4 {
		return nil, ExcIllegalValue
	}

	start, count := Uint16Array(p)[0], Uint16Array(p)[1]
	if count == 0 || count > 8*(MaxPayloadLen-1) {
		return nil, ExcIllegalValue
	}
	if int(start) < lo || int(start)+int(count) > hi {
		return nil, ExcIllegalAddress
	}

	flags := make([]bool, count)
	for i := range flags {
		adr := start + uint16(i)
		if adr >= simOutputBase {
			flags[i] = c.output(StatusFlag(adr))
		} else {
			flags[i], _ = c.regs.ReadBit(adr)
		}
	}

	data := packBits(flags)
	return append([]byte{byte(len(data))}, data...), 0
}

func (c *Controller) readWords(p []byte) ([]byte, byte) {
	if len(p) != 4 {
		return nil, ExcIllegalValue
	}

	start, count := Uint16Array(p)[0], Uint16Array(p)[1]
	if count == 0 || int(count)*2 > MaxPayloadLen-1 {
		return nil, ExcIllegalValue
	}
	if !c.regs.HasWords(start, int(count)) {
		return nil, ExcIllegalAddress
	}

	words := make([]uint16, count)
	for i := range words {
		words[i], _ = c.regs.ReadWord(start + uint16(i))
	}

	data := PutUint16Array(words...)
	return append([]byte{byte(len(data))}, data...), 0
}

func (c *Controller) force(p []byte) ([]byte, byte) {
	if len(p) != 4 {
		return nil, ExcIllegalValue
	}

	flag := StateChangeFlag(DecodeBE(p, 2))
	if !c.regs.HasBits(uint16(flag), 1) || uint16(flag) >= simOutputBase {
		return nil, ExcIllegalAddress
	}

	var on bool
	switch {
	case p[2] == forceOn && p[3] == 0:
		on = true
	case p[2] == forceOff && p[3] == 0:
	default:
		return nil, ExcIllegalValue
	}

	c.setInput(flag, on)

	return p, 0
}

func (c *Controller) writeBits(p []byte) ([]byte, byte) {
	if len(p) < 5 {
		return nil, ExcIllegalValue
	}

	start, count := Uint16Array(p[:4])[0], Uint16Array(p[:4])[1]
	n := int(p[4])
	if count == 0 || n != (int(count)+7)/8 || len(p) != 5+n {
		return nil, ExcIllegalValue
	}
	if int(start) < simInputBase || int(start)+int(count) > simInputBase+simInputCount {
		return nil, ExcIllegalAddress
	}

	for i, v := range unpackBits(p[5:], int(count)) {
		c.setInput(StateChangeFlag(start+uint16(i)), v)
	}

	return p[:4], 0
}

func (c *Controller) writeWords(p []byte) ([]byte, byte) {
	if len(p) < 5 {
		return nil, ExcIllegalValue
	}

	start, count := Uint16Array(p[:4])[0], Uint16Array(p[:4])[1]
	n := int(p[4])
	if count == 0 || n != int(count)*2 || len(p) != 5+n {
		return nil, ExcIllegalValue
	}
	if !c.regs.HasWords(start, int(count)) {
		return nil, ExcIllegalAddress
	}

	for i, w := range Uint16Array(p[5:]) {
		_ = c.regs.WriteWord(start+uint16(i), w)
	}

	if start <= AddrStartOp && AddrStartOp < start+count {
		op, _ := c.regs.ReadWord(AddrStartOp)
		if op&startOpRequest != 0 {
			_ = c.regs.WriteWord(AddrStartOp, op&^startOpRequest)
			if rec, err := c.record(AddrSpecifiedData); err == nil {
				c.startMove(rec)
			}
		}
	}

	return p[:4], 0
}

// output returns the value of a status flag with stuck flags applied.
func (c *Controller) output(flag StatusFlag) bool {
	if v, ok := c.stuck[flag]; ok {
		return v
	}
	v, _ := c.regs.ReadBit(uint16(flag))
	return v
}

func (c *Controller) setOutput(flag StatusFlag, v bool) {
	_ = c.regs.WriteBit(uint16(flag), v)
}

func (c *Controller) input(flag StateChangeFlag) bool {
	v, _ := c.regs.ReadBit(uint16(flag))
	return v
}

// setInput stores an input flag and runs the sequence a rising or falling
// edge starts.
func (c *Controller) setInput(flag StateChangeFlag, v bool) {
	old := c.input(flag)
	_ = c.regs.WriteBit(uint16(flag), v)
	if old == v {
		return
	}

	switch flag {
	case SVON:
		c.later(func() {
			c.setOutput(SVRE, v)
			if !v {
				c.setOutput(BUSY, false)
			}
		})
	case SETUP:
		if v && c.output(SVRE) && !c.output(SETON) && !c.output(ALARM) {
			c.setOutput(BUSY, true)
			c.later(func() {
				c.setOutput(BUSY, false)
				c.setOutput(SETON, true)
				_ = c.regs.WriteInt32(AddrCurrPos, 0, c.order)
			})
		}
	case DRIVE:
		if v {
			if rec, err := c.record(StepAddress(c.selectedStep())); err == nil {
				c.startMove(rec)
			}
		}
	case RESET:
		if v && c.output(ALARM) {
			c.later(func() { c.setOutput(ALARM, false) })
		}
	}
}

func (c *Controller) selectedStep() int {
	step := 0
	for i := 0; i < stepSelectBits; i++ {
		if c.input(IN0 + StateChangeFlag(i)) {
			step |= 1 << uint(i)
		}
	}
	return step
}

func (c *Controller) record(address uint16) (StepData, error) {
	words := make([]uint16, StepRecordLen/2)
	for i := range words {
		var err error
		words[i], err = c.regs.ReadWord(address + uint16(i))
		if err != nil {
			return StepData{}, err
		}
	}
	return DecodeStepData(PutUint16Array(words...))
}

// startMove begins a move if the axis is able to.
func (c *Controller) startMove(rec StepData) {
	if !c.output(SVRE) || !c.output(SETON) || c.output(ALARM) {
		return
	}

	pos, _ := c.regs.ReadInt32(AddrCurrPos, c.order)
	target := int32(rec.Position)
	if rec.MoveMode == MoveRelative {
		target = pos + int32(rec.Position)
	}

	step := c.selectedStep()

	c.setOutput(INP, false)
	c.setOutput(BUSY, true)
	_ = c.regs.WriteInt32(AddrTargPos, target, c.order)
	_ = c.regs.WriteWord(AddrCurrSpd, uint16(rec.Speed))
	_ = c.regs.WriteWord(AddrCurrThrust, uint16(rec.MoveForce))

	c.later(func() {
		_ = c.regs.WriteInt32(AddrCurrPos, target, c.order)
		_ = c.regs.WriteWord(AddrCurrSpd, 0)
		_ = c.regs.WriteWord(AddrDriveDataNo, uint16(step))
		for i := 0; i < stepSelectBits; i++ {
			c.setOutput(OUT0+StatusFlag(i), step&(1<<uint(i)) != 0)
		}
		c.setOutput(BUSY, false)
		c.setOutput(INP, true)
	})
}

func (c *Controller) later(apply func()) {
	if c.latency <= 0 {
		apply()
		return
	}
	c.pending = append(c.pending, pendingChange{left: c.latency, apply: apply})
}

// tick advances pending changes by one request.
func (c *Controller) tick() {
	remaining := c.pending[:0]
	var due []func()
	for _, p := range c.pending {
		p.left--
		if p.left <= 0 {
			due = append(due, p.apply)
		} else {
			remaining = append(remaining, p)
		}
	}
	c.pending = remaining
	for _, apply := range due {
		apply()
	}
}
