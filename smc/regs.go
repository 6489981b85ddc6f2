package smc

import "fmt"

// Regs is the memory of a simulated controller: 16-bit word registers and
// single bit flags. Only addresses added with AddWords or AddBits exist;
// accesses anywhere else fail, which the controller reports as an illegal
// address. Regs is not safe for concurrent use on its own.
type Regs struct {
	words map[uint16]uint16
	bits  map[uint16]bool
}

// NewRegs returns an empty register map
func NewRegs() *Regs {
	return &Regs{
		words: make(map[uint16]uint16),
		bits:  make(map[uint16]bool),
	}
}

// AddWords adds count word registers starting at address. Existing
// registers keep their value.
func (r *Regs) AddWords(address uint16, count int) {
	for i := 0; i < count; i++ {
		adr := address + uint16(i)
		if _, ok := r.words[adr]; !ok {
			r.words[adr] = 0
		}
	}
}

// AddBits adds count bit flags starting at address.
func (r *Regs) AddBits(address uint16, count int) {
	for i := 0; i < count; i++ {
		adr := address + uint16(i)
		if _, ok := r.bits[adr]; !ok {
			r.bits[adr] = false
		}
	}
}

// HasWords returns true if every register in the range exists.
func (r *Regs) HasWords(address uint16, count int) bool {
	for i := 0; i < count; i++ {
		if _, ok := r.words[address+uint16(i)]; !ok {
			return false
		}
	}
	return true
}

// HasBits returns true if every bit in the range exists.
func (r *Regs) HasBits(address uint16, count int) bool {
	for i := 0; i < count; i++ {
		if _, ok := r.bits[address+uint16(i)]; !ok {
			return false
		}
	}
	return true
}

// ReadWord reads a word register
func (r *Regs) ReadWord(address uint16) (uint16, error) {
	v, ok := r.words[address]
	if !ok {
		return 0, fmt.Errorf("register 0x%04x not found", address)
	}
	return v, nil
}

// WriteWord writes a word register
func (r *Regs) WriteWord(address uint16, value uint16) error {
	if _, ok := r.words[address]; !ok {
		return fmt.Errorf("register 0x%04x not found", address)
	}
	r.words[address] = value
	return nil
}

// ReadBit reads a bit flag
func (r *Regs) ReadBit(address uint16) (bool, error) {
	v, ok := r.bits[address]
	if !ok {
		return false, fmt.Errorf("bit 0x%04x not found", address)
	}
	return v, nil
}

// WriteBit writes a bit flag
func (r *Regs) WriteBit(address uint16, value bool) error {
	if _, ok := r.bits[address]; !ok {
		return fmt.Errorf("bit 0x%04x not found", address)
	}
	r.bits[address] = value
	return nil
}

// ReadInt32 reads two consecutive registers as a signed value
func (r *Regs) ReadInt32(address uint16, order WordOrder) (int32, error) {
	first, err := r.ReadWord(address)
	if err != nil {
		return 0, err
	}
	second, err := r.ReadWord(address + 1)
	if err != nil {
		return 0, err
	}
	return order.Join(first, second), nil
}

// WriteInt32 writes a signed value to two consecutive registers
func (r *Regs) WriteInt32(address uint16, value int32, order WordOrder) error {
	first, second := order.Split(value)
	if err := r.WriteWord(address, first); err != nil {
		return err
	}
	return r.WriteWord(address+1, second)
}

// packBits packs flags LSB first into bytes, the layout used by the flag
// read and batch write functions.
func packBits(flags []bool) []byte {
	ret := make([]byte, (len(flags)+7)/8)
	for i, f := range flags {
		if f {
			ret[i/8] |= 1 << uint(i%8)
		}
	}
	return ret
}

// unpackBits is the inverse of packBits.
func unpackBits(data []byte, count int) []bool {
	ret := make([]bool, count)
	for i := range ret {
		ret[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return ret
}
