package smc

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		v     uint32
		width int
		exp   []byte
	}{
		{0, 1, []byte{0}},
		{0xff, 1, []byte{0xff}},
		{0, 2, []byte{0, 0}},
		{0x1234, 2, []byte{0x12, 0x34}},
		{0xffff, 2, []byte{0xff, 0xff}},
		{0, 4, []byte{0, 0, 0, 0}},
		{0x01020304, 4, []byte{1, 2, 3, 4}},
		{math.MaxUint32, 4, []byte{0xff, 0xff, 0xff, 0xff}},
	}

	for _, test := range tests {
		b := EncodeBE(test.v, test.width)
		if !cmp.Equal(b, test.exp) {
			t.Errorf("EncodeBE(0x%x, %d) = % x, expected % x", test.v, test.width, b, test.exp)
		}
		if v := DecodeBE(b, test.width); v != test.v {
			t.Errorf("DecodeBE(% x) = 0x%x, expected 0x%x", b, v, test.v)
		}
	}
}

func TestCodecInt32(t *testing.T) {
	for _, v := range []int32{0, -1, 1, math.MinInt32, math.MaxInt32, -123456} {
		if got := DecodeInt32(EncodeInt32(v)); got != v {
			t.Errorf("int32 round trip of %d gave %d", v, got)
		}
	}

	if !cmp.Equal(EncodeInt32(math.MinInt32), []byte{0x80, 0, 0, 0}) {
		t.Error("min int32 encoded wrong: ", EncodeInt32(math.MinInt32))
	}
}

func TestCodecBadWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("width 3 should panic")
		}
	}()
	EncodeBE(1, 3)
}

func TestUint16Array(t *testing.T) {
	data := PutUint16Array(0x0102, 0xa0b0)
	if !cmp.Equal(data, []byte{1, 2, 0xa0, 0xb0}) {
		t.Fatal("PutUint16Array: ", data)
	}
	if diff := cmp.Diff([]uint16{0x0102, 0xa0b0}, Uint16Array(data)); diff != "" {
		t.Fatal("Uint16Array:\n", diff)
	}
}

func TestWordOrder(t *testing.T) {
	if v := HighWordFirst.Join(0x0001, 0x86a0); v != 100000 {
		t.Error("high first join: ", v)
	}
	if v := LowWordFirst.Join(0x86a0, 0x0001); v != 100000 {
		t.Error("low first join: ", v)
	}
	if v := HighWordFirst.Join(0xffff, 0xff38); v != -200 {
		t.Error("negative join: ", v)
	}

	for _, o := range []WordOrder{HighWordFirst, LowWordFirst} {
		for _, v := range []int32{0, -1, math.MaxInt32, math.MinInt32, 12345678} {
			if got := o.Join(o.Split(v)); got != v {
				t.Errorf("%v: split/join of %d gave %d", o, v, got)
			}
		}
	}

	o, err := ParseWordOrder("low-first")
	if err != nil || o != LowWordFirst {
		t.Error("parse low-first: ", o, err)
	}

	o, err = ParseWordOrder("")
	if err != nil || o != HighWordFirst {
		t.Error("parse empty: ", o, err)
	}

	if _, err := ParseWordOrder("middle"); !errors.Is(err, ErrRange) {
		t.Error("parse of bad order should be a range error: ", err)
	}
}
