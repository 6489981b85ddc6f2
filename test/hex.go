package test

import (
	"fmt"
	"strings"
)

// HexDump returns data as space separated hex bytes, for debug logs
func HexDump(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i != 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", v)
	}
	return b.String()
}
