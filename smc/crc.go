package smc

import "encoding/binary"

// Crc16 calculates the MODBUS CRC-16 of buf. On the wire the result is
// sent least significant byte first, see AppendCrc.
func Crc16(buf []byte) uint16 {
	crc := uint16(0xFFFF)

	for _, b := range buf {
		crc ^= uint16(b) // XOR byte into least sig. byte of crc

		for i := 8; i != 0; i-- { // Loop over each bit
			if (crc & 0x0001) != 0 { // If the LSB is set
				crc >>= 1 // Shift right and XOR 0xA001
				crc ^= 0xA001
			} else { // Else LSB is not set
				crc >>= 1 // Just shift right
			}
		}
	}

	return crc
}

// VerifyCrc recomputes the CRC of buf and compares it with claimed. An
// empty buffer never verifies.
func VerifyCrc(buf []byte, claimed uint16) bool {
	if len(buf) == 0 {
		return false
	}
	return Crc16(buf) == claimed
}

// AppendCrc appends the CRC of buf to buf, low byte first.
func AppendCrc(buf []byte) []byte {
	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], Crc16(buf))
	return append(buf, crc[:]...)
}

// minFrameLen is address, function, at least one payload byte and the CRC.
const minFrameLen = 4

// CheckFrameCrc returns an error if the trailing CRC of frame does not match
// the rest of the frame.
func CheckFrameCrc(frame []byte) error {
	if len(frame) < minFrameLen {
		return ErrShortFrame
	}

	body := frame[:len(frame)-2]
	claimed := binary.LittleEndian.Uint16(frame[len(frame)-2:])
	if !VerifyCrc(body, claimed) {
		return ErrChecksum
	}

	return nil
}
