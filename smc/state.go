package smc

import "fmt"

// LiveState is a snapshot of the controller monitor registers
type LiveState struct {
	Position int32  // 0.01 mm
	Speed    uint16 // mm/s
	Thrust   uint16 // %
	Target   int32  // 0.01 mm
	Step     uint16 // active step number
}

func (l LiveState) String() string {
	return fmt.Sprintf("pos %.2fmm speed %dmm/s thrust %d%% target %.2fmm step %d",
		float64(l.Position)/100, l.Speed, l.Thrust, float64(l.Target)/100, l.Step)
}

// decodeLiveState unpacks the seven registers starting at AddrCurrPos.
func decodeLiveState(words []uint16, order WordOrder) LiveState {
	return LiveState{
		Position: order.Join(words[0], words[1]),
		Speed:    words[AddrCurrSpd-AddrCurrPos],
		Thrust:   words[AddrCurrThrust-AddrCurrPos],
		Target:   order.Join(words[4], words[5]),
		Step:     words[AddrDriveDataNo-AddrCurrPos],
	}
}

// LiveState reads the controller monitor registers in one query.
func (s *Session) LiveState(addr byte) (LiveState, error) {
	words, err := s.ReadWords(addr, AddrCurrPos, liveStateWords)
	if err != nil {
		return LiveState{}, err
	}
	return decodeLiveState(words, s.wordOrder), nil
}
