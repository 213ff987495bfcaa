package engine

import "math"

// DecodeRegister assembles two consecutive 16-bit words (low word first)
// into an unsigned 32-bit integer, applies the tag's scale and rounds to
// four decimal places.
func DecodeRegister(words [2]uint16, scale float64) float64 {
	v := uint32(words[0]) | uint32(words[1])<<16
	return math.Round(float64(v)*scale*1e4) / 1e4
}

// DecodeCoil renders a coil bit as its logged text form.
func DecodeCoil(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
