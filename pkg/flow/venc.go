package flow

import (
	"math"
	"regexp"
	"strconv"
)

// vencPattern matches the velocity encoding embedded in sequence names such
// as "fl3d1_v150in" or "fl2d1r4_v200fh".
var vencPattern = regexp.MustCompile(`_v(\d+(?:\.\d+)?)`)

// ParseVenc extracts the velocity encoding in cm/s from a sequence name.
func ParseVenc(sequenceName string) (float64, bool) {
	m := vencPattern.FindStringSubmatch(sequenceName)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// VENC converts stored flow pixel values to velocities.
type VENC struct {
	FlowVenc   float64
	BitsStored int
}

// Velocity maps a stored value onto [-FlowVenc, +FlowVenc]. The full range of
// stored values 0 .. 2^BitsStored-1 spans twice the encoding velocity.
func (v VENC) Velocity(stored uint64) float64 {
	bits := v.BitsStored
	if bits <= 0 {
		bits = 12
	}
	slope := 2 * v.FlowVenc / (math.Pow(2, float64(bits)) - 1)
	return float64(stored)*slope - v.FlowVenc
}
