// Package approx implements the value canonicalizer (component A): masking
// low-order mantissa bits of floating-point values so that numerically close
// values fold into one canonical class, per the configured approximation
// level. Integer and unknown-typed accesses pass through unchanged.
package approx

import "math"

// Level is an approximation level. Higher levels clear more mantissa bits.
type Level int

// The six approximation levels the analyzer supports, ordered from exact
// (None) to coarsest (Max).
const (
	LevelNone Level = iota
	LevelMin
	LevelLow
	LevelMid
	LevelHigh
	LevelMax
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelMin:
		return "MIN"
	case LevelLow:
		return "LOW"
	case LevelMid:
		return "MID"
	case LevelHigh:
		return "HIGH"
	case LevelMax:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (case-sensitive, as used in the config
// environment variable and in the public API) to a Level.
func ParseLevel(name string) (Level, bool) {
	switch name {
	case "NONE":
		return LevelNone, true
	case "MIN":
		return LevelMin, true
	case "LOW":
		return LevelLow, true
	case "MID":
		return LevelMid, true
	case "HIGH":
		return LevelHigh, true
	case "MAX":
		return LevelMax, true
	default:
		return 0, false
	}
}

// Degrees holds the number of mantissa bits retained for 32- and 64-bit
// floats at a given approximation level.
type Degrees struct {
	F32 uint
	F64 uint
}

var degreesByLevel = map[Level]Degrees{
	LevelNone: {F32: 23, F64: 52},
	LevelMin:  {F32: 20, F64: 46},
	LevelLow:  {F32: 17, F64: 40},
	LevelMid:  {F32: 14, F64: 34},
	LevelHigh: {F32: 11, F64: 28},
	LevelMax:  {F32: 8, F64: 22},
}

// DegreesFor returns the mantissa-bit budget for level, and false if level
// is not one of the six configured levels.
func DegreesFor(level Level) (Degrees, bool) {
	d, ok := degreesByLevel[level]
	return d, ok
}

// DataType mirrors instgraph.DataType without importing instgraph, so this
// package stays a leaf: it only needs to know integer/float/unknown, not the
// full access-kind shape.
type DataType int

// The three data types a canonicalized value can carry.
const (
	TypeUnknown DataType = iota
	TypeInteger
	TypeFloat
)

// Canonicalize masks the low mantissa bits of raw, a bit pattern of width
// unitSize (8, 16, 32 or 64), according to typ and level. Integer and
// unknown values are returned unchanged; 8/16-bit float values are not
// masked either and are also returned unchanged.
func Canonicalize(raw uint64, unitSize uint32, typ DataType, level Level) uint64 {
	if typ != TypeFloat {
		return raw
	}

	degrees, ok := DegreesFor(level)
	if !ok {
		return raw
	}

	switch unitSize {
	case 32:
		return uint64(maskFloat32(uint32(raw), degrees.F32))
	case 64:
		return maskFloat64(raw, degrees.F64)
	default:
		return raw
	}
}

func maskFloat32(bits uint32, degree uint) uint32 {
	const mantissaBits = 23

	if degree >= mantissaBits {
		return bits
	}

	clear := mantissaBits - degree
	mask := ^uint32(0) << clear

	return bits & mask
}

func maskFloat64(bits uint64, degree uint) uint64 {
	const mantissaBits = 52

	if degree >= mantissaBits {
		return bits
	}

	clear := mantissaBits - degree
	mask := ^uint64(0) << clear

	return bits & mask
}

// CanonicalFloat32 is a convenience wrapper for callers holding an actual
// float32 rather than its raw bits.
func CanonicalFloat32(v float32, level Level) float32 {
	bits := math.Float32bits(v)
	degrees, ok := DegreesFor(level)
	if !ok {
		return v
	}

	return math.Float32frombits(maskFloat32(bits, degrees.F32))
}

// CanonicalFloat64 is a convenience wrapper for callers holding an actual
// float64 rather than its raw bits.
func CanonicalFloat64(v float64, level Level) float64 {
	bits := math.Float64bits(v)
	degrees, ok := DegreesFor(level)
	if !ok {
		return v
	}

	return math.Float64frombits(maskFloat64(bits, degrees.F64))
}
