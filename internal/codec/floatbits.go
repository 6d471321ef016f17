package codec

import "math"

func f64bits(v float64) uint64    { return math.Float64bits(v) }
func f64frombits(b uint64) float64 { return math.Float64frombits(b) }
