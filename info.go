package nnet

import (
	"fmt"

	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"
)

// momentStatistics summarises a, e.g. " ( min -0.2, max 0.3, mean 0.01, stddev 0.1 )".
func momentStatistics(a []float32) string {
	if len(a) == 0 {
		return " ( empty )"
	}
	min, max := a[vecf32.Argmin(a)], a[vecf32.Argmax(a)]
	n := float32(len(a))
	mean := vecf32.Sum(a) / n
	var variance float32
	for _, v := range a {
		variance += (v - mean) * (v - mean)
	}
	variance /= n
	return fmt.Sprintf(" ( min %.6g, max %.6g, mean %.6g, stddev %.6g )", min, max, mean, math32.Sqrt(variance))
}
