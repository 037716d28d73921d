package mathx

import "golang.org/x/exp/constraints"

// RoundDiv divides a by b rounding half away from zero. b == 0 yields 0.
// Used for averaging signed ADC sums without going through floats.
func RoundDiv[T constraints.Signed](a, b T) T {
	if b == 0 {
		return 0
	}
	if b < 0 {
		a, b = -a, -b
	}
	if a < 0 {
		return -((-a + b/2) / b)
	}
	return (a + b/2) / b
}
