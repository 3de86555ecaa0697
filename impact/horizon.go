package impact

import (
	"errors"
	"fmt"
)

// ErrInvalidHorizon is returned when a horizon is outside the labeling
// whitelist. It is a caller error, unlike a missing price.
var ErrInvalidHorizon = errors.New("invalid horizon")

var allowedHorizons = func() map[int]struct{} {
	m := make(map[int]struct{}, 22)
	for k := 1; k <= 20; k++ {
		m[k] = struct{}{}
	}
	m[30] = struct{}{}
	m[60] = struct{}{}
	return m
}()

// AllowedHorizons returns the whitelist {1..20, 30, 60} in ascending order.
func AllowedHorizons() []int {
	out := make([]int, 0, len(allowedHorizons))
	for k := 1; k <= 20; k++ {
		out = append(out, k)
	}
	return append(out, 30, 60)
}

// ValidateHorizon checks k against the whitelist.
func ValidateHorizon(k int) error {
	if _, ok := allowedHorizons[k]; !ok {
		return fmt.Errorf("%w: %d minutes (allowed 1-20, 30, 60)", ErrInvalidHorizon, k)
	}
	return nil
}
