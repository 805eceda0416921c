package domain

import (
	"errors"
	"fmt"
)

// Physical ranges a sampled value must fall in to be kept.
const (
	MinTempC = -100.0
	MaxTempC = 100.0
	MinNDVI  = -1.0
	MaxNDVI  = 1.0
)

// ErrImplausible marks a sampled value outside its physical range.
var ErrImplausible = errors.New("implausible sample")

// CheckTemperature rejects land-surface temperatures outside [-100, 100] C.
func CheckTemperature(v float64) error {
	if !finite(v) || v < MinTempC || v > MaxTempC {
		return fmt.Errorf("%w: temperature %v", ErrImplausible, v)
	}
	return nil
}

// CheckNDVI rejects vegetation index values outside [-1, 1].
func CheckNDVI(v float64) error {
	if !finite(v) || v < MinNDVI || v > MaxNDVI {
		return fmt.Errorf("%w: ndvi %v", ErrImplausible, v)
	}
	return nil
}
