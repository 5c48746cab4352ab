// Package bps holds the basis-point conversions shared by the FX engine,
// planner, and limit pricer, so the 10,000 constant lives in exactly one
// place.
package bps

// ToBps converts a fraction (e.g. 0.0125) to basis points (125).
func ToBps(fraction float64) float64 { return fraction * 10_000 }

// FromBps converts basis points (125) to a fraction (0.0125).
func FromBps(value float64) float64 { return value / 10_000 }
