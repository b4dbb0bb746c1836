// Package indicator computes technical indicators over ordered candle
// series. All functions are pure: no state, no I/O, and they fail with
// ErrInsufficientHistory instead of ever returning partial or NaN values.
package indicator

import "errors"

// ErrInsufficientHistory is returned when the candle series is shorter than
// the indicator's required lookback window.
var ErrInsufficientHistory = errors.New("indicator: insufficient history")
