// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"errors"
	"fmt"
	"math"
)

var ErrRateUnknown = errors.New("filter: sample rate cannot be measured")

// MeasureSampleRate derives the rate (Hz) from the mean interval of ms
// timestamps. Out-of-order and duplicate timestamps are skipped.
func MeasureSampleRate(timestamps []float64) (float64, error) {
	var m RateMeter
	for _, t := range timestamps {
		m.Observe(t)
	}
	return m.Rate()
}

// RateMeter measures the sample rate of a live stream in O(1) memory.
type RateMeter struct {
	first, last float64
	intervals   int
	started     bool
	bad         int
}

// Observe records one ms timestamp. Non-increasing or non-finite
// timestamps are counted as bad and ignored.
func (m *RateMeter) Observe(t float64) {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		m.bad++
		return
	}
	if !m.started {
		m.first, m.last, m.started = t, t, true
		return
	}
	if t <= m.last {
		m.bad++
		return
	}
	m.last = t
	m.intervals++
}

// Intervals returns the number of valid intervals seen.
func (m *RateMeter) Intervals() int { return m.intervals }

// Rejected returns how many timestamps were ignored.
func (m *RateMeter) Rejected() int { return m.bad }

func (m *RateMeter) Rate() (float64, error) {
	if m.intervals == 0 {
		return 0, fmt.Errorf("%w: no valid intervals", ErrRateUnknown)
	}
	mean := (m.last - m.first) / float64(m.intervals)
	return 1000 / mean, nil
}

func (m *RateMeter) Reset() { *m = RateMeter{} }
