// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stroke

import (
	"math"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/ring"
)

const (
	DefaultBaselineWindow = 3000.0 // ms
	// baselineCapacity bounds the window independent of the sample rate
	// (3 s at 200 Hz fits).
	baselineCapacity = 640
	resumEvery       = 1024
)

type timedValue struct {
	t, v float64
}

// Baseline tracks the mean surge over a rolling time window so slow drag
// and drift can be subtracted before thresholding. Every sample enters the
// window: a mean over Recovery samples alone sits at the recovery
// deceleration, and subtracting it holds the detector in Drive.
type Baseline struct {
	window float64
	buf    *ring.Buffer[timedValue]
	sum    float64
	pushes int
}

func NewBaseline(window float64) *Baseline {
	if window <= 0 {
		window = DefaultBaselineWindow
	}
	return &Baseline{window: window, buf: ring.New[timedValue](baselineCapacity)}
}

// Add records a sample at time t (ms) and evicts samples that fell out of
// the window.
func (b *Baseline) Add(t, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if b.buf.Full() {
		old, _ := b.buf.PopFront()
		b.sum -= old.v
	}
	b.buf.Push(timedValue{t: t, v: v})
	b.sum += v
	b.Expire(t)

	// periodic exact re-sum keeps rounding error from accumulating
	b.pushes++
	if b.pushes >= resumEvery {
		b.pushes = 0
		b.sum = 0
		for i := 0; i < b.buf.Len(); i++ {
			b.sum += b.buf.At(i).v
		}
	}
}

// Expire drops samples older than t minus the window.
func (b *Baseline) Expire(t float64) {
	for {
		old, ok := b.buf.Front()
		if !ok || old.t >= t-b.window {
			break
		}
		b.buf.PopFront()
		b.sum -= old.v
	}
	if b.buf.Len() == 0 {
		b.sum = 0
	}
}

// Mean of the window, 0 when empty.
func (b *Baseline) Mean() float64 {
	if b.buf.Len() == 0 {
		return 0
	}
	return b.sum / float64(b.buf.Len())
}

// Correct returns v minus the window mean.
func (b *Baseline) Correct(v float64) float64 { return v - b.Mean() }

func (b *Baseline) Len() int { return b.buf.Len() }

func (b *Baseline) Reset() {
	b.buf.Reset()
	b.sum = 0
	b.pushes = 0
}
