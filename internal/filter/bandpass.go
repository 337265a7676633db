// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter isolates the stroke frequency band of the surge signal.
package filter

import (
	"errors"
	"fmt"
	"math"
)

// Stroke band defaults: 0.3–1.2 Hz covers 18–72 strokes per minute.
const (
	DefaultLowCut  = 0.3
	DefaultHighCut = 1.2
)

var ErrInvalidBand = errors.New("filter: invalid band")

// BandPass is a one-pole high-pass followed by a one-pole low-pass.
type BandPass struct {
	lowCut, highCut, sampleRate float64
	alphaHP, alphaLP            float64

	xPrev  float64
	yHP    float64
	yLP    float64
	primed bool
}

// NewBandPass builds the filter for a measured sample rate (Hz). The band
// must satisfy 0 < low < high < sampleRate/2.
func NewBandPass(lowCut, highCut, sampleRate float64) (*BandPass, error) {
	f := &BandPass{sampleRate: sampleRate}
	if err := f.SetBand(lowCut, highCut); err != nil {
		return nil, err
	}
	return f, nil
}

// SetBand retunes the cut-offs. In-flight state is discarded.
func (f *BandPass) SetBand(lowCut, highCut float64) error {
	fs := f.sampleRate
	if !(fs > 0) || math.IsInf(fs, 0) {
		return fmt.Errorf("%w: sample rate %v", ErrInvalidBand, fs)
	}
	if !(lowCut > 0 && lowCut < highCut && highCut < fs/2) {
		return fmt.Errorf("%w: need 0 < %v < %v < %v", ErrInvalidBand, lowCut, highCut, fs/2)
	}
	f.lowCut, f.highCut = lowCut, highCut
	f.alphaHP = 1 / (1 + 2*math.Pi*lowCut/fs)
	w := 2 * math.Pi * highCut / fs
	f.alphaLP = w / (1 + w)
	f.Reset()
	return nil
}

// Process filters one sample. A non-finite x is rejected: the state is left
// untouched and the previous output is returned.
func (f *BandPass) Process(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return f.yLP
	}
	if !f.primed {
		f.xPrev = x
		f.primed = true
	}
	f.yHP = f.alphaHP * (f.yHP + x - f.xPrev)
	f.xPrev = x
	f.yLP += f.alphaLP * (f.yHP - f.yLP)
	return f.yLP
}

// Reset zeroes the state; the next sample primes the high-pass input.
func (f *BandPass) Reset() {
	f.xPrev, f.yHP, f.yLP = 0, 0, 0
	f.primed = false
}

func (f *BandPass) SampleRate() float64 { return f.sampleRate }

func (f *BandPass) Band() (low, high float64) { return f.lowCut, f.highCut }
