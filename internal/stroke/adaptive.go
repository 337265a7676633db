// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stroke

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TimingBounds are the plausibility limits for a stroke, in ms.
type TimingBounds struct {
	MinDrive, MaxDrive       float64
	MinRecovery, MaxRecovery float64
	MinCycle, MaxCycle       float64
}

// AdaptiveConfig tunes the offline detector.
type AdaptiveConfig struct {
	// Percentile of the positive samples used as catch threshold (0..1).
	Percentile float64
	// PeakWindow is the half width, in samples, of the local maximum test.
	PeakWindow int
	// ProminenceWindow is the half width, in samples, searched for the
	// lowest point a peak has to rise above by MinProminence.
	ProminenceWindow int
	MinProminence    float64
	// MinPeakDistance in ms; of two closer peaks the higher one is kept.
	MinPeakDistance float64
	MinSamples      int
	MinPositive     int
	Bounds          TimingBounds
}

func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Percentile:       0.9,
		PeakWindow:       5,
		ProminenceWindow: 10,
		MinProminence:    0.3,
		MinPeakDistance:  1700,
		MinSamples:       100,
		MinPositive:      10,
		Bounds: TimingBounds{
			MinDrive: 300, MaxDrive: 1200,
			MinRecovery: 500, MaxRecovery: 3500,
			MinCycle: 1000, MaxCycle: 4500,
		},
	}
}

// AdaptiveResult is the outcome of an offline pass. An empty Strokes slice
// with a nil error means the window was analysable but held no plausible
// stroke.
type AdaptiveResult struct {
	Strokes   []Event
	Rejected  []Rejection
	Threshold float64
	// Peaks are the indices of the accepted catch peaks.
	Peaks []int
}

var errLengthMismatch = errors.New("stroke: values and times differ in length")

// DetectAdaptive segments a recorded window of filtered surge values with
// their ms timestamps. Each pair of consecutive accepted peaks yields one
// candidate: catch at the first peak, finish at the lowest sample between
// the two.
func DetectAdaptive(values, times []float64, cfg AdaptiveConfig) (AdaptiveResult, error) {
	if len(values) != len(times) {
		return AdaptiveResult{}, errLengthMismatch
	}
	values, times = compactFinite(values, times)
	if len(values) < cfg.MinSamples {
		return AdaptiveResult{}, fmt.Errorf("%w: %d samples, need %d", ErrTraceTooShort, len(values), cfg.MinSamples)
	}

	positive := make([]float64, 0, len(values)/2)
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) < cfg.MinPositive {
		return AdaptiveResult{}, fmt.Errorf("%w: %d positive samples, need %d", ErrNoRowingDetected, len(positive), cfg.MinPositive)
	}
	sort.Float64s(positive)
	threshold := stat.Quantile(cfg.Percentile, stat.LinInterp, positive, nil)

	res := AdaptiveResult{Threshold: threshold}
	res.Peaks = selectPeaks(values, times, threshold, cfg)

	for k := 0; k+1 < len(res.Peaks); k++ {
		a, b := res.Peaks[k], res.Peaks[k+1]
		f := a
		for i := a + 1; i < b; i++ {
			if values[i] < values[f] {
				f = i
			}
		}
		ev := Event{
			CatchTime:    times[a],
			FinishTime:   times[f],
			DriveTime:    times[f] - times[a],
			RecoveryTime: times[b] - times[f],
			PeakAccel:    values[a],
			MinAccel:     values[f],
		}
		if reason, d, ok := cfg.Bounds.check(ev); !ok {
			res.Rejected = append(res.Rejected, Rejection{Time: ev.CatchTime, Reason: reason, Duration: d})
			continue
		}
		ev.fillRates()
		res.Strokes = append(res.Strokes, ev)
	}
	return res, nil
}

func selectPeaks(values, times []float64, threshold float64, cfg AdaptiveConfig) []int {
	var peaks []int
	n := len(values)
	for i, v := range values {
		if v < threshold || !isLocalMax(values, i, cfg.PeakWindow) {
			continue
		}
		lo := v
		for j := max(0, i-cfg.ProminenceWindow); j <= min(n-1, i+cfg.ProminenceWindow); j++ {
			lo = min(lo, values[j])
		}
		if v-lo < cfg.MinProminence {
			continue
		}
		if len(peaks) > 0 {
			last := peaks[len(peaks)-1]
			if times[i]-times[last] < cfg.MinPeakDistance {
				if v > values[last] {
					peaks[len(peaks)-1] = i
				}
				continue
			}
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// isLocalMax reports whether values[i] is the maximum of its ±w
// neighbourhood. On a plateau only the first sample qualifies.
func isLocalMax(values []float64, i, w int) bool {
	v := values[i]
	for j := max(0, i-w); j < i; j++ {
		if values[j] >= v {
			return false
		}
	}
	for j := i + 1; j <= min(len(values)-1, i+w); j++ {
		if values[j] > v {
			return false
		}
	}
	return true
}

func (b TimingBounds) check(ev Event) (Reason, float64, bool) {
	cycle := ev.DriveTime + ev.RecoveryTime
	switch {
	case ev.DriveTime < b.MinDrive:
		return ReasonDriveTooShort, ev.DriveTime, false
	case ev.DriveTime > b.MaxDrive:
		return ReasonDriveTooLong, ev.DriveTime, false
	case ev.RecoveryTime < b.MinRecovery:
		return ReasonRecoveryTooShort, ev.RecoveryTime, false
	case ev.RecoveryTime > b.MaxRecovery:
		return ReasonRecoveryTooLong, ev.RecoveryTime, false
	case cycle < b.MinCycle:
		return ReasonCycleTooShort, cycle, false
	case cycle > b.MaxCycle:
		return ReasonCycleTooLong, cycle, false
	}
	return "", 0, true
}

func compactFinite(values, times []float64) ([]float64, []float64) {
	clean := true
	for i := range values {
		if !finite(values[i]) || !finite(times[i]) {
			clean = false
			break
		}
	}
	if clean {
		return values, times
	}
	v := make([]float64, 0, len(values))
	t := make([]float64, 0, len(times))
	for i := range values {
		if finite(values[i]) && finite(times[i]) {
			v = append(v, values[i])
			t = append(t, times[i])
		}
	}
	return v, t
}
