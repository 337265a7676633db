// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stroke

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strokeTrace is a clean filtered surge trace: a fundamental at the stroke
// rate plus a second harmonic that puts the trough one third of a cycle
// after the peak.
func strokeTrace(spm, seconds, fs, amplitude float64) (times, values []float64) {
	n := int(seconds * fs)
	for i := 0; i < n; i++ {
		t := float64(i) * 1000 / fs
		theta := 2 * math.Pi * spm / 60 * t / 1000
		times = append(times, 1_000_000+t)
		values = append(values, amplitude*(math.Cos(theta)+0.45*math.Sin(2*theta)))
	}
	return times, values
}

func runStreaming(t *testing.T, d *Detector, times, values []float64) []Event {
	t.Helper()
	var out []Event
	for i := range times {
		if ev, ok := d.Process(times[i], values[i]); ok {
			out = append(out, ev)
		}
	}
	return out
}

func meanRate(events []Event) float64 {
	complete := lo.Filter(events, func(e Event, _ int) bool { return e.Complete() })
	if len(complete) == 0 {
		return 0
	}
	return float64(lo.SumBy(complete, func(e Event) int { return e.StrokeRate })) / float64(len(complete))
}

func TestStreamingDetector(t *testing.T) {
	times, values := strokeTrace(25, 30, 50, 3)
	d, err := NewDetector(WithBaselineWindow(0))
	require.NoError(t, err)

	events := runStreaming(t, d, times, values)
	require.Len(t, events, 12)

	assert.False(t, events[0].Complete(), "first stroke has no preceding finish")
	assert.Zero(t, events[0].StrokeRate)
	for _, ev := range events[1:] {
		assert.True(t, ev.Complete())
		assert.Equal(t, 25, ev.StrokeRate)
		assert.InDelta(t, 40, ev.DrivePercent, 2)
		assert.InDelta(t, 2400, ev.DriveTime+ev.RecoveryTime, 1)
		assert.Greater(t, ev.FinishTime, ev.CatchTime)
		assert.Greater(t, ev.PeakAccel, 3.0)
		assert.Less(t, ev.MinAccel, -3.0)
	}
}

func TestStreamingInterpolatesCrossings(t *testing.T) {
	d, err := NewDetector(WithBaselineWindow(0), WithCycleLimits(0, 0, math.Inf(1)))
	require.NoError(t, err)

	samples := [][2]float64{{0, 0}, {100, 0.2}, {200, 1.0}, {300, 2.0}, {400, 0.5}, {500, -0.5}}
	var got []Event
	for _, s := range samples {
		if ev, ok := d.Process(s[0], s[1]); ok {
			got = append(got, ev)
		}
	}
	require.Len(t, got, 1)
	assert.InDelta(t, 150, got[0].CatchTime, 1e-9)  // 0.2 -> 1.0 crosses 0.6 halfway
	assert.InDelta(t, 480, got[0].FinishTime, 1e-9) // 0.5 -> -0.5 crosses -0.3 at 80%
	assert.InDelta(t, 330, got[0].DriveTime, 1e-9)
	assert.Equal(t, 2.0, got[0].PeakAccel)
}

func TestStreamingRejectsBlipsAndInvalidSamples(t *testing.T) {
	var rejected []Rejection
	d, err := NewDetector(WithBaselineWindow(0), WithRejectHandler(func(r Rejection) { rejected = append(rejected, r) }))
	require.NoError(t, err)

	// a 40 ms spike is not a drive
	for _, s := range [][2]float64{{0, 0}, {20, 1}, {40, 1}, {60, -1}} {
		_, ok := d.Process(s[0], s[1])
		assert.False(t, ok)
	}
	_, ok := d.Process(60, 0)
	assert.False(t, ok, "repeated timestamp")
	_, ok = d.Process(80, math.NaN())
	assert.False(t, ok)

	want := []Reason{ReasonDriveTooShort, ReasonInvalidSample, ReasonInvalidSample}
	assert.Equal(t, want, lo.Map(rejected, func(r Rejection, _ int) Reason { return r.Reason }))
	assert.Equal(t, Recovery, d.Phase())
}

func TestStreamingLongPauseRestartsRate(t *testing.T) {
	d, err := NewDetector(WithBaselineWindow(0))
	require.NoError(t, err)
	times, values := strokeTrace(25, 10, 50, 3)
	first := runStreaming(t, d, times, values)
	require.NotEmpty(t, first)

	// resume 20 s later
	later := lo.Map(times, func(ts float64, _ int) float64 { return ts + 30_000 })
	second := runStreaming(t, d, later, values)
	require.NotEmpty(t, second)
	assert.False(t, second[0].Complete())
}

func TestStreamingResetAndThresholds(t *testing.T) {
	_, err := NewDetector(WithThresholds(-0.3, 0.6))
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	d, err := NewDetector()
	require.NoError(t, err)
	assert.ErrorIs(t, d.SetThresholds(0.1, 0.1), ErrInvalidThreshold)
	require.NoError(t, d.SetThresholds(1.0, -0.5))

	times, values := strokeTrace(25, 12, 50, 3)
	a := runStreaming(t, d, times, values)
	d.Reset()
	b := runStreaming(t, d, times, values)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("reset must restore a clean detector (-first +second):\n%s", diff)
	}
}

func TestBaseline(t *testing.T) {
	b := NewBaseline(1000)
	assert.Zero(t, b.Mean())
	for i := 0; i < 100; i++ {
		b.Add(float64(i)*20, 0.5)
	}
	assert.InDelta(t, 0.5, b.Mean(), 1e-12)
	assert.InDelta(t, 0, b.Correct(0.5), 1e-12)
	assert.LessOrEqual(t, b.Len(), 51, "only the last second is kept")

	for i := 100; i < 200; i++ {
		b.Add(float64(i)*20, -1)
	}
	assert.InDelta(t, -1, b.Mean(), 1e-12)

	b.Add(4000, math.NaN())
	assert.InDelta(t, -1, b.Mean(), 1e-12)

	b.Reset()
	assert.Zero(t, b.Len())
}

func TestBaselineBounded(t *testing.T) {
	b := NewBaseline(1e9)
	for i := 0; i < 5000; i++ {
		b.Add(float64(i), float64(i%7))
	}
	assert.Equal(t, baselineCapacity, b.Len())
	var sum float64
	for i := 5000 - baselineCapacity; i < 5000; i++ {
		sum += float64(i % 7)
	}
	assert.InDelta(t, sum/baselineCapacity, b.Mean(), 1e-9)
}

func TestStreamingWithBaselineTracksStrokes(t *testing.T) {
	times, values := strokeTrace(25, 30, 50, 3)
	d, err := NewDetector()
	require.NoError(t, err)
	clean := runStreaming(t, d, times, values)

	drifted := lo.Map(values, func(v float64, _ int) float64 { return v + 0.8 })
	d.Reset()
	events := runStreaming(t, d, times, drifted)
	require.Len(t, events, 12)
	assert.InDelta(t, 25, meanRate(events), 0.5)
	for i := range events {
		assert.InDelta(t, clean[i].CatchTime, events[i].CatchTime, 1, "a constant offset is removed")
	}
}

func TestStreamingDefaultDetectorOnZeroMeanTrace(t *testing.T) {
	for _, amplitude := range []float64{1, 2, 3} {
		t.Run(fmt.Sprintf("amplitude %v", amplitude), func(t *testing.T) {
			times, values := strokeTrace(25, 60, 50, amplitude)
			d, err := NewDetector()
			require.NoError(t, err)

			var events []Event
			driveRun, longestDrive := 0, 0
			for i := range times {
				if ev, ok := d.Process(times[i], values[i]); ok {
					events = append(events, ev)
				}
				if d.Phase() == Drive {
					driveRun++
					longestDrive = max(longestDrive, driveRun)
				} else {
					driveRun = 0
				}
			}

			assert.Len(t, events, 24)
			assert.Less(t, longestDrive, 60, "a drive never outlasts half a cycle")
			for _, ev := range events[1:] {
				assert.Equal(t, 25, ev.StrokeRate)
				assert.InDelta(t, 35, ev.DrivePercent, 5)
			}
		})
	}
}

func TestBaselineExpiresWithoutSamples(t *testing.T) {
	b := NewBaseline(1000)
	for i := 0; i < 50; i++ {
		b.Add(float64(i)*20, -2)
	}
	assert.InDelta(t, -2, b.Mean(), 1e-12)

	b.Expire(1500)
	assert.Less(t, b.Len(), 50)
	b.Expire(2100)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Mean())
}

func TestAdaptiveDetector(t *testing.T) {
	times, values := strokeTrace(25, 30, 50, 3)
	res, err := DetectAdaptive(values, times, DefaultAdaptiveConfig())
	require.NoError(t, err)

	assert.Len(t, res.Peaks, 13)
	require.Len(t, res.Strokes, 12)
	assert.Empty(t, res.Rejected)
	assert.Greater(t, res.Threshold, 0.0)
	for _, ev := range res.Strokes {
		assert.Equal(t, 25, ev.StrokeRate)
		assert.InDelta(t, 34, ev.DrivePercent, 2)
		assert.True(t, ev.Complete())
		assert.Less(t, ev.MinAccel, 0.0)
	}
}

func TestStreamingAndAdaptiveAgree(t *testing.T) {
	tests := []struct {
		spm, amplitude float64
	}{
		// a unit stroke at 20 spm is too flat for the prominence test
		{spm: 20, amplitude: 1.5},
		{spm: 20, amplitude: 2},
		{spm: 20, amplitude: 3},
		{spm: 25, amplitude: 1},
		{spm: 25, amplitude: 2},
		{spm: 25, amplitude: 3},
		{spm: 32, amplitude: 1},
		{spm: 32, amplitude: 2},
		{spm: 32, amplitude: 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v spm amplitude %v", tt.spm, tt.amplitude), func(t *testing.T) {
			times, values := strokeTrace(tt.spm, 40, 50, tt.amplitude)

			d, err := NewDetector()
			require.NoError(t, err)
			streamed := lo.Filter(runStreaming(t, d, times, values), func(e Event, _ int) bool { return e.Complete() })

			res, err := DetectAdaptive(values, times, DefaultAdaptiveConfig())
			require.NoError(t, err)

			assert.InDelta(t, len(res.Strokes), len(streamed), 1)
			assert.InDelta(t, tt.spm, meanRate(streamed), 2)
			assert.InDelta(t, tt.spm, meanRate(res.Strokes), 2)
		})
	}
}

func TestAdaptiveDeterministic(t *testing.T) {
	times, values := strokeTrace(28, 20, 50, 2.5)
	a, err := DetectAdaptive(values, times, DefaultAdaptiveConfig())
	require.NoError(t, err)
	b, err := DetectAdaptive(values, times, DefaultAdaptiveConfig())
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("DetectAdaptive() not deterministic (-first +second):\n%s", diff)
	}
}

func TestAdaptiveInsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		wantErr error
	}{
		{name: "short trace", values: make([]float64, 99), wantErr: ErrTraceTooShort},
		{name: "no motion", values: make([]float64, 200), wantErr: ErrNoRowingDetected},
		{
			name:    "only nine positives",
			values:  append(lo.Times(9, func(int) float64 { return 1 }), make([]float64, 200)...),
			wantErr: ErrNoRowingDetected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times := lo.Times(len(tt.values), func(i int) float64 { return float64(i) * 20 })
			_, err := DetectAdaptive(tt.values, times, DefaultAdaptiveConfig())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}

	_, err := DetectAdaptive([]float64{1}, nil, DefaultAdaptiveConfig())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestAdaptiveRejectsImplausibleTiming(t *testing.T) {
	times, values := strokeTrace(25, 30, 50, 3)
	cfg := DefaultAdaptiveConfig()
	cfg.Bounds.MaxDrive = 500

	res, err := DetectAdaptive(values, times, cfg)
	require.NoError(t, err, "valid data with zero plausible strokes is not an error")
	assert.Empty(t, res.Strokes)
	require.Len(t, res.Rejected, 12)
	for _, r := range res.Rejected {
		assert.Equal(t, ReasonDriveTooLong, r.Reason)
		assert.InDelta(t, 816, r.Duration, 30)
	}
}

func TestAdaptiveKeepsHigherOfClosePeaks(t *testing.T) {
	// two bumps 600 ms apart, the second one higher, then a third 2 s later
	n := 300
	times := lo.Times(n, func(i int) float64 { return float64(i) * 20 })
	values := make([]float64, n)
	bump := func(center int, height float64) {
		for i := range values {
			d := float64(i - center)
			values[i] += height * math.Exp(-d*d/18)
		}
	}
	bump(50, 2)
	bump(80, 3)
	bump(180, 3)
	for i := range values {
		values[i] -= 0.5
	}
	cfg := DefaultAdaptiveConfig()
	cfg.Percentile = 0.5

	res, err := DetectAdaptive(values, times, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{80, 180}, res.Peaks)
}

func TestEventCSV(t *testing.T) {
	ev := Event{CatchTime: 1000, FinishTime: 1800, DriveTime: 800, RecoveryTime: 1600, PeakAccel: 3, MinAccel: -2}
	ev.fillRates()
	assert.Equal(t, 25, ev.StrokeRate)
	assert.Equal(t, 33, ev.DrivePercent)
	assert.Len(t, ev.CSVRow(), len(ev.CSVHeader()))
	assert.Equal(t, "25", ev.CSVRow()[4])
}
