package pipeline

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/sim"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

func rowingSession(t *testing.T, seconds float64) *codec.Session {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Duration = seconds
	cfg.Pitch, cfg.Roll = 0, 0
	cfg.Noise = 0.02
	s, err := sim.Session(cfg)
	require.NoError(t, err)
	return s
}

func calibratedConfig(s *codec.Session) Config {
	cfg := DefaultConfig()
	cfg.Frame = FrameCalibrated
	cfg.Calibration = s.Calibration
	cfg.Mounting = s.Meta.Mounting
	return cfg
}

func feed(t *testing.T, p *Pipeline, samples []imu.RawSample) {
	t.Helper()
	for _, s := range samples {
		require.NoError(t, p.Process(s))
	}
}

func TestEndToEndAdaptive(t *testing.T) {
	s := rowingSession(t, 10)
	rec := &Recorder{}
	p, err := New(calibratedConfig(s), rec)
	require.NoError(t, err)
	feed(t, p, s.IMU)

	assert.InDelta(t, 50, p.SampleRate(), 0.01)
	assert.Equal(t, 1, rec.Count(RateMeasured))

	res, err := p.Analyze()
	require.NoError(t, err)
	require.NotEmpty(t, res.Strokes)
	assert.InDelta(t, 4, len(res.Strokes), 1)

	rate := lo.SumBy(res.Strokes, func(e stroke.Event) int { return e.StrokeRate })
	drive := lo.SumBy(res.Strokes, func(e stroke.Event) int { return e.DrivePercent })
	n := float64(len(res.Strokes))
	assert.InDelta(t, 25, float64(rate)/n, 2)
	assert.InDelta(t, 33, float64(drive)/n, 5)
}

func TestEndToEndStreaming(t *testing.T) {
	s := rowingSession(t, 30)
	rec := &Recorder{KeepSamples: true}
	p, err := New(calibratedConfig(s), rec)
	require.NoError(t, err)
	feed(t, p, s.IMU)

	assert.Len(t, rec.Samples, len(s.IMU))
	require.NotEmpty(t, rec.Strokes)
	for _, ev := range rec.Strokes {
		if ev.Complete() {
			assert.InDelta(t, 25, ev.StrokeRate, 3)
		}
	}
	assert.Greater(t, lo.CountBy(rec.Strokes, func(e stroke.Event) bool { return e.Complete() }), 5)
}

func TestPipelineIsDeterministic(t *testing.T) {
	s := rowingSession(t, 20)
	run := func(p *Pipeline, rec *Recorder) *Recorder {
		feed(t, p, s.IMU)
		return rec
	}

	cfg := calibratedConfig(s)
	cfg.AnalysisInterval = 2000
	cfg.HistorySize = 500

	recA, recB := &Recorder{}, &Recorder{}
	pa, err := New(cfg, recA)
	require.NoError(t, err)
	pb, err := New(cfg, recB)
	require.NoError(t, err)

	a, b := run(pa, recA), run(pb, recB)
	if diff := cmp.Diff(a, b, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("two fresh pipelines disagree (-a +b):\n%s", diff)
	}
	require.NotEmpty(t, a.Analyses)
	for _, an := range a.Analyses {
		assert.NoError(t, an.Err)
	}

	// reset mid-session then replay from the start
	recC := &Recorder{}
	pc, err := New(cfg, recC)
	require.NoError(t, err)
	feed(t, pc, s.IMU[:333])
	pc.Reset()
	*recC = Recorder{}
	feed(t, pc, s.IMU)
	if diff := cmp.Diff(a, recC, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("reset pipeline differs from a fresh one (-fresh +reset):\n%s", diff)
	}
}

func TestAutoFrameFindsBowAxis(t *testing.T) {
	s := rowingSession(t, 20)
	cfg := DefaultConfig()
	cfg.Frame = FrameAuto
	cfg.Mounting = frame.Coxswain
	rec := &Recorder{}
	p, err := New(cfg, rec)
	require.NoError(t, err)
	feed(t, p, s.IMU)

	axes, ok := p.Axes()
	require.True(t, ok)
	assert.True(t, axes.Reliable())
	assert.Greater(t, axes.BowStern.Y, 0.95, "the coxswain mount faces the bow along +Y")
	assert.Greater(t, rec.Count(AxesDetected), 0)
	assert.Greater(t, rec.Count(AxesUnavailable), 0, "the first run has too few samples")
	assert.NotEmpty(t, rec.Strokes)
}

func TestAutoFrameSurgePeaksForward(t *testing.T) {
	sc := sim.DefaultConfig()
	sc.Duration = 20
	sc.Pitch, sc.Roll = 0, 0
	sc.Noise, sc.GyroNoise = 0, 0
	s, err := sim.Session(sc)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Frame = FrameAuto
	cfg.Mounting = frame.Coxswain
	rec := &Recorder{KeepSamples: true}
	p, err := New(cfg, rec)
	require.NoError(t, err)
	feed(t, p, s.IMU)

	axes, ok := p.Axes()
	require.True(t, ok)
	assert.Greater(t, axes.BowStern.Y, 0.99)

	tail := rec.Samples[len(rec.Samples)-250:]
	surge := lo.Map(tail, func(o Output, _ int) float64 { return o.Boat.Surge })
	assert.Greater(t, lo.Max(surge), -lo.Min(surge), "drive peaks must be positive surge")
}

func TestCleanRowingStreams(t *testing.T) {
	for _, mode := range []FrameMode{FrameOrientation, FrameCalibrated} {
		for _, amplitude := range []float64{2, 3} {
			t.Run(fmt.Sprintf("%s amplitude %v", mode, amplitude), func(t *testing.T) {
				sc := sim.DefaultConfig()
				sc.Duration = 30
				sc.Amplitude = amplitude
				sc.Pitch, sc.Roll = 0, 0
				sc.Noise, sc.GyroNoise = 0, 0
				s, err := sim.Session(sc)
				require.NoError(t, err)

				cfg := calibratedConfig(s)
				cfg.Frame = mode
				rec := &Recorder{}
				p, err := New(cfg, rec)
				require.NoError(t, err)
				feed(t, p, s.IMU)

				assert.InDelta(t, 12, len(rec.Strokes), 1)
				complete := lo.Filter(rec.Strokes, func(e stroke.Event, _ int) bool { return e.Complete() })
				require.NotEmpty(t, complete)
				for _, ev := range complete {
					assert.InDelta(t, 25, ev.StrokeRate, 1)
				}
			})
		}
	}
}

func TestInvalidSamplesAreSkipped(t *testing.T) {
	s := rowingSession(t, 5)
	cfg := calibratedConfig(s)
	cfg.SampleRate = 50
	rec := &Recorder{KeepSamples: true}
	p, err := New(cfg, rec)
	require.NoError(t, err)

	samples := append([]imu.RawSample(nil), s.IMU...)
	samples[10].Ax = math.NaN()
	samples[20].T = samples[19].T
	feed(t, p, samples)

	assert.Equal(t, 2, rec.Count(InvalidSample))
	assert.Len(t, rec.Samples, len(samples)-2)
	for _, o := range rec.Samples {
		assert.False(t, math.IsNaN(o.Filtered))
	}
}

func TestNewValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frame = FrameCalibrated
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrNoCalibration)

	cfg = DefaultConfig()
	cfg.CatchThreshold = -1
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, stroke.ErrInvalidThreshold)

	cfg = DefaultConfig()
	p, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Analyze()
	assert.ErrorIs(t, err, ErrNotReady)

	cfg.SampleRate = 50
	p, err = New(cfg, nil)
	require.NoError(t, err)
	_, err = p.Analyze()
	assert.ErrorIs(t, err, stroke.ErrInsufficientData)
}

func TestRunFlushesShortSource(t *testing.T) {
	s := rowingSession(t, 2)
	rec := &Recorder{KeepSamples: true}
	p, err := New(DefaultConfig(), rec)
	require.NoError(t, err)

	require.NoError(t, Run(context.Background(), imu.NewSliceSource(s.IMU[:30]), p))
	assert.InDelta(t, 50, p.SampleRate(), 0.01)
	assert.Len(t, rec.Samples, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Run(ctx, imu.NewSliceSource(s.IMU), p), context.Canceled)
}

func TestParseFrameMode(t *testing.T) {
	for in, want := range map[string]FrameMode{
		"orientation": FrameOrientation,
		"Calibrated":  FrameCalibrated,
		" auto ":      FrameAuto,
		"pca":         FrameAuto,
	} {
		got, err := ParseFrameMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseFrameMode("sideways")
	assert.Error(t, err)
}
