package calibration

import (
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
)

func stillSamples(n int, pitch, roll, noise float64) []imu.RawSample {
	rng := rand.New(rand.NewPCG(7, 11))
	g := orientation.Mount(r3.Vector{Z: orientation.StandardGravity}, pitch, roll)
	out := make([]imu.RawSample, n)
	for i := range out {
		out[i] = imu.RawSample{
			T:  1000 + float64(i)*20,
			Ax: g.X + rng.NormFloat64()*noise,
			Ay: g.Y + rng.NormFloat64()*noise,
			Az: g.Z + rng.NormFloat64()*noise,
		}
	}
	return out
}

func capture(t *testing.T, samples []imu.RawSample) (*Model, Record, error) {
	t.Helper()
	m := NewModel(DefaultMaxSamples)
	require.NoError(t, m.Start())
	for _, s := range samples {
		m.AddSample(s)
	}
	rec, err := m.Complete()
	return m, rec, err
}

func TestCompleteSampleThreshold(t *testing.T) {
	m, _, err := capture(t, stillSamples(MinSamples-1, 0, 0, 0.01))
	assert.ErrorIs(t, err, ErrInsufficientSamples)
	assert.Equal(t, Calibrating, m.State())

	m, rec, err := capture(t, stillSamples(MinSamples, 0, 0, 0.01))
	require.NoError(t, err)
	assert.Equal(t, Calibrated, m.State())
	assert.Equal(t, MinSamples, rec.Samples)
	assert.InDelta(t, orientation.StandardGravity, rec.GravityMagnitude, 0.01)
	assert.Zero(t, rec.YawOffset)
	assert.Zero(t, rec.LateralOffset)
	assert.Equal(t, 1000+float64(MinSamples-1)*20, rec.Timestamp)
}

func TestApplyRecoversSurge(t *testing.T) {
	const surge = 2.0
	tests := []struct {
		name  string
		pitch float64
		roll  float64
	}{
		{name: "pitch up roll left", pitch: 25, roll: -20},
		{name: "pitch down roll right", pitch: -22, roll: 30},
		{name: "steep holder", pitch: 40, roll: 25},
		{name: "level", pitch: 0, roll: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec, err := capture(t, stillSamples(200, tt.pitch, tt.roll, 0.02))
			require.NoError(t, err)
			assert.InDelta(t, -tt.roll, rec.RollOffset, 0.1)

			level := r3.Vector{Y: surge, Z: orientation.StandardGravity}
			got := m.Apply(orientation.Mount(level, tt.pitch, tt.roll))
			assert.InDelta(t, surge, got.Y, 0.1)
			assert.InDelta(t, 0, got.X, 0.1)
			assert.InDelta(t, orientation.StandardGravity, got.Z, 0.1)

			pitch, roll := rec.MountingTilt()
			assert.InDelta(t, tt.pitch, pitch, 0.1)
			assert.InDelta(t, tt.roll, roll, 0.1)
		})
	}
}

func TestStateMachine(t *testing.T) {
	m := NewModel(0)
	assert.Equal(t, Idle, m.State())

	// ignored outside Calibrating
	m.AddSample(imu.RawSample{T: 1, Az: 9.8})
	assert.Equal(t, 0, m.Len())
	_, err := m.Complete()
	assert.ErrorIs(t, err, ErrInvalidState)

	v := r3.Vector{X: 1, Y: 2, Z: 3}
	assert.Equal(t, v, m.Apply(v), "uncalibrated model must not touch vectors")

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrInvalidState)
	for _, s := range stillSamples(60, 10, 5, 0.01) {
		m.AddSample(s)
	}
	_, err = m.Complete()
	require.NoError(t, err)
	_, ok := m.Record()
	assert.True(t, ok)

	m.AddSample(imu.RawSample{T: 1, Az: 9.8})
	assert.Equal(t, 60, m.Len())
	assert.ErrorIs(t, m.Start(), ErrInvalidState)

	m.Reset()
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, 0, m.Len())
	_, ok = m.Record()
	assert.False(t, ok)
}

func TestWindowIsBounded(t *testing.T) {
	m := NewModel(MinSamples)
	require.NoError(t, m.Start())
	for _, s := range stillSamples(3*MinSamples, 0, 0, 0.01) {
		m.AddSample(s)
	}
	assert.Equal(t, MinSamples, m.Len())
	assert.Equal(t, 1000+float64(3*MinSamples-MinSamples)*20, m.Samples()[0].T)
}

func TestQuality(t *testing.T) {
	tests := []struct {
		name      string
		variance  float64
		wantLabel string
	}{
		{name: "at rest", variance: 0.0001, wantLabel: "good"},
		{name: "light motion", variance: 0.05, wantLabel: "fair"},
		{name: "rowing", variance: 1.0, wantLabel: "poor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{Variance: tt.variance}
			assert.Equal(t, tt.wantLabel, r.QualityLabel())
			assert.GreaterOrEqual(t, r.Quality(), qualityFloor)
			assert.LessOrEqual(t, r.Quality(), 1.0)
		})
	}
	assert.True(t, Record{GravityMagnitude: 9.79}.GravityPlausible())
	assert.False(t, Record{GravityMagnitude: 7.5}.GravityPlausible())
}
