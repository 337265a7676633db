// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim generates synthetic rowing sessions for demos and tests.
package sim

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Surge shape: a stroke-rate fundamental plus a second harmonic. After the
// default 0.3-1.2 Hz band-pass at ~25 spm the trough lands about a third of
// a cycle after the peak, i.e. a 1:2 drive to recovery ratio.
const (
	harmonicGain  = 0.455
	harmonicPhase = -43 * math.Pi / 180

	earthRadius = 6371000.0
)

type Config struct {
	SampleRate float64 // Hz
	StillTime  float64 // s at rest before rowing, captured for calibration
	Duration   float64 // s of rowing; <= 0 rows forever (Next never ends)

	StrokeRate float64 // spm
	Amplitude  float64 // surge amplitude, m/s²
	Noise      float64 // accel noise std, m/s²
	GyroNoise  float64 // deg/s
	Jitter     float64 // uniform timestamp jitter as a fraction of the interval

	Pitch, Roll float64 // phone mounting tilt, degrees
	Mounting    frame.MountingMode

	Start     float64 // ms since epoch of the first sample
	BoatSpeed float64 // m/s
	Heading   float64 // degrees
	Lat, Lon  float64

	Seed int64
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 50,
		StillTime:  3,
		Duration:   60,
		StrokeRate: 25,
		Amplitude:  3,
		Noise:      0.05,
		GyroNoise:  0.3,
		Pitch:      8,
		Roll:       -4,
		Mounting:   frame.Coxswain,
		Start:      1760443200000,
		BoatSpeed:  4,
		Heading:    90,
		Lat:        52.4333,
		Lon:        13.1700,
		Seed:       1,
	}
}

var ErrInvalidConfig = errors.New("sim: invalid config")

func (c Config) validate() error {
	switch {
	case !(c.SampleRate > 0):
		return fmt.Errorf("%w: sample rate %v", ErrInvalidConfig, c.SampleRate)
	case c.StrokeRate < 0 || c.Amplitude < 0 || c.Noise < 0 || c.GyroNoise < 0:
		return fmt.Errorf("%w: negative stroke rate, amplitude or noise", ErrInvalidConfig)
	case c.Jitter < 0 || c.Jitter >= 0.5:
		return fmt.Errorf("%w: jitter %v outside [0, 0.5)", ErrInvalidConfig, c.Jitter)
	case c.StillTime < 0:
		return fmt.Errorf("%w: still time %v", ErrInvalidConfig, c.StillTime)
	}
	return nil
}

// Rowing is an imu.Source producing a still window followed by steady
// rowing.
type Rowing struct {
	cfg   Config
	rng   *rand.Rand
	i     int
	still int
	total int // 0 = endless
}

func NewRowing(cfg Config) (*Rowing, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Rowing{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		still: int(math.Round(cfg.StillTime * cfg.SampleRate)),
	}
	if cfg.Duration > 0 {
		r.total = r.still + int(math.Round(cfg.Duration*cfg.SampleRate))
	}
	return r, nil
}

// StillSamples is the length of the leading rest window.
func (r *Rowing) StillSamples() int { return r.still }

func (r *Rowing) Next() (imu.RawSample, error) {
	if r.total > 0 && r.i >= r.total {
		return imu.RawSample{}, io.EOF
	}
	cfg := r.cfg
	interval := 1000 / cfg.SampleRate
	t := cfg.Start + float64(r.i)*interval
	if cfg.Jitter > 0 {
		t += (r.rng.Float64()*2 - 1) * cfg.Jitter * interval
	}

	var surge, heave, pitchRate float64
	if r.i >= r.still {
		theta := r.phase(r.i)
		surge = SurgeAt(theta, cfg.Amplitude)
		heave = 0.1 * cfg.Amplitude * math.Sin(2*theta)
		pitchRate = 1.5 * math.Sin(theta)
	}

	// level-frame reading, phone Y along the boat for a coxswain mount
	level := r3.Vector{X: 0, Y: surge, Z: orientation.StandardGravity + heave}
	if cfg.Mounting == frame.Rower {
		level.X, level.Y = -level.X, -level.Y
	}
	a := orientation.Mount(level, cfg.Pitch, cfg.Roll)
	r.i++

	return imu.RawSample{
		T:  t,
		Ax: a.X + r.rng.NormFloat64()*cfg.Noise,
		Ay: a.Y + r.rng.NormFloat64()*cfg.Noise,
		Az: a.Z + r.rng.NormFloat64()*cfg.Noise,
		Gx: pitchRate + r.rng.NormFloat64()*cfg.GyroNoise,
		Gy: r.rng.NormFloat64() * cfg.GyroNoise,
		Gz: r.rng.NormFloat64() * cfg.GyroNoise,
	}, nil
}

func (r *Rowing) phase(i int) float64 {
	ts := float64(i-r.still) / r.cfg.SampleRate
	return 2 * math.Pi * r.cfg.StrokeRate / 60 * ts
}

// SurgeAt is the boat surge acceleration at stroke phase theta (radians,
// 0 at the peak of the fundamental).
func SurgeAt(theta, amplitude float64) float64 {
	return amplitude * (math.Cos(theta) + harmonicGain*math.Cos(2*theta+harmonicPhase))
}

// Session builds a complete V3 session: the still window becomes the
// calibration capture, rowing becomes the IMU stream, GPS runs at 1 Hz.
func Session(cfg Config) (*codec.Session, error) {
	if !(cfg.Duration > 0) {
		return nil, fmt.Errorf("%w: a session needs a positive duration", ErrInvalidConfig)
	}
	src, err := NewRowing(cfg)
	if err != nil {
		return nil, err
	}
	samples, err := imu.Drain(src)
	if err != nil {
		return nil, err
	}

	s := &codec.Session{
		Version: codec.LatestVersion,
		Meta: codec.Metadata{
			Mounting:        cfg.Mounting,
			DemoMode:        true,
			CatchThreshold:  stroke.DefaultCatchThreshold,
			FinishThreshold: stroke.DefaultFinishThreshold,
		},
		CalibrationSamples: samples[:src.StillSamples()],
		IMU:                samples[src.StillSamples():],
	}
	if len(s.IMU) > 0 {
		s.Meta.SessionStart = s.IMU[0].T
	}

	if len(s.CalibrationSamples) >= calibration.MinSamples {
		m := calibration.NewModel(len(s.CalibrationSamples))
		if err := m.Start(); err != nil {
			return nil, err
		}
		for _, smp := range s.CalibrationSamples {
			m.AddSample(smp)
		}
		rec, err := m.Complete()
		if err != nil {
			return nil, fmt.Errorf("sim: calibrate: %w", err)
		}
		s.Calibration = &rec
	}

	s.GPS = Track(cfg, s.Meta.SessionStart, cfg.Duration)
	return s, nil
}

// Track returns 1 Hz fixes of a boat moving at cfg.BoatSpeed along
// cfg.Heading, starting at time start (ms).
func Track(cfg Config, start, seconds float64) []gps.Sample {
	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	h := cfg.Heading * math.Pi / 180
	lat, lon := cfg.Lat, cfg.Lon
	var out []gps.Sample
	for i := 0; float64(i) <= seconds; i++ {
		speed := math.Max(0, cfg.BoatSpeed+rng.NormFloat64()*0.1)
		out = append(out, gps.Sample{
			T:        start + float64(i)*1000,
			Lat:      lat,
			Lon:      lon,
			Speed:    speed,
			Heading:  cfg.Heading,
			Accuracy: 4,
		})
		lat += speed * math.Cos(h) / earthRadius * 180 / math.Pi
		lon += speed * math.Sin(h) / (earthRadius * math.Cos(lat*math.Pi/180)) * 180 / math.Pi
	}
	return out
}
