// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
)

// Stillness thresholds for the quality score, as accel std in m/s².
const (
	stillStdGood = 0.05
	stillStdBad  = 0.5
	qualityFloor = 0.05
)

// Record is the result of a completed calibration. Angles in degrees.
type Record struct {
	PitchOffset      float64 `json:"pitch_offset" yaml:"pitch_offset"`
	RollOffset       float64 `json:"roll_offset" yaml:"roll_offset"`
	YawOffset        float64 `json:"yaw_offset" yaml:"yaw_offset"`         // always 0, no estimator
	LateralOffset    float64 `json:"lateral_offset" yaml:"lateral_offset"` // always 0, no estimator
	GravityMagnitude float64 `json:"gravity_magnitude" yaml:"gravity_magnitude"`
	Samples          int     `json:"samples" yaml:"samples"`
	Variance         float64 `json:"variance" yaml:"variance"`
	Timestamp        float64 `json:"timestamp" yaml:"timestamp"` // ms since epoch
}

// MountingTilt returns the phone pitch and roll (degrees, Rx·Ry convention)
// that produced the calibrated gravity direction.
//
// The offsets pin the gravity unit vector u through
// u.x = -sin(rollOffset) and u.y = -sin(pitchOffset); u.z is taken positive
// (phone face up).
func (r Record) MountingTilt() (pitch, roll float64) {
	ux := -math.Sin(r.RollOffset * degToRad)
	uy := -math.Sin(r.PitchOffset * degToRad)
	uz := math.Sqrt(math.Max(0, 1-ux*ux-uy*uy))
	pitch = math.Atan2(-uy, uz) * radToDeg
	roll = -r.RollOffset
	return pitch, roll
}

// Apply rotates a phone-frame vector into the level frame, undoing pitch and
// then roll.
func (r Record) Apply(v r3.Vector) r3.Vector {
	pitch, roll := r.MountingTilt()
	return orientation.Level(v, pitch, roll)
}

// Quality maps the sample variance to [0.05, 1]: 1 for a phone at rest,
// falling linearly with the accel std between the still thresholds.
func (r Record) Quality() float64 {
	std := math.Sqrt(math.Max(r.Variance, 0))
	switch {
	case std <= stillStdGood:
		return 1
	case std >= stillStdBad:
		return qualityFloor
	}
	t := (std - stillStdGood) / (stillStdBad - stillStdGood)
	return 1 - t*(1-qualityFloor)
}

// QualityLabel buckets Quality for display.
func (r Record) QualityLabel() string {
	q := r.Quality()
	switch {
	case q >= 0.8:
		return "good"
	case q >= 0.5:
		return "fair"
	default:
		return "poor"
	}
}

// GravityPlausible reports whether the measured gravity is within 1 m/s² of
// standard gravity. A miss usually means the phone moved or the accel is
// mis-scaled.
func (r Record) GravityPlausible() bool {
	return math.Abs(r.GravityMagnitude-orientation.StandardGravity) <= 1.0
}

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)
