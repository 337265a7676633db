// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Orientation is the phone attitude in degrees.
//
// Mounting convention used across the engine: a phone pitched by P about its
// X axis and rolled by R about its Y axis reports a level-frame vector v as
// Rx(P)·Ry(R)·v, so gravity reads (g·sinR, -g·sinP·cosR, g·cosP·cosR).
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"` // gyro integration only, drifts
}

// Finite reports whether all angles are finite.
func (o Orientation) Finite() bool {
	return finite(o.Pitch) && finite(o.Roll) && finite(o.Yaw)
}

// AccelTilt computes pitch and roll (degrees) from a gravity-dominated
// accelerometer reading:
//
//	pitch = atan2(-ay, az)
//	roll  = atan2(ax, sqrt(ay² + az²))
func AccelTilt(ax, ay, az float64) (pitch, roll float64) {
	pitch = math.Atan2(-ay, az) * radToDeg
	roll = math.Atan2(ax, math.Sqrt(ay*ay+az*az)) * radToDeg
	return pitch, roll
}

// Gravity returns the gravity vector a phone in orientation o reads.
func Gravity(o Orientation, g float64) r3.Vector {
	sp, cp := math.Sincos(o.Pitch * degToRad)
	sr, cr := math.Sincos(o.Roll * degToRad)
	return r3.Vector{X: g * sr, Y: -g * sp * cr, Z: g * cp * cr}
}

// Mount maps a level-frame vector into the frame of a phone pitched by
// pitch and rolled by roll (degrees): Rx(pitch)·Ry(roll)·v.
func Mount(v r3.Vector, pitch, roll float64) r3.Vector {
	return rotateX(rotateY(v, roll*degToRad), pitch*degToRad)
}

// Level is the inverse of Mount: undo pitch, then undo roll.
func Level(v r3.Vector, pitch, roll float64) r3.Vector {
	return rotateY(rotateX(v, -pitch*degToRad), -roll*degToRad)
}

func rotateX(v r3.Vector, a float64) r3.Vector {
	s, c := math.Sincos(a)
	return r3.Vector{X: v.X, Y: v.Y*c - v.Z*s, Z: v.Y*s + v.Z*c}
}

func rotateY(v r3.Vector, a float64) r3.Vector {
	s, c := math.Sincos(a)
	return r3.Vector{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
}

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
