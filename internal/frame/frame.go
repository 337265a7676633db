// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame maps phone-frame acceleration onto the boat axes.
package frame

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
)

// MountingMode says which way the phone screen faces. Values match the
// session container byte.
type MountingMode uint8

const (
	// Rower: phone faces the stern, so phone axes point backwards.
	Rower MountingMode = 0
	// Coxswain: phone faces the bow.
	Coxswain MountingMode = 1
)

func (m MountingMode) String() string {
	switch m {
	case Rower:
		return "rower"
	case Coxswain:
		return "coxswain"
	}
	return fmt.Sprintf("MountingMode(%d)", uint8(m))
}

func ParseMountingMode(s string) (MountingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rower", "0":
		return Rower, nil
	case "coxswain", "cox", "1":
		return Coxswain, nil
	}
	return 0, fmt.Errorf("unknown mounting mode %q", s)
}

func (m MountingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MountingMode) UnmarshalText(b []byte) error {
	v, err := ParseMountingMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// BoatAcceleration is gravity-free acceleration on the boat axes, m/s².
type BoatAcceleration struct {
	Surge float64 `json:"surge"` // + towards the bow
	Sway  float64 `json:"sway"`  // + towards starboard
	Heave float64 `json:"heave"` // + up
}

// Deterministic removes the gravity predicted by the phone orientation and
// remaps axes by mounting mode.
type Deterministic struct {
	Mounting MountingMode
	// Gravity magnitude to remove; zero means standard gravity.
	Gravity float64
}

func (d Deterministic) Transform(a r3.Vector, o orientation.Orientation) BoatAcceleration {
	g := d.Gravity
	if g == 0 {
		g = orientation.StandardGravity
	}
	clean := a.Sub(orientation.Gravity(o, g))
	if d.Mounting == Rower {
		return BoatAcceleration{Surge: -clean.Y, Sway: -clean.X, Heave: clean.Z}
	}
	return BoatAcceleration{Surge: clean.Y, Sway: clean.X, Heave: clean.Z}
}
