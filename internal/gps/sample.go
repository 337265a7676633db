// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"strconv"

	"github.com/golang/geo/s2"
)

// EarthRadius is the mean Earth radius in metres used for surface distances.
const EarthRadius = 6371000.0

// Sample is one GPS fix as recorded in a session.
type Sample struct {
	T        float64 `json:"t"`        // ms since epoch
	Lat      float64 `json:"lat"`      // decimal degrees
	Lon      float64 `json:"lon"`      // decimal degrees
	Speed    float64 `json:"speed"`    // m/s over ground
	Heading  float64 `json:"heading"`  // degrees, course over ground
	Accuracy float64 `json:"accuracy"` // metres, horizontal
}

func (s Sample) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(s.Lat, s.Lon)
}

// DistanceTo returns the great-circle distance in metres.
func (s Sample) DistanceTo(o Sample) float64 {
	return s.LatLng().Distance(o.LatLng()).Radians() * EarthRadius
}

func (Sample) CSVHeader() []string {
	return []string{"timestamp", "lat", "lon", "speed", "heading", "accuracy"}
}

func (s Sample) CSVRow() []string {
	f := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	return []string{f(s.T, -1), f(s.Lat, 7), f(s.Lon, 7), f(s.Speed, 2), f(s.Heading, 1), f(s.Accuracy, 1)}
}
