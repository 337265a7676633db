// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"io"
	"math"
	"strconv"
)

// RawSample is one phone motion reading in the phone frame.
type RawSample struct {
	T float64 `json:"t"` // ms since epoch

	Ax float64 `json:"ax"` // accel, m/s² including gravity
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // gyro, deg/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	// Aux carries the optional V3 channels. Nil when the recorder did not
	// provide them.
	Aux *Aux `json:"aux,omitempty"`
}

// Aux holds the three extra channels of a V3 recording. Depending on the
// recorder they are device orientation angles (alpha, beta, gamma) or
// magnetometer readings.
type Aux struct {
	Mx float64 `json:"mx"`
	My float64 `json:"my"`
	Mz float64 `json:"mz"`
}

// Finite reports whether every mandatory channel holds a finite value.
func (s RawSample) Finite() bool {
	for _, v := range [...]float64{s.T, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AccelNorm returns |a| in m/s².
func (s RawSample) AccelNorm() float64 {
	return math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
}

// CSVHeader returns the column names matching CSVRow.
func (RawSample) CSVHeader() []string {
	return []string{"timestamp", "ax", "ay", "az", "gx", "gy", "gz", "mx", "my", "mz"}
}

// CSVRow renders the sample; absent aux channels are left empty.
func (s RawSample) CSVRow() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	row := []string{f(s.T), f(s.Ax), f(s.Ay), f(s.Az), f(s.Gx), f(s.Gy), f(s.Gz), "", "", ""}
	if s.Aux != nil {
		row[7], row[8], row[9] = f(s.Aux.Mx), f(s.Aux.My), f(s.Aux.Mz)
	}
	return row
}

// Source is anything that can provide raw samples over time: a replayed
// session, a live phone stream, a simulator.
// Next returns io.EOF once a finite source is exhausted.
type Source interface {
	Next() (RawSample, error)
}

// SliceSource replays samples from memory.
type SliceSource struct {
	samples []RawSample
	pos     int
}

func NewSliceSource(samples []RawSample) *SliceSource {
	return &SliceSource{samples: samples}
}

func (s *SliceSource) Next() (RawSample, error) {
	if s.pos >= len(s.samples) {
		return RawSample{}, io.EOF
	}
	v := s.samples[s.pos]
	s.pos++
	return v, nil
}

// Drain reads src until io.EOF.
func Drain(src Source) ([]RawSample, error) {
	var out []RawSample
	for {
		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}
