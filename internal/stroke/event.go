// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stroke segments the filtered surge signal into rowing strokes,
// either causally sample by sample or offline over a recorded window.
package stroke

import (
	"errors"
	"math"
	"strconv"
)

var (
	// ErrInsufficientData groups the cases where a window is too small or
	// too quiet to analyse. It is routine, never fatal.
	ErrInsufficientData = errors.New("stroke: insufficient data")
	ErrTraceTooShort    = insufficient("stroke: trace too short")
	ErrNoRowingDetected = insufficient("stroke: no rowing detected")
	ErrInvalidThreshold = errors.New("stroke: catch threshold must exceed finish threshold")
)

type insufficientError string

func insufficient(msg string) error { return insufficientError(msg) }

func (e insufficientError) Error() string { return string(e) }

func (e insufficientError) Is(target error) bool { return target == ErrInsufficientData }

// Event is one completed stroke. Times are in ms.
//
// The first stroke, and the first after a gap longer than the maximum
// cycle, has no recovery. Its StrokeRate and DrivePercent are 0 rather than
// 60000/DriveTime and 100: a rate taken from the drive alone would be far
// above anything rowed. Complete tells the two kinds apart.
type Event struct {
	CatchTime    float64 `json:"catch_time"`
	FinishTime   float64 `json:"finish_time"`
	DriveTime    float64 `json:"drive_time"`
	RecoveryTime float64 `json:"recovery_time"` // 0 when the preceding finish is unknown
	StrokeRate   int     `json:"stroke_rate"`   // strokes per minute, 0 without recovery
	DrivePercent int     `json:"drive_percent"` // 0 without recovery
	PeakAccel    float64 `json:"peak_accel"`
	MinAccel     float64 `json:"min_accel"`
}

// Complete reports whether the full cycle is known, i.e. the stroke had a
// measured recovery and therefore a rate.
func (e Event) Complete() bool { return e.RecoveryTime > 0 }

func (Event) CSVHeader() []string {
	return []string{"catch_time", "finish_time", "drive_ms", "recovery_ms", "stroke_rate", "drive_percent", "peak_accel", "min_accel"}
}

func (e Event) CSVRow() []string {
	f := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	return []string{
		f(e.CatchTime, -1), f(e.FinishTime, -1), f(e.DriveTime, 1), f(e.RecoveryTime, 1),
		strconv.Itoa(e.StrokeRate), strconv.Itoa(e.DrivePercent), f(e.PeakAccel, 3), f(e.MinAccel, 3),
	}
}

// fillRates sets StrokeRate and DrivePercent from the drive and recovery
// durations.
func (e *Event) fillRates() {
	if e.RecoveryTime <= 0 {
		e.StrokeRate, e.DrivePercent = 0, 0
		return
	}
	cycle := e.DriveTime + e.RecoveryTime
	e.StrokeRate = int(math.Round(60000 / cycle))
	e.DrivePercent = int(math.Round(100 * e.DriveTime / cycle))
}

// Reason tags a rejected candidate.
type Reason string

const (
	ReasonDriveTooShort    Reason = "drive_too_short"
	ReasonDriveTooLong     Reason = "drive_too_long"
	ReasonRecoveryTooShort Reason = "recovery_too_short"
	ReasonRecoveryTooLong  Reason = "recovery_too_long"
	ReasonCycleTooShort    Reason = "cycle_too_short"
	ReasonCycleTooLong     Reason = "cycle_too_long"
	ReasonInvalidSample    Reason = "invalid_sample"
)

// Rejection describes a candidate that was dropped. It is a diagnostic,
// not an error.
type Rejection struct {
	Time     float64 `json:"time"` // catch time of the candidate, ms
	Reason   Reason  `json:"reason"`
	Duration float64 `json:"duration"` // the offending duration, ms
}
