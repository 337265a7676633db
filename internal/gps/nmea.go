// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

const (
	knotsToMetresPerSecond = 0.514444
	// horizontal error per unit of HDOP, typical for consumer receivers
	metresPerHDOP = 5.0
)

// ErrNoFix is returned for RMC sentences flagged void by the receiver.
var ErrNoFix = errors.New("gps: no valid fix")

// Tracker turns a stream of NMEA sentences into Samples. RMC sentences
// produce a sample; GGA sentences only refresh the HDOP used for Accuracy.
type Tracker struct {
	hdop float64
}

// Feed parses one NMEA line. ok is false when the line does not complete a
// sample (non-NMEA noise, GGA, unsupported sentence types).
func (t *Tracker) Feed(line string) (s Sample, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Sample{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Sample{}, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.HDOP > 0 {
			t.hdop = m.HDOP
		}
		return Sample{}, false, nil

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return Sample{}, false, ErrNoFix
		}
		return Sample{
			T:        fixTime(m.Date, m.Time),
			Lat:      m.Latitude,
			Lon:      m.Longitude,
			Speed:    m.Speed * knotsToMetresPerSecond,
			Heading:  m.Course,
			Accuracy: t.hdop * metresPerHDOP,
		}, true, nil
	}
	return Sample{}, false, nil
}

// fixTime converts the RMC date and time to ms since epoch (UTC).
func fixTime(d nmea.Date, tm nmea.Time) float64 {
	if !d.Valid || !tm.Valid {
		return 0
	}
	ts := time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		tm.Hour, tm.Minute, tm.Second, tm.Millisecond*int(time.Millisecond), time.UTC)
	return float64(ts.UnixMilli())
}
