// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package codec reads and writes the versioned .wrcdata session container.
//
// File order is header, optional calibration block (V2+), IMU samples, GPS
// samples, calibration capture samples (V2+). V3 widens IMU records with
// three optional channels stored as NaN when absent.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
)

const LatestVersion = 3

var (
	ErrMalformedContainer = errors.New("codec: malformed container")
	ErrNotRepresentable   = errors.New("codec: session not representable in this version")
)

// MalformedError locates a decode failure. It matches ErrMalformedContainer
// under errors.Is.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("codec: malformed container at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedContainer }

func malformed(off int, format string, args ...any) error {
	return &MalformedError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// Metadata is the session header information besides counts.
type Metadata struct {
	SessionStart    float64            `json:"session_start" yaml:"session_start"` // ms since epoch
	Mounting        frame.MountingMode `json:"mounting" yaml:"mounting"`
	DemoMode        bool               `json:"demo_mode" yaml:"demo_mode"`
	CatchThreshold  float64            `json:"catch_threshold" yaml:"catch_threshold"`
	FinishThreshold float64            `json:"finish_threshold" yaml:"finish_threshold"`
}

// Session is a decoded container. It is treated as immutable once built.
type Session struct {
	Version            int
	Meta               Metadata
	IMU                []imu.RawSample
	GPS                []gps.Sample
	Calibration        *calibration.Record
	CalibrationSamples []imu.RawSample
}

// Decode parses a whole container. Any truncation or unknown magic aborts
// with a *MalformedError; bytes past the last section are ignored.
func Decode(data []byte) (*Session, error) {
	if len(data) < magicLen {
		return nil, malformed(0, "%d bytes, too short for magic", len(data))
	}
	magic := string(bytes.TrimRight(data[:magicLen], "\x00"))
	version, ok := magics[magic]
	if !ok {
		return nil, malformed(0, "unknown magic %q", magic)
	}

	s := &Session{Version: version}
	r := bytes.NewReader(data)
	var imuCount, gpsCount, calCount uint32
	hasCal := false

	if version == 1 {
		if len(data) < headerSizeV1 {
			return nil, malformed(len(data), "truncated V1 header")
		}
		var h headerV1
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return nil, malformed(0, "header: %v", err)
		}
		imuCount, gpsCount = h.IMUCount, h.GPSCount
		s.Meta = metadata(h.SessionStart, h.Orientation, h.DemoMode, h.Catch, h.Finish)
	} else {
		if len(data) < headerSizeV2 {
			return nil, malformed(len(data), "truncated V%d header", version)
		}
		var h headerV2
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return nil, malformed(0, "header: %v", err)
		}
		imuCount, gpsCount, calCount = h.IMUCount, h.GPSCount, h.CalCount
		hasCal = h.HasCalibration == 1
		s.Meta = metadata(h.SessionStart, h.Orientation, h.DemoMode, h.Catch, h.Finish)
	}

	stride := imuStride(version)
	need := uint64(headerSize(version)) +
		uint64(imuCount)*uint64(stride) +
		uint64(gpsCount)*gpsSize +
		uint64(calCount)*uint64(stride)
	if hasCal {
		need += calBlockSize
	}
	if need > uint64(len(data)) {
		return nil, malformed(len(data), "need %d bytes for %d imu, %d gps, %d calibration samples", need, imuCount, gpsCount, calCount)
	}

	if hasCal {
		var c calBlock
		if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
			return nil, malformed(offset(data, r), "calibration block: %v", err)
		}
		s.Calibration = &calibration.Record{
			PitchOffset:      float64(c.PitchOffset),
			RollOffset:       float64(c.RollOffset),
			YawOffset:        float64(c.YawOffset),
			LateralOffset:    float64(c.LateralOffset),
			GravityMagnitude: float64(c.GravityMagnitude),
			Samples:          int(c.Samples),
			Variance:         float64(c.Variance),
			Timestamp:        c.Timestamp,
		}
	}

	var err error
	if s.IMU, err = readIMU(r, version, int(imuCount)); err != nil {
		return nil, malformed(offset(data, r), "imu samples: %v", err)
	}
	recs := make([]gpsRecord, gpsCount)
	if err := binary.Read(r, binary.LittleEndian, recs); err != nil {
		return nil, malformed(offset(data, r), "gps samples: %v", err)
	}
	s.GPS = make([]gps.Sample, len(recs))
	for i, g := range recs {
		s.GPS[i] = gps.Sample{
			T: g.T, Lat: g.Lat, Lon: g.Lon,
			Speed: float64(g.Speed), Heading: float64(g.Heading), Accuracy: float64(g.Accuracy),
		}
	}
	if s.CalibrationSamples, err = readIMU(r, version, int(calCount)); err != nil {
		return nil, malformed(offset(data, r), "calibration samples: %v", err)
	}
	return s, nil
}

// Read decodes a container from r.
func Read(r io.Reader) (*Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: read: %w", err)
	}
	return Decode(data)
}

// Encode serializes s in s.Version (LatestVersion when 0). Values are
// narrowed to float32 where the layout does.
func Encode(s *Session) ([]byte, error) {
	version := s.Version
	if version == 0 {
		version = LatestVersion
	}
	if err := representable(s, version); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	stride := imuStride(version)
	buf.Grow(headerSize(version) + calBlockSize + (len(s.IMU)+len(s.CalibrationSamples))*stride + len(s.GPS)*gpsSize)

	orient := uint8(0)
	if s.Meta.Mounting == frame.Coxswain {
		orient = 1
	}
	demo := uint8(0)
	if s.Meta.DemoMode {
		demo = 1
	}

	var header any
	if version == 1 {
		header = &headerV1{
			Magic:        magicFor(1),
			IMUCount:     uint32(len(s.IMU)),
			GPSCount:     uint32(len(s.GPS)),
			SessionStart: s.Meta.SessionStart,
			Orientation:  orient,
			DemoMode:     demo,
			Catch:        float32(s.Meta.CatchThreshold),
			Finish:       float32(s.Meta.FinishThreshold),
		}
	} else {
		h := &headerV2{
			Magic:        magicFor(version),
			IMUCount:     uint32(len(s.IMU)),
			GPSCount:     uint32(len(s.GPS)),
			CalCount:     uint32(len(s.CalibrationSamples)),
			SessionStart: s.Meta.SessionStart,
			Orientation:  orient,
			DemoMode:     demo,
			Catch:        float32(s.Meta.CatchThreshold),
			Finish:       float32(s.Meta.FinishThreshold),
		}
		if s.Calibration != nil {
			h.HasCalibration = 1
		}
		header = h
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("codec: header: %w", err)
	}

	if s.Calibration != nil {
		c := s.Calibration
		block := calBlock{
			PitchOffset:      float32(c.PitchOffset),
			RollOffset:       float32(c.RollOffset),
			YawOffset:        float32(c.YawOffset),
			LateralOffset:    float32(c.LateralOffset),
			GravityMagnitude: float32(c.GravityMagnitude),
			Samples:          uint32(c.Samples),
			Variance:         float32(c.Variance),
			Timestamp:        c.Timestamp,
		}
		if err := binary.Write(&buf, binary.LittleEndian, &block); err != nil {
			return nil, fmt.Errorf("codec: calibration block: %w", err)
		}
	}

	if err := writeIMU(&buf, version, s.IMU); err != nil {
		return nil, fmt.Errorf("codec: imu samples: %w", err)
	}
	recs := make([]gpsRecord, len(s.GPS))
	for i, g := range s.GPS {
		recs[i] = gpsRecord{
			T: g.T, Lat: g.Lat, Lon: g.Lon,
			Speed: float32(g.Speed), Heading: float32(g.Heading), Accuracy: float32(g.Accuracy),
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, recs); err != nil {
		return nil, fmt.Errorf("codec: gps samples: %w", err)
	}
	if err := writeIMU(&buf, version, s.CalibrationSamples); err != nil {
		return nil, fmt.Errorf("codec: calibration samples: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes s to w.
func Write(w io.Writer, s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// AuxCoverage counts the IMU samples that carry V3 channels.
func AuxCoverage(s *Session) (withAux, total int) {
	for _, smp := range s.IMU {
		if smp.Aux != nil {
			withAux++
		}
	}
	return withAux, len(s.IMU)
}

func representable(s *Session, version int) error {
	if version < 1 || version > LatestVersion {
		return fmt.Errorf("%w: unknown version %d", ErrNotRepresentable, version)
	}
	if version == 1 && (s.Calibration != nil || len(s.CalibrationSamples) > 0) {
		return fmt.Errorf("%w: V1 has no calibration section", ErrNotRepresentable)
	}
	if version < 3 {
		for _, set := range [][]imu.RawSample{s.IMU, s.CalibrationSamples} {
			for i, smp := range set {
				if smp.Aux != nil {
					return fmt.Errorf("%w: sample %d has aux channels, need V3", ErrNotRepresentable, i)
				}
			}
		}
	}
	for _, n := range []int{len(s.IMU), len(s.GPS), len(s.CalibrationSamples)} {
		if uint64(n) > math.MaxUint32 {
			return fmt.Errorf("%w: %d samples exceed the u32 count", ErrNotRepresentable, n)
		}
	}
	return nil
}

func readIMU(r io.Reader, version, n int) ([]imu.RawSample, error) {
	out := make([]imu.RawSample, n)
	if version < 3 {
		recs := make([]imuRecord, n)
		if err := binary.Read(r, binary.LittleEndian, recs); err != nil {
			return nil, err
		}
		for i, rec := range recs {
			out[i] = rawSample(rec)
		}
		return out, nil
	}

	recs := make([]imuRecordV3, n)
	if err := binary.Read(r, binary.LittleEndian, recs); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		out[i] = rawSample(imuRecord{T: rec.T, Ax: rec.Ax, Ay: rec.Ay, Az: rec.Az, Gx: rec.Gx, Gy: rec.Gy, Gz: rec.Gz})
		mx, my, mz := float64(rec.Mx), float64(rec.My), float64(rec.Mz)
		if finite(mx) && finite(my) && finite(mz) {
			out[i].Aux = &imu.Aux{Mx: mx, My: my, Mz: mz}
		}
	}
	return out, nil
}

func writeIMU(w io.Writer, version int, samples []imu.RawSample) error {
	if version < 3 {
		recs := make([]imuRecord, len(samples))
		for i, s := range samples {
			recs[i] = record(s)
		}
		return binary.Write(w, binary.LittleEndian, recs)
	}

	nan := float32(math.NaN())
	recs := make([]imuRecordV3, len(samples))
	for i, s := range samples {
		r := record(s)
		recs[i] = imuRecordV3{T: r.T, Ax: r.Ax, Ay: r.Ay, Az: r.Az, Gx: r.Gx, Gy: r.Gy, Gz: r.Gz, Mx: nan, My: nan, Mz: nan}
		if s.Aux != nil {
			recs[i].Mx, recs[i].My, recs[i].Mz = float32(s.Aux.Mx), float32(s.Aux.My), float32(s.Aux.Mz)
		}
	}
	return binary.Write(w, binary.LittleEndian, recs)
}

func rawSample(r imuRecord) imu.RawSample {
	return imu.RawSample{
		T:  r.T,
		Ax: float64(r.Ax), Ay: float64(r.Ay), Az: float64(r.Az),
		Gx: float64(r.Gx), Gy: float64(r.Gy), Gz: float64(r.Gz),
	}
}

func record(s imu.RawSample) imuRecord {
	return imuRecord{
		T:  s.T,
		Ax: float32(s.Ax), Ay: float32(s.Ay), Az: float32(s.Az),
		Gx: float32(s.Gx), Gy: float32(s.Gy), Gz: float32(s.Gz),
	}
}

func metadata(start float64, orient, demo uint8, catch, finish float32) Metadata {
	m := Metadata{
		SessionStart:    start,
		Mounting:        frame.Rower,
		DemoMode:        demo == 1,
		CatchThreshold:  float64(catch),
		FinishThreshold: float64(finish),
	}
	if orient == 1 {
		m.Mounting = frame.Coxswain
	}
	return m
}

func headerSize(version int) int {
	if version == 1 {
		return headerSizeV1
	}
	return headerSizeV2
}

func imuStride(version int) int {
	if version == 3 {
		return imuSizeV3
	}
	return imuSizeV1
}

func offset(data []byte, r *bytes.Reader) int { return len(data) - r.Len() }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
