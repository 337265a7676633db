package app

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/calibration"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/filter"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/session"
)

// Info describes a container without running the pipeline.
type Info struct {
	Version            int                 `yaml:"version"`
	Meta               codec.Metadata      `yaml:"meta"`
	IMUSamples         int                 `yaml:"imu_samples"`
	GPSSamples         int                 `yaml:"gps_samples"`
	CalibrationSamples int                 `yaml:"calibration_samples"`
	AuxSamples         int                 `yaml:"aux_samples"`
	DurationS          float64             `yaml:"duration_s"`
	SampleRateHz       float64             `yaml:"sample_rate_hz,omitempty"`
	NonFinite          int                 `yaml:"non_finite_samples"`
	Calibration        *calibration.Record `yaml:"calibration,omitempty"`
	CalibrationQuality string              `yaml:"calibration_quality,omitempty"`
	GravityPlausible   *bool               `yaml:"gravity_plausible,omitempty"`
	DistanceM          float64             `yaml:"distance_m,omitempty"`
	AvgSplit           string              `yaml:"avg_split,omitempty"`
}

func Inspect(s *codec.Session) Info {
	info := Info{
		Version:            s.Version,
		Meta:               s.Meta,
		IMUSamples:         len(s.IMU),
		GPSSamples:         len(s.GPS),
		CalibrationSamples: len(s.CalibrationSamples),
		Calibration:        s.Calibration,
	}
	info.AuxSamples, _ = codec.AuxCoverage(s)
	info.NonFinite = lo.CountBy(s.IMU, func(r imu.RawSample) bool { return !r.Finite() })

	if n := len(s.IMU); n > 1 {
		info.DurationS = (s.IMU[n-1].T - s.IMU[0].T) / 1000
		ts := lo.Map(s.IMU, func(r imu.RawSample, _ int) float64 { return r.T })
		if rate, err := filter.MeasureSampleRate(ts); err == nil {
			info.SampleRateHz = rate
		}
	}
	if s.Calibration != nil {
		info.CalibrationQuality = s.Calibration.QualityLabel()
		plausible := s.Calibration.GravityPlausible()
		info.GravityPlausible = &plausible
	}
	if len(s.GPS) > 0 {
		sum := session.Summarize(nil, s.GPS)
		info.DistanceM = sum.Distance
		if sum.AvgSplit > 0 {
			info.AvgSplit = session.FormatSplit(sum.AvgSplit)
		}
	}
	return info
}

// RunInspect prints Info for the container at path as YAML.
func RunInspect(path string, out io.Writer) (Info, error) {
	s, err := ReadSession(path)
	if err != nil {
		return Info{}, err
	}
	info := Inspect(s)
	data, err := yaml.Marshal(info)
	if err != nil {
		return info, fmt.Errorf("marshal info: %w", err)
	}
	_, err = out.Write(data)
	return info, err
}
