// Package session reduces a recorded outing to the numbers a coach reads
// after the row.
package session

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// MovingSpeed is the slowest GPS speed, m/s, that still counts as rowing.
const MovingSpeed = 0.1

// Summary of one session. Splits are seconds per 500 m, 0 when the boat
// never moved.
type Summary struct {
	Strokes         int     `json:"strokes" yaml:"strokes"`
	CompleteStrokes int     `json:"complete_strokes" yaml:"complete_strokes"`
	RateMean        float64 `json:"rate_mean" yaml:"rate_mean"`
	RateStd         float64 `json:"rate_std" yaml:"rate_std"`
	DriveMean       float64 `json:"drive_mean" yaml:"drive_mean"`
	DriveStd        float64 `json:"drive_std" yaml:"drive_std"`

	Duration  float64 `json:"duration_s" yaml:"duration_s"`
	Distance  float64 `json:"distance_m" yaml:"distance_m"`
	MeanSpeed float64 `json:"mean_speed" yaml:"mean_speed"`
	AvgSplit  float64 `json:"avg_split_s" yaml:"avg_split_s"`
	BestSplit float64 `json:"best_split_s" yaml:"best_split_s"`
}

// Summarize computes rate and drive statistics over the complete strokes
// and distance and splits over the GPS track.
func Summarize(events []stroke.Event, fixes []gps.Sample) Summary {
	s := Summary{Strokes: len(events)}

	complete := lo.Filter(events, func(e stroke.Event, _ int) bool { return e.Complete() })
	s.CompleteStrokes = len(complete)
	if len(complete) > 0 {
		rates := lo.Map(complete, func(e stroke.Event, _ int) float64 { return float64(e.StrokeRate) })
		drives := lo.Map(complete, func(e stroke.Event, _ int) float64 { return float64(e.DrivePercent) })
		s.RateMean, s.RateStd = stat.PopMeanStdDev(rates, nil)
		s.DriveMean, s.DriveStd = stat.PopMeanStdDev(drives, nil)
	}

	s.Duration = span(events, fixes) / 1000

	for i := 1; i < len(fixes); i++ {
		s.Distance += fixes[i-1].DistanceTo(fixes[i])
	}
	if len(fixes) > 0 {
		s.MeanSpeed = lo.SumBy(fixes, func(f gps.Sample) float64 { return f.Speed }) / float64(len(fixes))
	}

	moving := lo.Filter(fixes, func(f gps.Sample, _ int) bool { return f.Speed > MovingSpeed })
	if len(moving) > 0 {
		splits := lo.Map(moving, func(f gps.Sample, _ int) float64 { return 500 / f.Speed })
		s.AvgSplit = stat.Mean(splits, nil)
		s.BestSplit = lo.Min(splits)
	}
	return s
}

// span is the ms covered by strokes and fixes together.
func span(events []stroke.Event, fixes []gps.Sample) float64 {
	first, last := math.Inf(1), math.Inf(-1)
	for _, e := range events {
		first, last = math.Min(first, e.CatchTime), math.Max(last, e.FinishTime)
	}
	for _, f := range fixes {
		first, last = math.Min(first, f.T), math.Max(last, f.T)
	}
	if last < first {
		return 0
	}
	return last - first
}

// FormatSplit renders seconds per 500 m as m:ss /500m.
func FormatSplit(sec float64) string {
	if sec <= 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return "-:-- /500m"
	}
	whole := int(sec)
	return fmt.Sprintf("%d:%02d /500m", whole/60, whole%60)
}

func (s Summary) Lines() []string {
	out := []string{
		fmt.Sprintf("Total Strokes: %d (%d complete)", s.Strokes, s.CompleteStrokes),
		fmt.Sprintf("Avg Stroke Rate: %.1f ± %.1f SPM", s.RateMean, s.RateStd),
		fmt.Sprintf("Avg Drive Ratio: %.1f ± %.1f%%", s.DriveMean, s.DriveStd),
		fmt.Sprintf("Duration: %.0f s", s.Duration),
	}
	if s.Distance > 0 || s.MeanSpeed > 0 {
		out = append(out,
			fmt.Sprintf("Distance: %.0f m (%.2f km)", s.Distance, s.Distance/1000),
			fmt.Sprintf("Avg Boat Speed: %.2f m/s", s.MeanSpeed),
			fmt.Sprintf("Avg Split: %s  Best: %s", FormatSplit(s.AvgSplit), FormatSplit(s.BestSplit)),
		)
	}
	return out
}
