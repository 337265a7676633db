package app

import (
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// LogObserver writes pipeline events to a zap logger. Samples are logged at
// debug level every SampleEvery samples.
type LogObserver struct {
	log         *zap.Logger
	SampleEvery int
	n           int
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{log: logger, SampleEvery: 50}
}

func (l *LogObserver) OnSample(o pipeline.Output) {
	l.n++
	if l.SampleEvery <= 0 || l.n%l.SampleEvery != 0 {
		return
	}
	l.log.Debug("sample",
		zap.Float64("t", o.T),
		zap.Float64("pitch", o.Orientation.Pitch),
		zap.Float64("roll", o.Orientation.Roll),
		zap.Float64("surge", o.Boat.Surge),
		zap.Float64("filtered", o.Filtered),
		zap.Stringer("phase", o.Phase),
	)
}

func (l *LogObserver) OnStroke(e stroke.Event) {
	l.log.Info("stroke",
		zap.Float64("catch", e.CatchTime),
		zap.Float64("drive_ms", e.DriveTime),
		zap.Float64("recovery_ms", e.RecoveryTime),
		zap.Int("spm", e.StrokeRate),
		zap.Int("drive_pct", e.DrivePercent),
		zap.Float64("peak", e.PeakAccel),
	)
}

func (l *LogObserver) OnDiagnostic(d pipeline.Diagnostic) {
	fields := []zap.Field{zap.Float64("t", d.T), zap.String("kind", string(d.Kind))}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}
	switch {
	case d.Rejection != nil:
		fields = append(fields,
			zap.String("reason", string(d.Rejection.Reason)),
			zap.Float64("duration_ms", d.Rejection.Duration))
		l.log.Debug("candidate rejected", fields...)
	case d.Axes != nil:
		fields = append(fields, zap.Float64("confidence", d.Axes.Confidence))
		l.log.Info("axes", fields...)
	case d.Kind == pipeline.RateMeasured:
		l.log.Info("sample rate measured", append(fields, zap.Float64("hz", d.Rate))...)
	case d.Kind == pipeline.AxesUnavailable:
		l.log.Debug("axes unavailable", fields...)
	default:
		l.log.Warn("diagnostic", fields...)
	}
}

func (l *LogObserver) OnAnalysis(a pipeline.Analysis) {
	if a.Err != nil {
		l.log.Debug("analysis skipped", zap.Float64("t", a.T), zap.Error(a.Err))
		return
	}
	l.log.Info("analysis",
		zap.Float64("t", a.T),
		zap.Int("strokes", len(a.Result.Strokes)),
		zap.Int("rejected", len(a.Result.Rejected)),
		zap.Float64("threshold", a.Result.Threshold),
	)
}
