package pipeline

import (
	"github.com/thiesmoeller/wrc-coach-sub001/internal/frame"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/orientation"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Output is the per-sample state handed to observers.
type Output struct {
	T           float64                 `json:"t"`
	Orientation orientation.Orientation `json:"orientation"`
	Boat        frame.BoatAcceleration  `json:"boat"`
	Filtered    float64                 `json:"filtered"`
	Phase       stroke.Phase            `json:"phase"`
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind string

const (
	InvalidSample     DiagnosticKind = "invalid_sample"
	OrientationReject DiagnosticKind = "orientation_rejected"
	Rejected          DiagnosticKind = "stroke_rejected"
	RateMeasured      DiagnosticKind = "rate_measured"
	AxesDetected      DiagnosticKind = "axes_detected"
	AxesUnreliable    DiagnosticKind = "axes_unreliable"
	AxesUnavailable   DiagnosticKind = "axes_unavailable"
)

// Diagnostic reports something a tuner may want to see. None of them stop
// the pipeline.
type Diagnostic struct {
	T         float64             `json:"t"`
	Kind      DiagnosticKind      `json:"kind"`
	Err       error               `json:"-"`
	Rejection *stroke.Rejection   `json:"rejection,omitempty"`
	Axes      *frame.DetectedAxes `json:"axes,omitempty"`
	Rate      float64             `json:"rate,omitempty"`
}

// Analysis is the result of a periodic offline pass over the recent
// history.
type Analysis struct {
	T      float64               `json:"t"`
	Result stroke.AdaptiveResult `json:"result"`
	Err    error                 `json:"-"`
}

// Observer receives pipeline output. Calls happen on the goroutine that
// feeds the pipeline.
type Observer interface {
	OnSample(Output)
	OnStroke(stroke.Event)
	OnDiagnostic(Diagnostic)
	OnAnalysis(Analysis)
}

// NopObserver ignores everything; embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnSample(Output)         {}
func (NopObserver) OnStroke(stroke.Event)   {}
func (NopObserver) OnDiagnostic(Diagnostic) {}
func (NopObserver) OnAnalysis(Analysis)     {}

// Observers fans out to several observers in order.
type Observers []Observer

func (os Observers) OnSample(o Output) {
	for _, ob := range os {
		ob.OnSample(o)
	}
}

func (os Observers) OnStroke(e stroke.Event) {
	for _, ob := range os {
		ob.OnStroke(e)
	}
}

func (os Observers) OnDiagnostic(d Diagnostic) {
	for _, ob := range os {
		ob.OnDiagnostic(d)
	}
}

func (os Observers) OnAnalysis(a Analysis) {
	for _, ob := range os {
		ob.OnAnalysis(a)
	}
}

// Recorder keeps everything it observes in memory. Samples are only kept
// when KeepSamples is set.
type Recorder struct {
	KeepSamples bool

	Samples     []Output
	Strokes     []stroke.Event
	Diagnostics []Diagnostic
	Analyses    []Analysis
}

func (r *Recorder) OnSample(o Output) {
	if r.KeepSamples {
		r.Samples = append(r.Samples, o)
	}
}

func (r *Recorder) OnStroke(e stroke.Event)   { r.Strokes = append(r.Strokes, e) }
func (r *Recorder) OnDiagnostic(d Diagnostic) { r.Diagnostics = append(r.Diagnostics, d) }
func (r *Recorder) OnAnalysis(a Analysis)     { r.Analyses = append(r.Analyses, a) }

// Count returns how many diagnostics of kind k were recorded.
func (r *Recorder) Count(k DiagnosticKind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}
