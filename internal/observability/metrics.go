package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Collector bundles Prometheus metrics for one pipeline and satisfies
// pipeline.Observer so it can be fanned in next to the other outputs.
type Collector struct {
	gatherer prometheus.Gatherer

	Samples     prometheus.Counter
	Strokes     prometheus.Counter
	Rejections  *prometheus.CounterVec
	Diagnostics *prometheus.CounterVec
	Analyses    *prometheus.CounterVec

	StrokeRate   prometheus.Gauge
	DrivePercent prometheus.Gauge
	SampleRate   prometheus.Gauge
	DriveSeconds prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Samples, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wrc_samples_total",
		Help: "IMU samples that went through the pipeline.",
	})); err != nil {
		return nil, err
	}
	if c.Strokes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wrc_strokes_total",
		Help: "Strokes emitted by the streaming detector.",
	})); err != nil {
		return nil, err
	}
	if c.Rejections, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrc_stroke_rejections_total",
		Help: "Rejected stroke candidates, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if c.Diagnostics, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrc_diagnostics_total",
		Help: "Pipeline diagnostics, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.Analyses, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrc_analyses_total",
		Help: "Periodic adaptive passes, labeled by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.StrokeRate, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrc_stroke_rate_spm",
		Help: "Stroke rate of the last complete stroke.",
	})); err != nil {
		return nil, err
	}
	if c.DrivePercent, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrc_drive_percent",
		Help: "Drive share of the last complete stroke cycle.",
	})); err != nil {
		return nil, err
	}
	if c.SampleRate, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wrc_sample_rate_hz",
		Help: "Measured IMU sample rate.",
	})); err != nil {
		return nil, err
	}
	if c.DriveSeconds, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wrc_drive_duration_seconds",
		Help:    "Drive phase duration.",
		Buckets: []float64{0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.2, 1.5},
	})); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) OnSample(pipeline.Output) { c.Samples.Inc() }

func (c *Collector) OnStroke(e stroke.Event) {
	c.Strokes.Inc()
	c.DriveSeconds.Observe(e.DriveTime / 1000)
	if e.Complete() {
		c.StrokeRate.Set(float64(e.StrokeRate))
		c.DrivePercent.Set(float64(e.DrivePercent))
	}
}

func (c *Collector) OnDiagnostic(d pipeline.Diagnostic) {
	c.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
	switch {
	case d.Rejection != nil:
		c.Rejections.WithLabelValues(string(d.Rejection.Reason)).Inc()
	case d.Kind == pipeline.RateMeasured:
		c.SampleRate.Set(d.Rate)
	}
}

func (c *Collector) OnAnalysis(a pipeline.Analysis) {
	outcome := "ok"
	if a.Err != nil {
		outcome = "insufficient"
	}
	c.Analyses.WithLabelValues(outcome).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Snapshot flattens the wrc_* counters and gauges into name{labels} keys.
// Histograms report their sample count.
func (c *Collector) Snapshot() (map[string]float64, error) {
	families, err := c.gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := map[string]float64{}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "wrc_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := mf.GetName() + labelString(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, lp.GetName()+"="+lp.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

// register adds col to reg, reusing an existing collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, col C) (C, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %T already registered with incompatible type", col)
		}
		var zero C
		return zero, err
	}
	return col, nil
}
