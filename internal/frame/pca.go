// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/ring"
)

const (
	DefaultAxisWindow    = 500
	DefaultMotionFloor   = 1.0 // m/s²
	MinAxisSamples       = 100
	MinMovingSamples     = 50
	ReliableConfidence   = 0.6
	powerIterations      = 200
	powerTolerance       = 1e-12
	degenerateCovariance = 1e-9
	minorFloor           = 1e-6
)

var (
	ErrInsufficientData     = errors.New("frame: insufficient data for axis detection")
	ErrDegenerateCovariance = errors.New("frame: degenerate motion covariance")
)

// DetectedAxes is the boat frame found by principal component analysis of
// the phone-frame acceleration. Axes are orthonormal and right handed:
// PortStarboard = BowStern × Vertical.
type DetectedAxes struct {
	BowStern      r3.Vector
	PortStarboard r3.Vector
	Vertical      r3.Vector
	// Explained holds the variance fraction of each axis, in the order
	// BowStern, PortStarboard, Vertical.
	Explained [3]float64
	// Confidence is λ1/(λ1+λ2) of the two largest eigenvalues.
	Confidence float64
	// Gravity is the per-axis median of the window.
	Gravity r3.Vector
}

// Reliable reports whether the dominant axis stands out clearly enough to be
// trusted as the bow-stern direction.
func (d DetectedAxes) Reliable() bool { return d.Confidence >= ReliableConfidence }

// Project removes the gravity estimate and projects onto the boat axes.
func (d DetectedAxes) Project(a r3.Vector) BoatAcceleration {
	r := a.Sub(d.Gravity)
	return BoatAcceleration{
		Surge: r.Dot(d.BowStern),
		Sway:  r.Dot(d.PortStarboard),
		Heave: r.Dot(d.Vertical),
	}
}

// AxisDetector keeps a bounded window of raw phone-frame acceleration and
// finds the boat axes in it on demand.
type AxisDetector struct {
	window      *ring.Buffer[r3.Vector]
	motionFloor float64
}

// NewAxisDetector returns a detector over the last window samples, ignoring
// samples whose gravity-free magnitude is below motionFloor. Non-positive
// arguments select the defaults.
func NewAxisDetector(window int, motionFloor float64) *AxisDetector {
	if window <= 0 {
		window = DefaultAxisWindow
	}
	if motionFloor <= 0 {
		motionFloor = DefaultMotionFloor
	}
	return &AxisDetector{window: ring.New[r3.Vector](window), motionFloor: motionFloor}
}

// Add buffers one accelerometer reading. Non-finite readings are dropped.
func (d *AxisDetector) Add(a r3.Vector) {
	if !finiteVec(a) {
		return
	}
	d.window.Push(a)
}

func (d *AxisDetector) Len() int { return d.window.Len() }

func (d *AxisDetector) Reset() { d.window.Reset() }

// Detect runs the analysis over the current window.
func (d *AxisDetector) Detect() (DetectedAxes, error) {
	samples := d.window.Snapshot()
	if len(samples) < MinAxisSamples {
		return DetectedAxes{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(samples), MinAxisSamples)
	}

	gravity := medianVec(samples)
	residual := make([]r3.Vector, len(samples))
	moving := make([]r3.Vector, 0, len(samples))
	for i, a := range samples {
		residual[i] = a.Sub(gravity)
		if residual[i].Norm() >= d.motionFloor {
			moving = append(moving, residual[i])
		}
	}
	if len(moving) < MinMovingSamples {
		return DetectedAxes{}, fmt.Errorf("%w: %d moving samples, need %d", ErrInsufficientData, len(moving), MinMovingSamples)
	}

	cov := covariance(moving)
	if cov.trace() < degenerateCovariance {
		return DetectedAxes{}, ErrDegenerateCovariance
	}

	v1, l1 := dominant(cov, nil)
	v2, l2 := dominant(cov.deflate(v1, l1), &v1)
	v3 := v1.Cross(v2).Normalize()
	l3 := math.Max(v3.Dot(cov.mulVec(v3)), 0)

	// The sign comes from the whole window: the motion floor cuts out the
	// centre of the distribution and can flip the third moment.
	bow := v1
	if skewness(residual, bow) < 0 {
		bow = bow.Mul(-1)
	}
	vertical := verticalAxis(gravity, bow, l1, v2, l2, v3, l3)
	starboard := bow.Cross(vertical).Normalize()

	total := cov.trace()
	return DetectedAxes{
		BowStern:      bow,
		PortStarboard: starboard,
		Vertical:      vertical,
		Explained: [3]float64{
			bow.Dot(cov.mulVec(bow)) / total,
			starboard.Dot(cov.mulVec(starboard)) / total,
			vertical.Dot(cov.mulVec(vertical)) / total,
		},
		Confidence: l1 / (l1 + math.Max(l2, l3)),
		Gravity:    gravity,
	}, nil
}

// verticalAxis picks the heave direction in the plane orthogonal to bow.
// With well separated minor eigenvalues it is the eigenvector closest to
// gravity; otherwise the plane has no preferred direction and gravity,
// projected into it, decides. Minor eigenvalues below minorFloor·l1 are
// rounding residue and never count as separated. The result points along
// the gravity reading.
func verticalAxis(gravity, bow r3.Vector, l1 float64, v2 r3.Vector, l2 float64, v3 r3.Vector, l3 float64) r3.Vector {
	up := gravity.Normalize()
	var vertical r3.Vector
	separated := math.Max(l2, l3) > minorFloor*l1 && math.Min(l2, l3) < 0.5*math.Max(l2, l3)
	projected := up.Sub(bow.Mul(up.Dot(bow)))
	switch {
	case separated || projected.Norm() < 1e-6:
		vertical = v3
		if math.Abs(v2.Dot(up)) > math.Abs(v3.Dot(up)) {
			vertical = v2
		}
	default:
		vertical = projected.Normalize()
	}
	if vertical.Dot(up) < 0 {
		vertical = vertical.Mul(-1)
	}
	return vertical
}

type sym3 [3][3]float64

func covariance(vs []r3.Vector) sym3 {
	var mean r3.Vector
	for _, v := range vs {
		mean = mean.Add(v)
	}
	mean = mean.Mul(1 / float64(len(vs)))

	var c sym3
	for _, v := range vs {
		d := v.Sub(mean)
		e := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				c[i][j] += e[i] * e[j]
			}
		}
	}
	n := float64(len(vs))
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			c[i][j] /= n
			c[j][i] = c[i][j]
		}
	}
	return c
}

func (m sym3) trace() float64 { return m[0][0] + m[1][1] + m[2][2] }

func (m sym3) mulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// deflate removes the eigenpair (v, l): m - l·v·vᵀ.
func (m sym3) deflate(v r3.Vector, l float64) sym3 {
	e := [3]float64{v.X, v.Y, v.Z}
	var out sym3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][j] - l*e[i]*e[j]
		}
	}
	return out
}

// dominant finds the leading eigenvector of m by power iteration. When
// orth is set the iterate is kept orthogonal to it.
func dominant(m sym3, orth *r3.Vector) (r3.Vector, float64) {
	starts := []r3.Vector{
		{X: 1, Y: 1, Z: 1},
		{X: 1},
		{Y: 1},
		{Z: 1},
	}
	for _, s := range starts {
		v := project(s, orth)
		if v.Norm() < 1e-9 {
			continue
		}
		v = v.Normalize()
		ok := false
		for i := 0; i < powerIterations; i++ {
			next := project(m.mulVec(v), orth)
			n := next.Norm()
			if n < 1e-15 {
				break
			}
			next = next.Mul(1 / n)
			done := next.Sub(v).Norm() < powerTolerance
			v, ok = next, true
			if done {
				break
			}
		}
		if ok {
			return v, math.Max(v.Dot(m.mulVec(v)), 0)
		}
	}
	// m vanishes on the allowed subspace: any admissible unit vector works.
	if orth != nil {
		return orth.Ortho(), 0
	}
	return r3.Vector{X: 1}, 0
}

func project(v r3.Vector, orth *r3.Vector) r3.Vector {
	if orth == nil {
		return v
	}
	return v.Sub(orth.Mul(v.Dot(*orth)))
}

func skewness(vs []r3.Vector, axis r3.Vector) float64 {
	p := make([]float64, len(vs))
	var mean float64
	for i, v := range vs {
		p[i] = v.Dot(axis)
		mean += p[i]
	}
	mean /= float64(len(p))
	var m3 float64
	for _, x := range p {
		d := x - mean
		m3 += d * d * d
	}
	return m3
}

func medianVec(vs []r3.Vector) r3.Vector {
	xs := make([]float64, len(vs))
	ys := make([]float64, len(vs))
	zs := make([]float64, len(vs))
	for i, v := range vs {
		xs[i], ys[i], zs[i] = v.X, v.Y, v.Z
	}
	return r3.Vector{X: median(xs), Y: median(ys), Z: median(zs)}
}

// median sorts x in place. An even count gives the mean of the two middle
// values; stat.Quantile(0.5, stat.Empirical, ...) would return the lower one.
func median(x []float64) float64 {
	sort.Float64s(x)
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return stat.Mean(x[n/2-1:n/2+1], nil)
}

func finiteVec(v r3.Vector) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
