/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package prediction fits linear trends to metric series so a specialist
// can say whether a value is climbing, falling or flat without reading
// every sample.
package prediction

import (
	"fmt"
	"math"
	"time"
)

// MinDataPoints is the minimum number of usable samples for a trend.
const MinDataPoints = 5

// flatTolerance is the projected one-hour change, relative to the series
// mean, below which a series counts as flat.
const flatTolerance = 0.01

// Directions.
const (
	Rising  = "rising"
	Falling = "falling"
	Flat    = "flat"
)

// Point is one sample.
type Point struct {
	Time  time.Time
	Value float64
}

// Trend is the fitted line over a series.
type Trend struct {
	// Direction is rising, falling or flat.
	Direction string `json:"direction"`

	// PerHour is the slope in value units per hour.
	PerHour float64 `json:"perHour"`

	// Projected is the fitted value one hour after the last sample.
	Projected float64 `json:"projected"`

	// Interval is the approximate 95% prediction interval of Projected.
	Interval [2]float64 `json:"interval"`

	// RSquared is the goodness of fit, 0-1.
	RSquared float64 `json:"rSquared"`

	// Shift compares the means of the first and second half of the
	// series: increasing, decreasing or stable.
	Shift string `json:"shift"`

	DataPoints int `json:"dataPoints"`
}

// Analyze fits an ordinary least squares line through points. NaN and
// infinite samples are skipped. It returns nil when fewer than
// MinDataPoints samples remain.
func Analyze(points []Point) *Trend {
	usable := make([]Point, 0, len(points))
	for _, p := range points {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			usable = append(usable, p)
		}
	}
	if len(usable) < MinDataPoints {
		return nil
	}

	baseTime := usable[0].Time
	n := float64(len(usable))

	var sumX, sumY, sumXY, sumX2 float64
	xs := make([]float64, len(usable))
	for i, p := range usable {
		x := p.Time.Sub(baseTime).Seconds()
		xs[i] = x
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumX2 += x * x
	}
	last := usable[len(usable)-1].Value
	meanY := sumY / n

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		// All samples share one timestamp.
		return &Trend{
			Direction:  Flat,
			Projected:  last,
			Interval:   [2]float64{last, last},
			Shift:      shift(usable, meanY),
			DataPoints: len(usable),
		}
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	var ssRes, ssTot float64
	for i, p := range usable {
		predicted := intercept + slope*xs[i]
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	// A constant series is fitted exactly.
	rSquared := 1.0
	if ssTot > 0 {
		rSquared = max(0, 1-ssRes/ssTot)
	}

	perHour := slope * 3600
	projected := intercept + slope*(xs[len(xs)-1]+3600)

	// Approximate interval from the standard error of estimate.
	se := math.Sqrt(ssRes / (n - 2))
	interval := [2]float64{projected - 1.96*se, projected + 1.96*se}

	direction := Flat
	if math.Abs(perHour) > flatTolerance*math.Abs(meanY) {
		if perHour > 0 {
			direction = Rising
		} else {
			direction = Falling
		}
	}

	return &Trend{
		Direction:  direction,
		PerHour:    perHour,
		Projected:  projected,
		Interval:   interval,
		RSquared:   math.Round(rSquared*1000) / 1000,
		Shift:      shift(usable, meanY),
		DataPoints: len(usable),
	}
}

// shift compares the first and second half means against the series mean.
func shift(points []Point, mean float64) string {
	mid := len(points) / 2
	avg := func(ps []Point) float64 {
		var sum float64
		for _, p := range ps {
			sum += p.Value
		}
		return sum / float64(len(ps))
	}
	diff := avg(points[mid:]) - avg(points[:mid])
	threshold := flatTolerance * math.Abs(mean)
	switch {
	case diff > threshold:
		return "increasing"
	case diff < -threshold:
		return "decreasing"
	default:
		return "stable"
	}
}

// String renders the trend on one line.
func (t *Trend) String() string {
	return fmt.Sprintf("%s %+.3f/h (r²=%.2f, %s), projected +1h: %.3f [%.3f, %.3f]",
		t.Direction, t.PerHour, t.RSquared, t.Shift, t.Projected, t.Interval[0], t.Interval[1])
}
