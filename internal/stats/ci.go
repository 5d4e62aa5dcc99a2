// Package stats computes binomial confidence intervals for Attack Success
// Rate measurements. Wilson is used for comfortable sample sizes; the exact
// Clopper-Pearson interval covers small n and boundary cases.
package stats

import (
	"fmt"
	"math"
)

// Method selects the interval construction.
type Method string

const (
	MethodAuto           Method = "auto"
	MethodWilson         Method = "wilson"
	MethodClopperPearson Method = "clopper-pearson"
)

// Interval is the result of one CI computation.
type Interval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	PointEstimate   float64 `json:"point_estimate"`
	MethodUsed      Method  `json:"method_used"`
	Warning         string  `json:"warning,omitempty"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// smallSampleThreshold is the n below which auto prefers the exact interval.
const smallSampleThreshold = 20

// warnSampleThreshold is the n below which a larger-sample warning attaches.
const warnSampleThreshold = 30

// ConfidenceInterval computes a binomial CI for successes out of trials at
// the given confidence level (e.g. 0.95).
//
// Auto selection: Clopper-Pearson when n < 20, x = 0 or x = n; Wilson
// otherwise.
func ConfidenceInterval(successes, trials int, method Method, confidence float64) (Interval, error) {
	if trials < 1 {
		return Interval{}, fmt.Errorf("trials must be >= 1, got %d", trials)
	}
	if successes < 0 || successes > trials {
		return Interval{}, fmt.Errorf("successes must be in [0, %d], got %d", trials, successes)
	}
	if confidence <= 0 || confidence >= 1 {
		return Interval{}, fmt.Errorf("confidence must be in (0, 1), got %v", confidence)
	}

	used := method
	if method == MethodAuto || method == "" {
		if trials < smallSampleThreshold || successes == 0 || successes == trials {
			used = MethodClopperPearson
		} else {
			used = MethodWilson
		}
	}

	var lower, upper float64
	switch used {
	case MethodWilson:
		lower, upper = wilson(successes, trials, confidence)
	case MethodClopperPearson:
		lower, upper = clopperPearson(successes, trials, confidence)
	default:
		return Interval{}, fmt.Errorf("unknown CI method %q: valid methods are auto, wilson, clopper-pearson", method)
	}

	iv := Interval{
		Lower:           lower,
		Upper:           upper,
		PointEstimate:   float64(successes) / float64(trials),
		MethodUsed:      used,
		ConfidenceLevel: confidence,
	}
	if trials < warnSampleThreshold {
		iv.Warning = fmt.Sprintf("sample size %d is small; intervals are wide, consider n >= %d", trials, warnSampleThreshold)
	}
	return iv, nil
}

// wilson computes the Wilson score interval.
func wilson(x, n int, confidence float64) (float64, float64) {
	z := normalQuantile(1 - (1-confidence)/2)
	p := float64(x) / float64(n)
	fn := float64(n)

	denom := 1 + z*z/fn
	center := (p + z*z/(2*fn)) / denom
	margin := (z / denom) * math.Sqrt(p*(1-p)/fn+z*z/(4*fn*fn))

	return clamp01(center - margin), clamp01(center + margin)
}

// clopperPearson computes the exact interval from beta quantiles:
// lower = Beta_{alpha/2}(x, n-x+1), upper = Beta_{1-alpha/2}(x+1, n-x).
func clopperPearson(x, n int, confidence float64) (float64, float64) {
	alpha := 1 - confidence

	var lower, upper float64
	if x == 0 {
		lower = 0
	} else {
		lower = betaQuantile(alpha/2, float64(x), float64(n-x+1))
	}
	if x == n {
		upper = 1
	} else {
		upper = betaQuantile(1-alpha/2, float64(x+1), float64(n-x))
	}
	return clamp01(lower), clamp01(upper)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
