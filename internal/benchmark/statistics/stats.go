package statistics

import (
	"math"
	"sort"
)

// CV grade boundaries: below Excellent the run-to-run spread is negligible,
// above Unreliable the summary should not be trusted.
const (
	CVExcellent  = 0.10
	CVUnreliable = 0.20
)

// Stats holds statistical measures for a metric
type Stats struct {
	Median float64   `json:"median"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"stddev"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	CV     float64   `json:"cv"` // Coefficient of Variation (stddev/mean ratio)
	Values []float64 `json:"values,omitempty"`
}

// Median calculates the median of a slice of float64 values
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// Mean calculates the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev calculates the sample standard deviation
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// CV calculates the coefficient of variation (stddev/mean). A mean of zero
// or below yields 0 rather than a division error.
func CV(values []float64) float64 {
	mean := Mean(values)
	if mean <= 0 {
		return 0
	}
	return StdDev(values) / mean
}

// CVGrade classifies a coefficient of variation. "unreliable" is a warning
// to surface, not an error: the statistics are still reported.
func CVGrade(cv float64) string {
	switch {
	case cv < CVExcellent:
		return "excellent"
	case cv <= CVUnreliable:
		return "acceptable"
	default:
		return "unreliable"
	}
}

// Percentile returns the q-th percentile (0 < q ≤ 100) of values using the
// index convention idx = n*q/100 on a sorted copy.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * q / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Calculate computes all statistical measures for a slice of values
func Calculate(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// Store copy for later use (e.g., Welch's t-test)
	valuesCopy := make([]float64, len(values))
	copy(valuesCopy, values)

	return Stats{
		Median: Median(values),
		Mean:   Mean(values),
		StdDev: StdDev(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		CV:     CV(values),
		Values: valuesCopy,
	}
}

// HasOverlap checks if two value ranges overlap
func HasOverlap(statsA, statsB Stats) bool {
	// No overlap if: Min A > Max B OR Min B > Max A
	return !(statsA.Min > statsB.Max || statsB.Min > statsA.Max)
}

// OutlierReport lists values outside Tukey's fences. Flagged values remain
// part of every other statistic; this is a report, never a filter.
type OutlierReport struct {
	Low        []float64 `json:"low,omitempty"`
	High       []float64 `json:"high,omitempty"`
	LowerFence float64   `json:"lower_fence"`
	UpperFence float64   `json:"upper_fence"`
}

// Any reports whether at least one value was flagged.
func (r OutlierReport) Any() bool {
	return len(r.Low) > 0 || len(r.High) > 0
}

// Count returns the total number of flagged values.
func (r OutlierReport) Count() int {
	return len(r.Low) + len(r.High)
}

// Outliers flags values outside Q1−1.5·IQR and Q3+1.5·IQR. Fewer than four
// values cannot anchor the fences, so nothing is flagged.
func Outliers(values []float64) OutlierReport {
	if len(values) < 4 {
		return OutlierReport{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1, q3 := quartiles(sorted)
	iqr := q3 - q1
	report := OutlierReport{
		LowerFence: q1 - 1.5*iqr,
		UpperFence: q3 + 1.5*iqr,
	}

	for _, v := range sorted {
		switch {
		case v < report.LowerFence:
			report.Low = append(report.Low, v)
		case v > report.UpperFence:
			report.High = append(report.High, v)
		}
	}
	return report
}

// quartiles returns Q1 and Q3 of a sorted slice, each as the median of the
// half excluding the overall median.
func quartiles(sorted []float64) (q1, q3 float64) {
	n := len(sorted)
	q1 = Median(sorted[:n/2])
	q3 = Median(sorted[(n+1)/2:])
	return q1, q3
}
