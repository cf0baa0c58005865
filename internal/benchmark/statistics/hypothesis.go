package statistics

import (
	"math"
)

// TTestResult holds the outcome of a two-sample Welch's t-test.
type TTestResult struct {
	T            float64 `json:"t"`
	DF           float64 `json:"df"`
	PValue       float64 `json:"p_value"`
	Significant  bool    `json:"significant"`  // p < 0.05
	Insufficient bool    `json:"insufficient"` // fewer than 2 samples on either side
}

// WelchTTest compares the means of two independent groups without assuming
// equal variances.
// H0: The two groups share the same mean
// If p < 0.05: reject H0 (the means differ significantly)
func WelchTTest(groupA, groupB []float64) TTestResult {
	if len(groupA) < 2 || len(groupB) < 2 {
		// Not enough samples for a variance estimate; report, don't fail.
		return TTestResult{PValue: 1.0, Insufficient: true}
	}

	n1 := float64(len(groupA))
	n2 := float64(len(groupB))
	mean1 := Mean(groupA)
	mean2 := Mean(groupB)
	s1 := StdDev(groupA)
	s2 := StdDev(groupB)

	// Standard error components
	se1 := s1 * s1 / n1
	se2 := s2 * s2 / n2
	se := se1 + se2

	if se == 0 {
		// Zero variance on both sides: either identical groups or a
		// perfectly separated difference.
		if mean1 == mean2 {
			return TTestResult{PValue: 1.0}
		}
		t := math.Inf(1)
		if mean1 < mean2 {
			t = math.Inf(-1)
		}
		return TTestResult{T: t, PValue: 0, Significant: true}
	}

	t := (mean1 - mean2) / math.Sqrt(se)

	// Welch-Satterthwaite degrees of freedom
	df := se * se / (se1*se1/(n1-1) + se2*se2/(n2-1))

	p := studentTPValue(t, df)

	return TTestResult{
		T:           t,
		DF:          df,
		PValue:      p,
		Significant: p < 0.05,
	}
}

// studentTPValue returns the two-tailed p-value of a t statistic with df
// degrees of freedom, via the regularized incomplete beta function.
func studentTPValue(t, df float64) float64 {
	if df <= 0 {
		return 1.0
	}
	x := df / (df + t*t)
	return regularizedIncompleteBeta(df/2.0, 0.5, x)
}

// regularizedIncompleteBeta computes I_x(a, b) with the continued-fraction
// expansion, using the symmetry relation for x past the convergence midpoint.
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lgAB, _ := math.Lgamma(a + b)
	lgA, _ := math.Lgamma(a)
	lgB, _ := math.Lgamma(b)
	front := math.Exp(lgAB - lgA - lgB + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction evaluates the incomplete beta continued fraction
// with the modified Lentz method.
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 1e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1.0 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1.0 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		// Even step
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1.0 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1.0 / d
		h *= d * c

		// Odd step
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1.0 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1.0 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1.0 / d
		delta := d * c
		h *= delta

		if math.Abs(delta-1.0) < epsilon {
			break
		}
	}
	return h
}

// EffectSize holds Cohen's d and its qualitative magnitude.
type EffectSize struct {
	D     float64 `json:"d"`
	Label string  `json:"label"`
}

// CohensD computes the standardized mean difference between two groups,
// pooling the standard deviations as sqrt((s1²+s2²)/2).
func CohensD(groupA, groupB []float64) EffectSize {
	s1 := StdDev(groupA)
	s2 := StdDev(groupB)
	pooled := math.Sqrt((s1*s1 + s2*s2) / 2.0)
	if pooled == 0 {
		return EffectSize{Label: effectLabel(0)}
	}
	d := (Mean(groupA) - Mean(groupB)) / pooled
	return EffectSize{D: d, Label: effectLabel(d)}
}

func effectLabel(d float64) string {
	abs := math.Abs(d)
	switch {
	case abs < 0.2:
		return "negligible"
	case abs < 0.5:
		return "small"
	case abs < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// Comparison bundles the hypothesis-test outcome for one metric across two
// groups of runs.
type Comparison struct {
	MeanDiffPct float64     `json:"mean_diff_pct"` // relative to group A
	TTest       TTestResult `json:"t_test"`
	Effect      EffectSize  `json:"effect_size"`
	HasOverlap  bool        `json:"has_overlap"` // raw value ranges overlap
}

// Compare performs the statistical comparison between two groups
func Compare(statsA, statsB Stats) Comparison {
	meanDiff := 0.0
	if statsA.Mean != 0 {
		meanDiff = ((statsB.Mean - statsA.Mean) / statsA.Mean) * 100
	}

	return Comparison{
		MeanDiffPct: meanDiff,
		TTest:       WelchTTest(statsA.Values, statsB.Values),
		Effect:      CohensD(statsA.Values, statsB.Values),
		HasOverlap:  HasOverlap(statsA, statsB),
	}
}
