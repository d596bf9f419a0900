package evaluation

import (
	"math"

	"predeval/internal/domain/models"
)

// Accumulator computes accuracy metrics over aligned points in a single
// pass. Only points carrying an actual price contribute; interval metrics
// additionally require both bounds.
type Accumulator struct {
	n         int
	nPct      int
	sumErr    float64
	sumAbsErr float64
	sumSqErr  float64
	sumPctErr float64
	sumRelErr float64

	nInterval   int
	covered     int
	sumWidth    float64
	sumWidthPct float64
}

// Add folds one aligned point into the accumulator. Points without an
// actual are ignored.
func (a *Accumulator) Add(p models.AlignedPoint) {
	if !p.HasActual || p.ActualPrice == nil {
		return
	}
	actual := *p.ActualPrice
	err := p.Prediction - actual

	a.n++
	a.sumErr += err
	a.sumAbsErr += math.Abs(err)
	a.sumSqErr += err * err
	if actual != 0 {
		a.nPct++
		a.sumPctErr += math.Abs(err) / math.Abs(actual) * 100
		a.sumRelErr += err / actual
	}

	if p.IntervalLower != nil && p.IntervalUpper != nil {
		a.nInterval++
		if actual >= *p.IntervalLower && actual <= *p.IntervalUpper {
			a.covered++
		}
		width := *p.IntervalUpper - *p.IntervalLower
		a.sumWidth += width
		if p.Prediction != 0 {
			a.sumWidthPct += width / math.Abs(p.Prediction) * 100
		}
	}
}

// Bundle returns the finished metrics, or nil when nothing was evaluable.
func (a *Accumulator) Bundle() *models.MetricsBundle {
	if a.n == 0 {
		return nil
	}
	n := float64(a.n)
	b := &models.MetricsBundle{
		N:    a.n,
		MAE:  a.sumAbsErr / n,
		RMSE: math.Sqrt(a.sumSqErr / n),
		Bias: a.sumErr / n,
	}

	// percent terms average only over points with a nonzero actual
	if a.nPct > 0 {
		np := float64(a.nPct)
		b.MAPE = a.sumPctErr / np
		b.BiasPct = a.sumRelErr / np * 100
	}

	if a.nInterval > 0 {
		ni := float64(a.nInterval)
		coverage := float64(a.covered) / ni * 100
		avgWidth := a.sumWidth / ni
		avgWidthPct := a.sumWidthPct / ni
		b.Coverage = &coverage
		b.AvgIntervalWidth = &avgWidth
		b.AvgIntervalWidthPct = &avgWidthPct
	}
	return b
}

// Compute runs the accumulator over a slice of aligned points.
func Compute(points []models.AlignedPoint) *models.MetricsBundle {
	var acc Accumulator
	for _, p := range points {
		acc.Add(p)
	}
	return acc.Bundle()
}
