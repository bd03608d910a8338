// metrics.go
package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MSE 均方误差
func MSE(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return math.NaN()
	}
	diff := make([]float64, len(actual))
	floats.SubTo(diff, actual, predicted)
	return floats.Dot(diff, diff) / float64(len(diff))
}

// RSquared 决定系数
func RSquared(actual, predicted []float64) float64 {
	if len(actual) < 2 || len(actual) != len(predicted) {
		return math.NaN()
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}

// AdjustedRSquared 调整后的决定系数, p 为不含截距的特征数
func AdjustedRSquared(r2 float64, n, p int) float64 {
	if n-p-1 <= 0 {
		return math.NaN()
	}
	return 1 - (1-r2)*float64(n-1)/float64(n-p-1)
}
