package model

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fareFrame fare = 3 + 2.5*distance + 4(Night) + 1(Morning) + 噪声
func fareFrame(n int) dataframe.DataFrame {
	distance := make([]float64, n)
	fare := make([]float64, n)
	tod := make([]string, n)
	buckets := []string{"Midday", "Morning", "Night"}
	shift := map[string]float64{"Midday": 0, "Morning": 1, "Night": 4}
	for i := 0; i < n; i++ {
		distance[i] = float64(i%17) + 0.5
		tod[i] = buckets[i%3]
		noise := 0.01 * math.Sin(float64(i)*1.7)
		fare[i] = 3 + 2.5*distance[i] + shift[tod[i]] + noise
	}
	return dataframe.New(
		series.New(distance, series.Float, "trip_distance"),
		series.New(tod, series.String, "time_of_day"),
		series.New(fare, series.Float, "fare_amount"),
	)
}

func TestLinearRegression(t *testing.T) {
	var out bytes.Buffer
	m, summary, err := LinearRegression(fareFrame(90), RegressionOptions{
		Target:      "fare_amount",
		Features:    []string{"trip_distance"},
		Categorical: []string{"time_of_day"},
		TestSize:    0.2,
		Seed:        42,
		Out:         &out,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{InterceptTerm, "trip_distance", "time_of_day_Morning", "time_of_day_Night"}, m.Terms)
	assert.Equal(t, 18, m.NTest)
	assert.Equal(t, 72, m.NTrain)
	assert.Equal(t, 90, m.NObs)

	assert.InDelta(t, 3.0, m.Coef[0], 0.05)
	assert.InDelta(t, 2.5, m.Coef[1], 0.01)
	assert.InDelta(t, 1.0, m.Coef[2], 0.05)
	assert.InDelta(t, 4.0, m.Coef[3], 0.05)
	assert.Greater(t, m.TestR2, 0.999)
	assert.Less(t, m.TestMSE, 0.01)
	assert.Greater(t, m.AdjRSquared, 0.999)

	c, ok := m.Coefficient("trip_distance")
	require.True(t, ok)
	assert.InDelta(t, 2.5, c.Estimate, 0.01)
	assert.Greater(t, c.TStat, 100.0)
	assert.Less(t, c.PValue, 1e-6)
	_, ok = m.Coefficient("missing")
	assert.False(t, ok)

	assert.Contains(t, out.String(), "R-squared:")
	assert.Contains(t, out.String(), "Mean Squared Error:")
	assert.Contains(t, out.String(), "time_of_day_Night")
	assert.Contains(t, summary, "OLS Regression Results")
	assert.Contains(t, summary, "P>|t|")
}

func TestLinearRegressionDropsMissingRows(t *testing.T) {
	df := fareFrame(30)
	fares := df.Col("fare_amount").Float()
	fares[0] = math.NaN()
	tods := df.Col("time_of_day").Records()
	tods[1] = "NaN"
	df = df.Mutate(series.New(fares, series.Float, "fare_amount")).
		Mutate(series.New(tods, series.String, "time_of_day"))
	require.NoError(t, df.Err)

	m, _, err := LinearRegression(df, RegressionOptions{
		Target:      "fare_amount",
		Features:    []string{"trip_distance"},
		Categorical: []string{"time_of_day"},
	})
	require.NoError(t, err)
	assert.Equal(t, 28, m.NObs)
	// 不划分测试集时在训练集上评估
	assert.Equal(t, 0, m.NTest)
	assert.Equal(t, 28, m.NTrain)
}

func TestLinearRegressionErrors(t *testing.T) {
	df := fareFrame(30)

	_, _, err := LinearRegression(df, RegressionOptions{Target: "fare_amount", Features: []string{"tip_amount"}})
	assert.ErrorIs(t, err, processor.ErrMissingColumn)

	_, _, err = LinearRegression(df, RegressionOptions{Target: "fare_amount", TestSize: 1})
	assert.Error(t, err)

	dup := df.Mutate(series.New(df.Col("trip_distance").Float(), series.Float, "distance_copy"))
	_, _, err = LinearRegression(dup, RegressionOptions{
		Target:   "fare_amount",
		Features: []string{"trip_distance", "distance_copy"},
	})
	assert.ErrorIs(t, err, ErrSingularMatrix)

	_, _, err = LinearRegression(fareFrame(2), RegressionOptions{
		Target:   "fare_amount",
		Features: []string{"trip_distance"},
	})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPredict(t *testing.T) {
	m, _, err := LinearRegression(fareFrame(60), RegressionOptions{
		Target:      "fare_amount",
		Features:    []string{"trip_distance"},
		Categorical: []string{"time_of_day"},
		TestSize:    0.2,
		Seed:        7,
	})
	require.NoError(t, err)

	df := dataframe.New(
		series.New([]float64{2, 4, math.NaN()}, series.Float, "trip_distance"),
		series.New([]string{"Night", "Midday", "Morning"}, series.String, "time_of_day"),
	)
	pred, err := m.Predict(df)
	require.NoError(t, err)
	require.Len(t, pred, 3)
	assert.InDelta(t, 3+5+4, pred[0], 0.1)
	assert.InDelta(t, 3+10, pred[1], 0.1)
	assert.True(t, math.IsNaN(pred[2]))

	_, err = m.Predict(df.Drop("time_of_day"))
	assert.ErrorIs(t, err, processor.ErrMissingColumn)
}

func TestExportCoefficients(t *testing.T) {
	m, _, err := LinearRegression(fareFrame(45), RegressionOptions{
		Target:   "fare_amount",
		Features: []string{"trip_distance"},
		TestSize: 0.2,
		Seed:     42,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report", "coefficients.xlsx")
	require.NoError(t, ExportCoefficients(m, path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	got, err := file.ReadXLSX(path, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"term", "train_coef", "coef", "std_err", "t", "p_value"}, got.Names())
	assert.Equal(t, 2, got.Nrow())
	assert.Equal(t, []string{InterceptTerm, "trip_distance"}, got.Col("term").Records())

	assert.Error(t, ExportCoefficients(nil, path))
}

func TestMetrics(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	assert.InDelta(t, 0.0, MSE(actual, actual), 1e-12)
	assert.InDelta(t, 0.25, MSE(actual, []float64{1.5, 2.5, 3.5, 4.5}), 1e-12)
	assert.True(t, math.IsNaN(MSE(actual, []float64{1})))

	assert.InDelta(t, 1.0, RSquared(actual, actual), 1e-12)
	// 预测恒为均值时 R² = 0
	assert.InDelta(t, 0.0, RSquared(actual, []float64{2.5, 2.5, 2.5, 2.5}), 1e-12)
	assert.True(t, math.IsNaN(RSquared([]float64{1}, []float64{1})))

	assert.InDelta(t, 1-0.2*9.0/7.0, AdjustedRSquared(0.8, 10, 2), 1e-12)
	assert.True(t, math.IsNaN(AdjustedRSquared(0.8, 3, 2)))
}
