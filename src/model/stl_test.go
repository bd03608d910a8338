package model

import (
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"TaxiWeather/src/config"
	"TaxiWeather/src/processor"
	"TaxiWeather/src/storage"
	"TaxiWeather/src/utils"
	"TaxiWeather/src/visualize"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weekly = []float64{3, 1, 0, -1, -2, -3, 2}

func dailyFrame(values []float64, reverse bool) dataframe.DataFrame {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]string, len(values))
	vs := make([]float64, len(values))
	for i, v := range values {
		j := i
		if reverse {
			j = len(values) - 1 - i
		}
		times[j] = start.AddDate(0, 0, i).Format(utils.TimeLayout)
		vs[j] = v
	}
	return dataframe.New(
		series.New(times, series.String, "tpep_pickup_datetime"),
		series.New(vs, series.Float, "fare_amount"),
	)
}

func TestDecomposeAdditive(t *testing.T) {
	n := 8 * 7
	values := make([]float64, n)
	for i := range values {
		values[i] = 20 + 0.1*float64(i) + weekly[i%7] + 0.05*math.Sin(float64(i)*1.3)
	}

	seasonal, res, err := Decompose(dailyFrame(values, true), "tpep_pickup_datetime", "fare_amount", STLOptions{})
	require.NoError(t, err)
	assert.Equal(t, "seasonal", seasonal.Name)
	assert.Equal(t, n, seasonal.Len())

	// 输入倒序, 结果按时间排序
	assert.Equal(t, values, res.Observed)
	for i := 1; i < n; i++ {
		assert.True(t, res.Time[i].After(res.Time[i-1]))
	}

	for i := 0; i < n; i++ {
		assert.InDelta(t, res.Observed[i], res.Trend[i]+res.Seasonal[i]+res.Resid[i], 1e-9)
	}
	// 中间部分季节项接近真实的周模式
	for i := 14; i < n-14; i++ {
		assert.InDelta(t, weekly[i%7], res.Seasonal[i], 0.5, "index %d", i)
	}
	assert.Equal(t, res.Seasonal, seasonal.Float())
}

func TestDecomposePureSeasonal(t *testing.T) {
	n := 4 * 7
	values := make([]float64, n)
	for i := range values {
		values[i] = 10 + weekly[i%7]
	}

	_, res, err := Decompose(dailyFrame(values, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 7, Seasonal: 7})
	require.NoError(t, err)
	for i := 0; i+7 < n; i++ {
		assert.InDelta(t, res.Seasonal[i], res.Seasonal[i+7], 1e-6)
	}
	for i := 0; i < n; i++ {
		assert.InDelta(t, 10.0, res.Trend[i], 1e-6)
		assert.InDelta(t, 0.0, res.Resid[i], 1e-6)
	}
}

// 参考值来自 Cleveland 等 (1990) 的 STL 实现: 周期 7, 季节窗口 7, 趋势窗口 15, 低通窗口 9
var (
	stlInput = []float64{
		12.0, 9.5, 8.0, 7.5, 6.0, 5.5, 11.0,
		13.5, 10.0, 9.0, 8.5, 6.5, 6.0, 12.5,
		14.0, 11.5, 10.0, 9.0, 7.5, 7.0, 13.0,
		15.5, 12.0, 11.0, 10.5, 8.0, 7.5, 14.5,
	}
	stlTrend = []float64{
		8.139724016, 8.269082775, 8.397947614, 8.526428749, 8.654555430, 8.782326211, 8.909240061,
		9.032629841, 9.158111651, 9.283682759, 9.413619919, 9.546775218, 9.676380976, 9.806988470,
		9.943350404, 10.075664903, 10.207565332, 10.337536672, 10.463612541, 10.593149867, 10.728325483,
		10.867905233, 11.009629675, 11.152170756, 11.295461641, 11.439460398, 11.583887411, 11.728737920,
	}
	stlSeasonal = []float64{
		3.990096090, 1.108381664, -0.389904789, -0.998865366, -2.709034550, -3.335550039, 2.230032931,
		4.160125160, 1.129985499, -0.298425623, -1.045256930, -2.908656390, -3.538269084, 2.381554986,
		4.352147613, 1.119682091, -0.214505573, -1.016603436, -3.132851579, -3.767584616, 2.544702832,
		4.513240912, 1.128749651, -0.139254612, -0.952694992, -3.354838346, -3.995809171, 2.669375072,
	}
)

func TestDecomposeReferenceValues(t *testing.T) {
	_, res, err := Decompose(dailyFrame(stlInput, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 7, Seasonal: 7})
	require.NoError(t, err)
	assert.Equal(t, 15, res.TrendWindow)
	assert.Equal(t, 9, res.LowPassWindow)

	for i := range stlInput {
		assert.InDelta(t, stlTrend[i], res.Trend[i], 1e-7, "trend %d", i)
		assert.InDelta(t, stlSeasonal[i], res.Seasonal[i], 1e-7, "seasonal %d", i)
	}

	// 低通窗口必须大于周期
	_, narrow, err := Decompose(dailyFrame(stlInput, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 7, Seasonal: 7, LowPass: 7})
	assert.Error(t, err)
	assert.Nil(t, narrow)

	_, wide, err := Decompose(dailyFrame(stlInput, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 7, Seasonal: 7, LowPass: 11})
	require.NoError(t, err)
	assert.Equal(t, 11, wide.LowPassWindow)
	assert.NotEqual(t, res.Seasonal, wide.Seasonal)
}

func TestDecomposeRobust(t *testing.T) {
	n := 6 * 7
	values := make([]float64, n)
	for i := range values {
		values[i] = 15 + 0.2*float64(i) + weekly[i%7] + 0.1*math.Sin(float64(i)*2.1)
	}
	values[20] += 40

	_, res, err := Decompose(dailyFrame(values, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Robust: true})
	require.NoError(t, err)
	assert.Less(t, res.Weights[20], 0.5)
	assert.Greater(t, res.Resid[20], 20.0)
	for i := 0; i < n; i++ {
		assert.InDelta(t, res.Observed[i], res.Trend[i]+res.Seasonal[i]+res.Resid[i], 1e-9)
	}
}

func TestDecomposeErrors(t *testing.T) {
	df := dailyFrame(make([]float64, 10), false)

	_, _, err := Decompose(df, "tpep_pickup_datetime", "fare_amount", STLOptions{})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, _, err = Decompose(df, "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 3, Seasonal: 4})
	assert.Error(t, err)

	_, _, err = Decompose(df, "tpep_pickup_datetime", "fare_amount", STLOptions{Period: 1})
	assert.Error(t, err)

	_, _, err = Decompose(df, "pickup", "fare_amount", STLOptions{})
	assert.ErrorIs(t, err, processor.ErrMissingColumn)
}

func TestDecomposeRendersPlot(t *testing.T) {
	cfg := &config.Config{}
	cfg.Plot.OutputDir = filepath.Join(t.TempDir(), "plots")
	cfg.Plot.Width = 6
	cfg.Plot.Height = 6
	r := visualize.NewRenderer(cfg, storage.NewWriterLogger(io.Discard))

	values := make([]float64, 21)
	for i := range values {
		values[i] = weekly[i%7]
	}
	_, _, err := Decompose(dailyFrame(values, false), "tpep_pickup_datetime", "fare_amount", STLOptions{Renderer: r})
	require.NoError(t, err)

	path, err := r.Path("stl_fare_amount")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestDailyMean(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-02 08:00:00", "2024-01-01 09:00:00", "2024-01-01 18:00:00", "NaN"}, series.String, "tpep_pickup_datetime"),
		series.New([]float64{5, 10, 20, 7}, series.Float, "fare_amount"),
	)

	daily, err := DailyMean(df, "tpep_pickup_datetime", "fare_amount")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, daily.Col(processor.DateCol).Records())
	assert.Equal(t, []float64{15, 5}, daily.Col("fare_amount").Float())

	_, err = DailyMean(df, "tpep_pickup_datetime", "tip_amount")
	assert.ErrorIs(t, err, processor.ErrMissingColumn)
}
