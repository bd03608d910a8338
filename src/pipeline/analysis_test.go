package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TaxiWeather/src/config"
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/processor"
	"TaxiWeather/src/storage"
	"TaxiWeather/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tripHours = []int{7, 12, 17, 22, 3, 9}

// writeFixtures 三周的行程分区(按周拆成 csv 文件)与小时天气数据
func writeFixtures(t *testing.T, dir string) {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	shift := map[int]float64{7: 2, 12: 0, 17: 3, 22: 1, 3: 1, 9: 2}

	for week := 0; week < 3; week++ {
		var (
			pickups           []string
			dist, fare, total []float64
			fees              []float64
		)
		for day := week * 7; day < week*7+7; day++ {
			for i, h := range tripHours {
				d := float64(1 + (day+i)%5)
				f := 3 + 2.5*d + shift[h] + 0.1*math.Sin(float64(day*7+i))
				pickups = append(pickups, start.AddDate(0, 0, day).Add(time.Duration(h)*time.Hour+10*time.Minute).Format(utils.TimeLayout))
				dist = append(dist, d)
				fare = append(fare, f)
				total = append(total, f+2.5)
				fees = append(fees, 1.75)
			}
		}
		df := dataframe.New(
			series.New(pickups, series.String, "tpep_pickup_datetime"),
			series.New(dist, series.Float, "trip_distance"),
			series.New(fare, series.Float, "fare_amount"),
			series.New(total, series.Float, "total_amount"),
			series.New(fees, series.Float, "airport_fee"),
		)
		path := filepath.Join(dir, "trips", fmt.Sprintf("yellow_tripdata_2024-w%d.csv", week+1))
		require.NoError(t, file.SaveDataFrame(df, path))
	}

	var (
		times      []string
		temp, prcp []float64
	)
	for day := 0; day < 21; day++ {
		for h := 0; h < 24; h++ {
			times = append(times, start.AddDate(0, 0, day).Add(time.Duration(h)*time.Hour).Format(utils.TimeLayout))
			temp = append(temp, 5+8*float64(day%3))
			prcp = append(prcp, 0.5*float64(day%4))
		}
	}
	weather := dataframe.New(
		series.New(times, series.String, "time"),
		series.New(temp, series.Float, "temp"),
		series.New(prcp, series.Float, "prcp"),
	)
	require.NoError(t, file.SaveDataFrame(weather, filepath.Join(dir, "weather.csv")))
}

func testConfig(dir string) (*config.Config, *config.DataConfig) {
	cfg := &config.Config{
		DataDir:       filepath.Join(dir, "trips"),
		FilePattern:   "yellow_tripdata_*.csv",
		MergedFile:    filepath.Join(dir, "cache", "merged.csv"),
		WeatherFile:   filepath.Join(dir, "weather.csv"),
		WeatherMerged: filepath.Join(dir, "out", "trips_weather.csv"),
	}
	cfg.Sample.Proportion = 1
	cfg.Sample.Seed = 42
	cfg.Model.TestSize = 0.2
	cfg.Model.Seed = 42
	cfg.Model.ReportPath = filepath.Join(dir, "out", "ols.xlsx")
	cfg.Decompose.Column = "fare"
	cfg.Decompose.Period = 7
	cfg.Decompose.Seasonal = 7
	cfg.Plot.OutputDir = filepath.Join(dir, "plots")
	cfg.Plot.Width = 5
	cfg.Plot.Height = 4

	dcfg := config.NewDataConfig()
	dcfg.Target = "fare_amount"
	dcfg.Features = []string{"trip_distance", "temp", "prcp"}
	dcfg.Categorical = []string{"time_of_day", "weather_category"}
	dcfg.OutlierCol = "fare"
	dcfg.GroupCol = "distance_rounded"
	return cfg, dcfg
}

func TestAnalysisRun(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	cfg, dcfg := testConfig(dir)

	var logs, out bytes.Buffer
	a := NewAnalysis(cfg, dcfg, storage.NewWriterLogger(&logs))
	a.Out = &out

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Greater(t, report.Rows, 0)
	assert.LessOrEqual(t, report.Rows, 21*len(tripHours))

	require.NotNil(t, report.Model)
	assert.Contains(t, report.Model.Terms, "trip_distance")
	assert.Contains(t, report.Model.Terms, "time_of_day_Night")
	c, ok := report.Model.Coefficient("trip_distance")
	require.True(t, ok)
	assert.InDelta(t, 2.5, c.Estimate, 0.2)
	assert.Contains(t, out.String(), "Mean Squared Error:")
	assert.Contains(t, report.Summary, "OLS Regression Results")

	assert.Equal(t, 21, report.Seasonal.Len())

	for _, name := range []string{"stl_fare_amount", "daily_fare_amount", "fare_by_time_of_day", "fare_heatmap", "fare_by_weather", "temperature_fare", "fare_by_distance"} {
		assert.Contains(t, report.Charts, name)
		path, err := a.Renderer.Path(name)
		require.NoError(t, err)
		assert.FileExists(t, path)
	}

	for _, path := range []string{cfg.MergedFile, cfg.WeatherMerged, cfg.Model.ReportPath} {
		assert.FileExists(t, path)
	}
	assert.Equal(t, report.Rows, report.Metrics["total_trips"])

	merged, err := file.ReadFile(cfg.WeatherMerged, file.Options{})
	require.NoError(t, err)
	assert.True(t, utils.HasColumn(merged, "temp"))
	assert.NotContains(t, merged.Names(), "airport_fee")

	assert.Contains(t, logs.String(), "步骤 merge_weather 完成")
	assert.Contains(t, logs.String(), "步骤 outliers 完成")
}

func TestAnalysisPrepareWithoutWeather(t *testing.T) {
	dir := t.TempDir()
	writeFixtures(t, dir)
	cfg, dcfg := testConfig(dir)
	cfg.WeatherFile = ""

	a := NewAnalysis(cfg, dcfg, storage.NewWriterLogger(io.Discard))
	trips, err := a.Merger.Merge()
	require.NoError(t, err)

	df, err := a.Prepare(context.Background(), trips)
	require.NoError(t, err)
	assert.True(t, utils.HasColumn(df, processor.TimeOfDayCol))
	assert.True(t, utils.HasColumn(df, "distance_rounded"))
	assert.False(t, utils.HasColumn(df, processor.WeatherCol))
}

func TestAnalysisMissingData(t *testing.T) {
	cfg, dcfg := testConfig(t.TempDir())
	a := NewAnalysis(cfg, dcfg, storage.NewWriterLogger(io.Discard))

	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, file.ErrMissingDirectory)
	_, err = os.Stat(cfg.MergedFile)
	assert.True(t, os.IsNotExist(err))
}
