package processor

import (
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFeatures(t *testing.T) {
	df := dataframe.New(series.New([]string{
		"2024-01-05 08:15:00",
		"2024-03-10T23:59:59Z",
		"not a time",
		"NaN",
	}, series.String, "tpep_pickup_datetime"))

	out, err := TimeFeatures(df, "tpep_pickup_datetime")
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-05", "2024-03-10", "NaN", "NaN"}, out.Col(DateCol).Records())
	assert.Equal(t, []string{"1", "3", "NaN", "NaN"}, out.Col(MonthCol).Records())
	assert.Equal(t, []string{"8", "23", "NaN", "NaN"}, out.Col(HourCol).Records())
	assert.Equal(t, []string{"Friday", "Sunday", "NaN", "NaN"}, out.Col(WeekdayCol).Records())
	assert.True(t, out.Col(DateCol).Elem(2).IsNA())
	assert.Equal(t, series.Int, out.Col(HourCol).Type())

	_, err = TimeFeatures(df, "pickup")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestSplitHour(t *testing.T) {
	want := map[string][]int{
		Morning:     {6, 7, 8, 9},
		Midday:      {10, 11, 12, 13, 14, 15},
		EveningRush: {16, 17, 18, 19},
		Night:       {20, 21, 22, 23, 0, 1, 2, 3, 4, 5},
	}

	covered := make(map[int]string)
	for label, hours := range want {
		for _, h := range hours {
			assert.Equal(t, label, SplitHour(h), "hour %d", h)
			_, dup := covered[h]
			assert.False(t, dup, "hour %d in two buckets", h)
			covered[h] = label
		}
	}
	assert.Len(t, covered, 24)

	assert.Equal(t, Unknown, SplitHour(24))
	assert.Equal(t, Unknown, SplitHour(-1))
}

func TestHourBuckets(t *testing.T) {
	df := dataframe.New(series.New([]string{"7", "12", "18", "22", "NaN"}, series.Int, HourCol))

	require.NoError(t, HourBuckets{}.ColCalculation(&df))
	assert.Equal(t, []string{Morning, Midday, EveningRush, Night, Unknown}, df.Col(TimeOfDayCol).Records())

	err := HourBuckets{HourCol: "pickup_hour"}.ColCalculation(&df)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestTemperatureBands(t *testing.T) {
	df := dataframe.New(series.New([]string{"14.9", "15.0", "NaN"}, series.Float, "temp"))

	require.NoError(t, TemperatureBands{Column: "temp"}.ColCalculation(&df))
	assert.Equal(t, []string{"Cold/Moderate (<15)", "Warm (>=15)", Unknown}, df.Col(TemperatureCol).Records())
}

func TestWeatherCategories(t *testing.T) {
	df := dataframe.New(series.New([]float64{0, 0.1, -1}, series.Float, "prcp"))

	require.NoError(t, WeatherCategories{Column: "prcp"}.ColCalculation(&df))
	assert.Equal(t, []string{
		"No Precipitation (Clear)",
		"Precipitation",
		"No Precipitation (Clear)",
	}, df.Col(WeatherCol).Records())

	require.NoError(t, WeatherCategories{Column: "prcp", Threshold: 0.5, Out: "wet"}.ColCalculation(&df))
	assert.Equal(t, []string{NoPrecip, NoPrecip, NoPrecip}, df.Col("wet").Records())
}

func TestWeatherCategory(t *testing.T) {
	assert.Equal(t, NoPrecip, WeatherCategory(0, 0))
	assert.Equal(t, Precip, WeatherCategory(0.1, 0))
	assert.Equal(t, NoPrecip, WeatherCategory(-1, 0))
}

func TestTripDuration(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-01 08:00:00", "2024-01-01 09:30:00", "NaN"}, series.String, "tpep_pickup_datetime"),
		series.New([]string{"2024-01-01 08:25:00", "2024-01-01 10:00:00", "2024-01-01 11:00:00"}, series.String, "tpep_dropoff_datetime"),
	)

	require.NoError(t, TripDuration{Pickup: "tpep_pickup_datetime", Dropoff: "tpep_dropoff_datetime"}.ColCalculation(&df))
	got := df.Col(DurationCol).Float()
	assert.Equal(t, 25.0, got[0])
	assert.Equal(t, 30.0, got[1])
	assert.True(t, math.IsNaN(got[2]))

	err := TripDuration{Pickup: "pickup", Dropoff: "tpep_dropoff_datetime"}.ColCalculation(&df)
	assert.ErrorIs(t, err, ErrMissingColumn)
}
