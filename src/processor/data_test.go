package processor

import (
	"testing"

	"TaxiWeather/src/config"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataProcessor(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-02 10:00:00", "2024-01-01 08:00:00", "NaN", "2024-01-03 18:30:00"}, series.String, "tpep_pickup_datetime"),
		series.New([]float64{2, 4, 5, 6}, series.Float, "trip_distance"),
		series.New([]string{"10", "20", "30", "NaN"}, series.Float, "fare_amount"),
		series.New([]float64{12, 24, 36, 8}, series.Float, "total_amount"),
	)

	p := NewDataProcessor(df, config.NewDataConfig())
	require.NoError(t, p.CleanData())
	assert.Equal(t, 2, p.DataFrame().Nrow())

	m, err := p.CalculateMetrics()
	require.NoError(t, err)
	assert.Equal(t, 2, m["total_trips"])
	assert.InDelta(t, 15.0, m["mean_fare"], 1e-9)
	assert.InDelta(t, 3.0, m["mean_distance"], 1e-9)
	assert.InDelta(t, 18.0, m["mean_total"], 1e-9)
	assert.Equal(t, "2024-01-01 08:00:00", m["first_pickup"])
	assert.Equal(t, "2024-01-02 10:00:00", m["last_pickup"])

	summary, err := p.Summary()
	require.NoError(t, err)
	assert.Contains(t, summary, "行程数 2")
	assert.Contains(t, summary, "平均车费 15.00")
}

func TestProcessFunc(t *testing.T) {
	df := dataframe.New(series.New([]string{"a", "NaN"}, series.String, "id"))

	var step DataProcess = ProcessFunc(func(data *dataframe.DataFrame) error {
		out, err := DropMissing(*data, "id")
		if err != nil {
			return err
		}
		*data = out
		return nil
	})
	require.NoError(t, step.ColCalculation(&df))
	assert.Equal(t, 1, df.Nrow())
}
