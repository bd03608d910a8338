// features.go
package processor

import (
	"TaxiWeather/src/utils"
	"fmt"
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 派生列的列名
const (
	DateCol        = "date"
	MonthCol       = "month"
	HourCol        = "hour"
	WeekdayCol     = "weekday"
	TimeOfDayCol   = "time_of_day"
	TemperatureCol = "temperature_category"
	WeatherCol     = "weather_category"
	DurationCol    = "trip_duration"
)

const (
	Morning      = "Morning"
	Midday       = "Midday"
	EveningRush  = "Evening Rush"
	Night        = "Night"
	Unknown      = "Unknown"
	ColdModerate = "Cold/Moderate (<15)"
	Warm         = "Warm (>=15)"
	Precip       = "Precipitation"
	NoPrecip     = "No Precipitation (Clear)"
)

// TemperatureSplit 温度分档界限(摄氏度)
const TemperatureSplit = 15.0

// TimeFeatures 由时间列派生 date、month、hour、weekday, 无法解析的时间得到空值
func TimeFeatures(df dataframe.DataFrame, col string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, col); err != nil {
		return df, err
	}

	s := df.Col(col)
	n := s.Len()
	dates := make([]string, n)
	months := make([]string, n)
	hours := make([]string, n)
	weekdays := make([]string, n)

	for i := 0; i < n; i++ {
		t, err := utils.ParseTime(s.Elem(i))
		if err != nil || t.IsZero() {
			dates[i], months[i], hours[i], weekdays[i] = "NaN", "NaN", "NaN", "NaN"
			continue
		}
		dates[i] = t.Format("2006-01-02")
		months[i] = strconv.Itoa(int(t.Month()))
		hours[i] = strconv.Itoa(t.Hour())
		weekdays[i] = t.Weekday().String()
	}

	out := df.Mutate(series.New(dates, series.String, DateCol)).
		Mutate(series.New(months, series.Int, MonthCol)).
		Mutate(series.New(hours, series.Int, HourCol)).
		Mutate(series.New(weekdays, series.String, WeekdayCol))
	return out, out.Err
}

// TimeFeatureStep 流水线中的时间特征步骤
type TimeFeatureStep struct {
	Column string
}

func (s TimeFeatureStep) ColCalculation(data *dataframe.DataFrame) error {
	out, err := TimeFeatures(*data, s.Column)
	if err != nil {
		return err
	}
	*data = out
	return nil
}

// SplitHour 将小时划分到四个时段, 0-23 以外的值返回 Unknown
func SplitHour(hour int) string {
	switch {
	case hour >= 6 && hour < 10:
		return Morning
	case hour >= 10 && hour < 16:
		return Midday
	case hour >= 16 && hour < 20:
		return EveningRush
	case (hour >= 20 && hour < 24) || (hour >= 0 && hour < 6):
		return Night
	default:
		return Unknown
	}
}

// HourBuckets 根据小时列追加时段列
type HourBuckets struct {
	HourCol string
	Out     string
}

func (hb HourBuckets) ColCalculation(data *dataframe.DataFrame) error {
	hourCol, out := orDefault(hb.HourCol, HourCol), orDefault(hb.Out, TimeOfDayCol)
	if err := requireColumns(*data, hourCol); err != nil {
		return err
	}

	s := data.Col(hourCol)
	labels := make([]string, s.Len())
	for i := range labels {
		h, err := s.Elem(i).Int()
		if err != nil {
			labels[i] = Unknown
			continue
		}
		labels[i] = SplitHour(h)
	}

	df := data.Mutate(series.New(labels, series.String, out))
	if df.Err != nil {
		return df.Err
	}
	*data = df
	return nil
}

// TemperatureCategory 15 度以下为 Cold/Moderate, 其余为 Warm
func TemperatureCategory(t float64) string {
	switch {
	case math.IsNaN(t):
		return Unknown
	case t < TemperatureSplit:
		return ColdModerate
	default:
		return Warm
	}
}

// TemperatureBands 根据温度列追加温度分档列
type TemperatureBands struct {
	Column string
	Out    string
}

func (tb TemperatureBands) ColCalculation(data *dataframe.DataFrame) error {
	return mapFloatColumn(data, tb.Column, orDefault(tb.Out, TemperatureCol), TemperatureCategory)
}

// WeatherCategory 降水量大于阈值为 Precipitation, 否则(含空值)为 No Precipitation (Clear)
func WeatherCategory(p, threshold float64) string {
	if !math.IsNaN(p) && p > threshold {
		return Precip
	}
	return NoPrecip
}

// WeatherCategories 根据降水列追加天气分类列
type WeatherCategories struct {
	Column    string
	Threshold float64
	Out       string
}

func (wc WeatherCategories) ColCalculation(data *dataframe.DataFrame) error {
	return mapFloatColumn(data, wc.Column, orDefault(wc.Out, WeatherCol), func(p float64) string {
		return WeatherCategory(p, wc.Threshold)
	})
}

// mapFloatColumn 对数值列逐个映射为字符串标签, 写入 out 列
func mapFloatColumn(data *dataframe.DataFrame, col, out string, fn func(float64) string) error {
	if err := requireColumns(*data, col); err != nil {
		return err
	}

	values := data.Col(col).Float()
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = fn(v)
	}

	df := data.Mutate(series.New(labels, series.String, out))
	if df.Err != nil {
		return fmt.Errorf("写入列 %s 失败: %w", out, df.Err)
	}
	*data = df
	return nil
}

// TripDuration 由上下车时间计算行程时长(分钟), 任一时间为空时结果为 NaN
type TripDuration struct {
	Pickup  string
	Dropoff string
	Out     string
}

func (d TripDuration) ColCalculation(data *dataframe.DataFrame) error {
	if err := requireColumns(*data, d.Pickup, d.Dropoff); err != nil {
		return err
	}
	out, err := utils.SubSeriesTime(*data, d.Dropoff, d.Pickup, orDefault(d.Out, DurationCol))
	if err != nil {
		return err
	}
	*data = out
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
