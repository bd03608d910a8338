// weather.go
package processor

import (
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/utils"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// joinKeys 行程与天气的连接键
var joinKeys = []string{DateCol, HourCol}

// PrepareWeather 由天气时间列派生连接键, 每个 (date, hour) 只保留第一条记录
func PrepareWeather(weather dataframe.DataFrame, timeCol string) (dataframe.DataFrame, error) {
	df, err := TimeFeatures(weather, timeCol)
	if err != nil {
		return df, err
	}

	dates := df.Col(DateCol)
	hours := df.Col(HourCol)
	seen := make(map[string]struct{}, df.Nrow())
	keep := make([]int, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		if dates.Elem(i).IsNA() || hours.Elem(i).IsNA() {
			continue
		}
		key := dates.Elem(i).String() + " " + hours.Elem(i).String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	out := df.Subset(keep)
	return out, out.Err
}

// MergeWeather 按 (date, hour) 内连接行程与天气数据, 没有天气记录的行程被丢弃;
// output 不为空时写出合并结果
func MergeWeather(trips, weather dataframe.DataFrame, output string) (dataframe.DataFrame, error) {
	for _, side := range []struct {
		name string
		df   dataframe.DataFrame
	}{{"trips", trips}, {"weather", weather}} {
		if side.df.Err != nil {
			return side.df, side.df.Err
		}
		for _, key := range joinKeys {
			if !utils.HasColumn(side.df, key) {
				return dataframe.New(), fmt.Errorf("%w: %s 缺少 %s", ErrMissingJoinKey, side.name, key)
			}
		}
	}

	// 天气表按键建立索引
	index := make(map[string][]int, weather.Nrow())
	wDates, wHours := weather.Col(DateCol), weather.Col(HourCol)
	for j := 0; j < weather.Nrow(); j++ {
		key, ok := joinKey(wDates.Elem(j), wHours.Elem(j))
		if !ok {
			continue
		}
		index[key] = append(index[key], j)
	}

	var tripIdx, weatherIdx []int
	tDates, tHours := trips.Col(DateCol), trips.Col(HourCol)
	for i := 0; i < trips.Nrow(); i++ {
		key, ok := joinKey(tDates.Elem(i), tHours.Elem(i))
		if !ok {
			continue
		}
		for _, j := range index[key] {
			tripIdx = append(tripIdx, i)
			weatherIdx = append(weatherIdx, j)
		}
	}
	if len(tripIdx) == 0 {
		return dataframe.New(), fmt.Errorf("%w: 行程与天气数据没有匹配的 (date, hour)", ErrEmptyResult)
	}

	merged := trips.Subset(tripIdx)
	for _, name := range weather.Names() {
		// 连接键及行程中已有的列不再追加
		if utils.HasColumn(trips, name) {
			continue
		}
		merged = merged.Mutate(weather.Col(name).Subset(weatherIdx))
	}
	if merged.Err != nil {
		return merged, merged.Err
	}

	if output != "" {
		if err := file.SaveDataFrame(merged, output); err != nil {
			return merged, fmt.Errorf("保存合并结果失败: %w", err)
		}
	}
	return merged, nil
}

// joinKey 统一 date/hour 的比较形式, 空值不参与连接
func joinKey(date, hour series.Element) (string, bool) {
	if date.IsNA() || hour.IsNA() {
		return "", false
	}
	h, err := hour.Int()
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s %02d", date.String(), h), true
}
