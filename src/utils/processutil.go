package utils

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TimeLayout 数据集内部统一的时间格式
const TimeLayout = "2006-01-02 15:04:05"

// timeLayouts 解析时间时依次尝试的格式
var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01-02-2006 15:04:05",
	"01/02/2006 15:04:05",
}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// HasColumn 判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// IsMissing 判断元素是否为空值(NA 或空字符串)
func IsMissing(e series.Element) bool {
	return e.IsNA() || e.String() == ""
}

// ParseTime 按常见格式解析时间字符串, 空值返回零值时间
func ParseTime(s series.Element) (time.Time, error) {
	if IsMissing(s) {
		return time.Time{}, nil
	}
	return ParseTimeString(s.String())
}

func ParseTimeString(str string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %q", str)
}

// SubSeriesTime 计算 colName1 - colName2 的时间差(分钟), 结果写入 colName3
func SubSeriesTime(df dataframe.DataFrame, colName1, colName2, colName3 string) (dataframe.DataFrame, error) {
	col1 := df.Col(colName1)
	col2 := df.Col(colName2)
	if col1.Err != nil || col2.Err != nil {
		return df, fmt.Errorf("列不存在: %s / %s", colName1, colName2)
	}

	durations := make([]float64, 0, df.Nrow())

	for i := 0; i < df.Nrow(); i++ {
		endTime, err := ParseTime(col1.Elem(i))
		if err != nil {
			return df, fmt.Errorf("failed to parse end time at row %d: %w", i, err)
		}

		startTime, err := ParseTime(col2.Elem(i))
		if err != nil {
			return df, fmt.Errorf("failed to parse start time at row %d: %w", i, err)
		}

		if endTime.IsZero() || startTime.IsZero() {
			durations = append(durations, math.NaN())
			continue
		}
		durations = append(durations, endTime.Sub(startTime).Minutes())
	}

	out := df.Mutate(series.New(durations, series.Float, colName3))
	return out, out.Err
}

// Quantile 线性插值分位数 (0 <= q <= 1), 与 pandas 默认定义一致; 忽略 NaN
func Quantile(x []float64, q float64) float64 {
	cp := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			cp = append(cp, v)
		}
	}
	n := len(cp)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(cp)
	if q <= 0 {
		return cp[0]
	}
	if q >= 1 {
		return cp[n-1]
	}
	rank := q * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return cp[lower]
	}
	return cp[lower]*(1-weight) + cp[upper]*weight
}

// Printer 带千分位的输出, 用于日志与报告
var Printer = message.NewPrinter(language.English)

// SaveToExcel 将DataFrame保存为Excel文件
func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sheet1"

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			elem := col.Elem(rowIdx)
			var val interface{}
			switch {
			case elem.IsNA():
				val = nil
			case col.Type() == series.Float:
				val = elem.Float()
			case col.Type() == series.Int:
				val, _ = elem.Int()
			default:
				val = elem.String()
			}
			if err := f.SetCellValue(sheetName, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
