// outlier.go
package processor

import (
	"TaxiWeather/src/utils"
	"fmt"
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// IQRFilter 四分位距过滤的上下界
type IQRFilter struct {
	Column string
	Q1     float64
	Q3     float64
	Lower  float64
	Upper  float64
}

// IQRBounds 计算列的 Q1、Q3 以及 [Q1-1.5IQR, Q3+1.5IQR] 上下界
func IQRBounds(df dataframe.DataFrame, col string) (IQRFilter, error) {
	if err := requireColumns(df, col); err != nil {
		return IQRFilter{}, err
	}

	values := df.Col(col).Float()
	q1 := utils.Quantile(values, 0.25)
	q3 := utils.Quantile(values, 0.75)
	if math.IsNaN(q1) || math.IsNaN(q3) {
		return IQRFilter{}, fmt.Errorf("%w: 列 %s 没有数值", ErrEmptyResult, col)
	}

	iqr := q3 - q1
	return IQRFilter{
		Column: col,
		Q1:     q1,
		Q3:     q3,
		Lower:  q1 - 1.5*iqr,
		Upper:  q3 + 1.5*iqr,
	}, nil
}

func (f IQRFilter) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= f.Lower && v <= f.Upper
}

// Apply 保留上下界内的行, 对同一组边界重复调用结果不变
func (f IQRFilter) Apply(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := requireColumns(df, f.Column); err != nil {
		return df, err
	}

	out := df.Filter(dataframe.F{
		Colname:    f.Column,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !el.IsNA() && f.Contains(el.Float())
		},
	})
	return out, out.Err
}

// RemoveOutliers 用该组数据自身的四分位距剔除异常值.
// 每次调用都按输入重新计算边界, 剔除后四分位数会收窄, 所以对结果再调用一次
// 可能剔除更多的行(不幂等). 需要固定边界时先用 IQRBounds 计算, 再多次调用 IQRFilter.Apply
func RemoveOutliers(df dataframe.DataFrame, col string) (dataframe.DataFrame, error) {
	f, err := IQRBounds(df, col)
	if err != nil {
		return df, err
	}
	return f.Apply(df)
}

// RemoveOutliersByGroup 按 groupCol 分组后逐组剔除 col 的异常值, 再按分组首次出现的顺序拼接
func RemoveOutliersByGroup(df dataframe.DataFrame, groupCol, col string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, groupCol, col); err != nil {
		return df, err
	}

	groups := groupIndexes(df.Col(groupCol))

	var result dataframe.DataFrame
	kept := 0
	for _, g := range groups {
		trimmed, err := RemoveOutliers(df.Subset(g.rows), col)
		if err != nil {
			// 组内没有有效数值时整组丢弃
			continue
		}
		if kept == 0 {
			result = trimmed
		} else {
			result = result.RBind(trimmed)
		}
		kept++
	}

	if kept == 0 {
		return dataframe.New(), fmt.Errorf("%w: 按 %s 分组后 %s 没有数据", ErrEmptyResult, groupCol, col)
	}
	return result, result.Err
}

type group struct {
	key  string
	rows []int
}

// groupIndexes 按元素值分组行号, 空值单独成组
func groupIndexes(s series.Series) []group {
	pos := make(map[string]int)
	var groups []group
	for i := 0; i < s.Len(); i++ {
		key := elementKey(s.Elem(i))
		p, ok := pos[key]
		if !ok {
			p = len(groups)
			pos[key] = p
			groups = append(groups, group{key: key})
		}
		groups[p].rows = append(groups[p].rows, i)
	}
	return groups
}

// RoundColumn 将数值列四舍五入到 decimals 位后写入 out 列
func RoundColumn(df dataframe.DataFrame, col, out string, decimals int) (dataframe.DataFrame, error) {
	if err := requireColumns(df, col); err != nil {
		return df, err
	}

	scale := math.Pow(10, float64(decimals))
	values := df.Col(col).Float()
	rounded := make([]float64, len(values))
	for i, v := range values {
		rounded[i] = math.Round(v*scale) / scale
	}

	res := df.Mutate(series.New(rounded, series.Float, orDefault(out, col+"_rounded")))
	return res, res.Err
}

// OutlierTrim 流水线中的分组异常值剔除步骤, GroupCol 为空时整体剔除
type OutlierTrim struct {
	GroupCol string
	Column   string
}

func (o OutlierTrim) ColCalculation(data *dataframe.DataFrame) error {
	var (
		out dataframe.DataFrame
		err error
	)
	if o.GroupCol == "" {
		out, err = RemoveOutliers(*data, o.Column)
	} else {
		out, err = RemoveOutliersByGroup(*data, o.GroupCol, o.Column)
	}
	if err != nil {
		return err
	}
	*data = out
	return nil
}

// DistanceRounder 流水线中生成取整距离分组列的步骤
type DistanceRounder struct {
	Column string
	Out    string
}

func (d DistanceRounder) ColCalculation(data *dataframe.DataFrame) error {
	out, err := RoundColumn(*data, d.Column, d.Out, 0)
	if err != nil {
		return err
	}
	*data = out
	return nil
}

// String 便于日志输出
func (f IQRFilter) String() string {
	return fmt.Sprintf("%s: Q1=%s Q3=%s [%s, %s]", f.Column,
		strconv.FormatFloat(f.Q1, 'f', 2, 64), strconv.FormatFloat(f.Q3, 'f', 2, 64),
		strconv.FormatFloat(f.Lower, 'f', 2, 64), strconv.FormatFloat(f.Upper, 'f', 2, 64))
}
