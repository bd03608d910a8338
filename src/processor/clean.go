// clean.go
package processor

import (
	"TaxiWeather/src/utils"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// SampleData 不放回地随机抽取 floor(proportion*n) 行, 相同 seed 结果相同, 保持原有行序
func SampleData(df dataframe.DataFrame, proportion float64, seed int64) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	if proportion < 0 || proportion > 1 || math.IsNaN(proportion) {
		return df, fmt.Errorf("抽样比例必须在 [0,1] 之间: %v", proportion)
	}

	n := int(math.Floor(proportion * float64(df.Nrow())))
	idx := rand.New(rand.NewSource(seed)).Perm(df.Nrow())[:n]
	sort.Ints(idx)

	out := df.Subset(idx)
	return out, out.Err
}

// DropMissing 删除指定列为空的行
func DropMissing(df dataframe.DataFrame, col string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, col); err != nil {
		return df, err
	}

	out := df.Filter(dataframe.F{
		Colname:    col,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !utils.IsMissing(el)
		},
	})
	return out, out.Err
}

// DropDuplicates 删除所有列都相同的重复行, 保留第一次出现的行
func DropDuplicates(df dataframe.DataFrame) dataframe.DataFrame {
	if df.Err != nil || df.Nrow() == 0 {
		return df
	}

	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, df.Col(name))
	}

	seen := make(map[string]struct{}, df.Nrow())
	keep := make([]int, 0, df.Nrow())
	var sb strings.Builder
	for i := 0; i < df.Nrow(); i++ {
		sb.Reset()
		for _, col := range cols {
			sb.WriteString(elementKey(col.Elem(i)))
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	if len(keep) == df.Nrow() {
		return df
	}
	return df.Subset(keep)
}

// elementKey 元素的比较键, 浮点数保留完整精度
func elementKey(e series.Element) string {
	if e.IsNA() {
		return "\x00NA"
	}
	if e.Type() == series.Float {
		return strconv.FormatFloat(e.Float(), 'g', -1, 64)
	}
	return e.String()
}

// FilterPositive 只保留指定列大于 0 的行
func FilterPositive(df dataframe.DataFrame, col string) (dataframe.DataFrame, error) {
	if err := requireColumns(df, col); err != nil {
		return df, err
	}

	out := df.Filter(dataframe.F{
		Colname:    col,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !el.IsNA() && el.Float() > 0
		},
	})
	return out, out.Err
}
