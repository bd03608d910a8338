// pivot.go
package visualize

import (
	"TaxiWeather/src/utils"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// PivotTable 行 × 列的均值透视表, 实现 plotter.GridXYZ
type PivotTable struct {
	Rows   []string
	Cols   []string
	Values [][]float64 // Values[row][col], 没有数据的格子为 NaN
}

func (t *PivotTable) Dims() (c, r int)   { return len(t.Cols), len(t.Rows) }
func (t *PivotTable) Z(c, r int) float64 { return t.Values[r][c] }
func (t *PivotTable) X(c int) float64    { return float64(c) }
func (t *PivotTable) Y(r int) float64    { return float64(r) }

// Value 按行列名取值
func (t *PivotTable) Value(row, col string) float64 {
	for i, r := range t.Rows {
		if r != row {
			continue
		}
		for j, c := range t.Cols {
			if c == col {
				return t.Values[i][j]
			}
		}
	}
	return math.NaN()
}

// Pivot 以 index 为行、columns 为列, 计算 values 的均值
func Pivot(df dataframe.DataFrame, index, columns, values string) (*PivotTable, error) {
	for _, col := range []string{index, columns, values} {
		if !utils.HasColumn(df, col) {
			return nil, fmt.Errorf("列不存在: %s", col)
		}
	}

	rowS, colS := df.Col(index), df.Col(columns)
	vals := df.Col(values).Float()

	type cell struct{ row, col string }
	sums := make(map[cell][]float64)
	rowSet := make(map[string]series.Element)
	colSet := make(map[string]series.Element)
	for i, v := range vals {
		re, ce := rowS.Elem(i), colS.Elem(i)
		if math.IsNaN(v) || re.IsNA() || ce.IsNA() {
			continue
		}
		k := cell{re.String(), ce.String()}
		sums[k] = append(sums[k], v)
		rowSet[k.row] = re
		colSet[k.col] = ce
	}
	if len(sums) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, values)
	}

	t := &PivotTable{Rows: sortedKeys(rowSet), Cols: sortedKeys(colSet)}
	t.Values = make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		t.Values[i] = make([]float64, len(t.Cols))
		for j, c := range t.Cols {
			if xs, ok := sums[cell{r, c}]; ok {
				t.Values[i][j] = stat.Mean(xs, nil)
			} else {
				t.Values[i][j] = math.NaN()
			}
		}
	}
	return t, nil
}

// sortedKeys 数值型按数值排序, 其余按字符串排序
func sortedKeys(set map[string]series.Element) []string {
	keys := make([]string, 0, len(set))
	numeric := true
	for k, e := range set {
		keys = append(keys, k)
		if e.Type() == series.String {
			if _, err := strconv.ParseFloat(k, 64); err != nil {
				numeric = false
			}
		}
	}
	if numeric {
		sort.Slice(keys, func(i, j int) bool {
			return set[keys[i]].Float() < set[keys[j]].Float()
		})
	} else {
		sort.Strings(keys)
	}
	return keys
}

// Groups 按分类收集的数值
type Groups struct {
	Keys   []string
	Values map[string][]float64
}

// Means 各分类的均值, 顺序与 Keys 一致
func (g Groups) Means() []float64 {
	out := make([]float64, len(g.Keys))
	for i, k := range g.Keys {
		if len(g.Values[k]) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(g.Values[k], nil)
	}
	return out
}

// GroupValues 按 category 列分组收集 value 列的非空数值
func GroupValues(df dataframe.DataFrame, category, value string) (Groups, error) {
	for _, col := range []string{category, value} {
		if !utils.HasColumn(df, col) {
			return Groups{}, fmt.Errorf("列不存在: %s", col)
		}
	}

	cats := df.Col(category)
	vals := df.Col(value).Float()
	g := Groups{Values: make(map[string][]float64)}
	set := make(map[string]series.Element)
	for i, v := range vals {
		e := cats.Elem(i)
		if e.IsNA() || math.IsNaN(v) {
			continue
		}
		key := e.String()
		if _, ok := set[key]; !ok {
			set[key] = e
		}
		g.Values[key] = append(g.Values[key], v)
	}
	g.Keys = sortedKeys(set)
	return g, nil
}
