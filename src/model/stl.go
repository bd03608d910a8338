// stl.go
package model

import (
	"TaxiWeather/src/processor"
	"TaxiWeather/src/utils"
	"TaxiWeather/src/visualize"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// STLOptions 季节-趋势分解参数
type STLOptions struct {
	Period   int  // 季节周期, 默认 7
	Seasonal int  // 季节平滑窗口(奇数), 默认 7
	Trend    int  // 趋势平滑窗口(奇数), 0 时自动选择
	LowPass  int  // 低通滤波窗口(奇数且大于周期), 0 时取大于周期的最小奇数
	Robust   bool // 是否做稳健迭代

	Renderer *visualize.Renderer // 不为空时输出分解图
	PlotName string
}

// STLResult 分解结果, Observed = Trend + Seasonal + Resid
type STLResult struct {
	Time     []time.Time
	Observed []float64
	Trend    []float64
	Seasonal []float64
	Resid    []float64
	Weights  []float64

	TrendWindow   int
	LowPassWindow int
}

// Decompose 将 timeCol 解析为时间并排序, 对 valueCol 做 STL 分解, 输出分解图,
// 返回季节项以及完整结果
func Decompose(df dataframe.DataFrame, timeCol, valueCol string, opts STLOptions) (series.Series, *STLResult, error) {
	for _, col := range []string{timeCol, valueCol} {
		if !utils.HasColumn(df, col) {
			return series.Series{}, nil, fmt.Errorf("%w: %s", processor.ErrMissingColumn, col)
		}
	}

	type obs struct {
		t time.Time
		v float64
	}
	ts, vs := df.Col(timeCol), df.Col(valueCol).Float()
	points := make([]obs, 0, len(vs))
	for i, v := range vs {
		t, err := utils.ParseTime(ts.Elem(i))
		if err != nil || t.IsZero() || math.IsNaN(v) {
			continue
		}
		points = append(points, obs{t, v})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].t.Before(points[j].t) })

	res := &STLResult{
		Time:     make([]time.Time, len(points)),
		Observed: make([]float64, len(points)),
	}
	for i, p := range points {
		res.Time[i], res.Observed[i] = p.t, p.v
	}

	if err := res.fit(opts); err != nil {
		return series.Series{}, nil, err
	}

	if opts.Renderer != nil {
		name := opts.PlotName
		if name == "" {
			name = "stl_" + valueCol
		}
		panels := []visualize.Panel{
			{Name: valueCol, Values: res.Observed},
			{Name: "Trend", Values: res.Trend},
			{Name: "Season", Values: res.Seasonal},
			{Name: "Resid", Values: res.Resid},
		}
		if err := opts.Renderer.DecompositionPlot(res.Time, panels, "STL "+valueCol, name); err != nil {
			return series.Series{}, res, err
		}
	}
	return series.New(res.Seasonal, series.Float, "seasonal"), res, nil
}

// DailyMean 按日期聚合 valueCol 的均值, 得到等间隔的日序列
func DailyMean(df dataframe.DataFrame, timeCol, valueCol string) (dataframe.DataFrame, error) {
	for _, col := range []string{timeCol, valueCol} {
		if !utils.HasColumn(df, col) {
			return df, fmt.Errorf("%w: %s", processor.ErrMissingColumn, col)
		}
	}

	ts, vs := df.Col(timeCol), df.Col(valueCol).Float()
	days := make(map[string][]float64)
	for i, v := range vs {
		t, err := utils.ParseTime(ts.Elem(i))
		if err != nil || t.IsZero() || math.IsNaN(v) {
			continue
		}
		key := t.Format("2006-01-02")
		days[key] = append(days[key], v)
	}
	if len(days) == 0 {
		return df, fmt.Errorf("%w: %s 没有可用数据", ErrInsufficientData, valueCol)
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	means := make([]float64, len(keys))
	for i, k := range keys {
		means[i] = stat.Mean(days[k], nil)
	}

	out := dataframe.New(
		series.New(keys, series.String, processor.DateCol),
		series.New(means, series.Float, valueCol),
	)
	return out, out.Err
}

// fit Cleveland 等 (1990) 的 STL: 内循环为周期子序列平滑、低通滤波、趋势平滑,
// 外循环用 bisquare 权重降低异常值影响
func (r *STLResult) fit(opts STLOptions) error {
	np := opts.Period
	if np == 0 {
		np = 7
	}
	ns := opts.Seasonal
	if ns == 0 {
		ns = 7
	}
	if np < 2 {
		return fmt.Errorf("周期必须 >= 2: %d", np)
	}
	if ns < 3 || ns%2 == 0 {
		return fmt.Errorf("季节平滑窗口必须为 >= 3 的奇数: %d", ns)
	}
	n := len(r.Observed)
	if n < 2*np {
		return fmt.Errorf("%w: %d 个观测值不足两个周期(%d)", ErrInsufficientData, n, np)
	}

	nt := opts.Trend
	if nt == 0 {
		nt = nextOdd(int(math.Ceil(1.5 * float64(np) / (1 - 1.5/float64(ns)))))
	}
	if nt%2 == 0 {
		nt++
	}
	nl := opts.LowPass
	if nl == 0 {
		nl = nextOdd(np + 1)
	}
	if nl <= np || nl%2 == 0 {
		return fmt.Errorf("低通窗口必须为大于周期 %d 的奇数: %d", np, nl)
	}

	inner, outer := 5, 0
	if opts.Robust {
		inner, outer = 2, 15
	}

	y := r.Observed
	trend := make([]float64, n)
	season := make([]float64, n)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	for o := 0; o <= outer; o++ {
		for k := 0; k < inner; k++ {
			stlInner(y, np, ns, nt, nl, weights, trend, season)
		}
		if o < outer {
			robustnessWeights(y, trend, season, weights)
		}
	}

	r.Trend, r.Seasonal, r.Weights = trend, season, weights
	r.TrendWindow, r.LowPassWindow = nt, nl
	r.Resid = make([]float64, n)
	for i := range y {
		r.Resid[i] = y[i] - trend[i] - season[i]
	}
	return nil
}

// stlInner 一次内循环, 原地更新 trend 和 season
func stlInner(y []float64, np, ns, nt, nl int, w, trend, season []float64) {
	n := len(y)

	// 1. 去趋势
	detrended := make([]float64, n)
	for i := range y {
		detrended[i] = y[i] - trend[i]
	}

	// 2. 周期子序列平滑, 每个子序列两端各外推一个点
	c := make([]float64, n+2*np)
	for k := 0; k < np; k++ {
		var sub, subW []float64
		for i := k; i < n; i += np {
			sub = append(sub, detrended[i])
			subW = append(subW, w[i])
		}
		m := len(sub)
		for j := 0; j < m; j++ {
			v, ok := loess(sub, subW, ns, float64(j))
			if !ok {
				v = sub[j]
			}
			c[k+np*(j+1)] = v
		}
		// 外推点无法估计时取相邻的平滑值
		if v, ok := loess(sub, subW, ns, -1); ok {
			c[k] = v
		} else {
			c[k] = c[k+np]
		}
		if v, ok := loess(sub, subW, ns, float64(m)); ok {
			c[k+np*(m+1)] = v
		} else {
			c[k+np*(m+1)] = c[k+np*m]
		}
	}

	// 3. 低通滤波: MA(np) → MA(np) → MA(3) → loess(nl)
	low := movingAverage(movingAverage(movingAverage(c, np), np), 3)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	for i := 0; i < n; i++ {
		v, ok := loess(low, ones, nl, float64(i))
		if !ok {
			v = low[i]
		}
		// 4. 季节项 = 平滑后的周期子序列 - 低通分量
		season[i] = c[np+i] - v
	}

	// 5. 去季节后做趋势平滑
	deseason := make([]float64, n)
	for i := range y {
		deseason[i] = y[i] - season[i]
	}
	for i := 0; i < n; i++ {
		v, ok := loess(deseason, w, nt, float64(i))
		if !ok {
			v = deseason[i]
		}
		trend[i] = v
	}
}

// loess 在位置 xs 处做一次局部线性加权回归, q 为邻域点数, 使用 tricube 权重
func loess(y, rw []float64, q int, xs float64) (float64, bool) {
	n := len(y)
	if n == 0 {
		return 0, false
	}
	if n == 1 {
		return y[0], rw[0] > 0
	}

	var left, right int
	if q >= n {
		left, right = 0, n-1
	} else {
		left = clamp(int(math.Round(xs))-(q-1)/2, 0, n-q)
		right = left + q - 1
	}

	h := math.Max(xs-float64(left), float64(right)-xs)
	if q > n {
		h += float64((q - n) / 2)
	}

	w := make([]float64, right-left+1)
	var sum float64
	for j := left; j <= right; j++ {
		d := math.Abs(float64(j) - xs)
		var wj float64
		switch {
		case d <= 0.001*h:
			wj = 1
		case d <= 0.999*h:
			u := d / h
			u = 1 - u*u*u
			wj = u * u * u
		}
		wj *= rw[j]
		w[j-left] = wj
		sum += wj
	}
	if sum <= 0 {
		return 0, false
	}
	for i := range w {
		w[i] /= sum
	}

	// 局部线性修正
	if h > 0 {
		var a float64
		for j := left; j <= right; j++ {
			a += w[j-left] * float64(j)
		}
		var b float64
		for j := left; j <= right; j++ {
			d := float64(j) - a
			b += w[j-left] * d * d
		}
		rng := float64(n - 1)
		if math.Sqrt(b) > 0.001*rng {
			slope := (xs - a) / b
			for j := left; j <= right; j++ {
				w[j-left] *= slope*(float64(j)-a) + 1
			}
		}
	}

	var out float64
	for j := left; j <= right; j++ {
		out += w[j-left] * y[j]
	}
	return out, true
}

func movingAverage(x []float64, window int) []float64 {
	if window > len(x) {
		return nil
	}
	out := make([]float64, len(x)-window+1)
	var sum float64
	for i := 0; i < window; i++ {
		sum += x[i]
	}
	out[0] = sum / float64(window)
	for i := 1; i < len(out); i++ {
		sum += x[i+window-1] - x[i-1]
		out[i] = sum / float64(window)
	}
	return out
}

// robustnessWeights bisquare(|resid| / 6·median|resid|)
func robustnessWeights(y, trend, season, w []float64) {
	abs := make([]float64, len(y))
	for i := range y {
		abs[i] = math.Abs(y[i] - trend[i] - season[i])
	}
	h := 6 * utils.Quantile(abs, 0.5)
	for i, r := range abs {
		switch {
		case r <= 0.001*h:
			w[i] = 1
		case r <= 0.999*h:
			u := r / h
			u = 1 - u*u
			w[i] = u * u
		default:
			w[i] = 0
		}
	}
}

func nextOdd(x int) int {
	if x%2 == 0 {
		return x + 1
	}
	return x
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
