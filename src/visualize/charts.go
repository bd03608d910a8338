// charts.go
package visualize

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrNoData = errors.New("no data to plot")

// BoxPlot 按 xvar 分类绘制 yvar 的箱线图
func (r *Renderer) BoxPlot(df dataframe.DataFrame, xvar, yvar string, l Labels, name string) error {
	groups, err := GroupValues(df, xvar, yvar)
	if err != nil {
		return err
	}

	p := newPlot(l)
	p.Add(yGrid())
	colors := qualitativeColors(len(groups.Keys))
	var names []string
	for i, key := range groups.Keys {
		vals := groups.Values[key]
		if len(vals) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(30), float64(len(names)), plotter.Values(vals))
		if err != nil {
			return fmt.Errorf("箱线图 %s: %w", key, err)
		}
		b.FillColor = colors[i]
		p.Add(b)
		names = append(names, key)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %s", ErrNoData, yvar)
	}
	p.NominalX(names...)
	return r.save(p, name)
}

// HeatMap 绘制透视表热力图, 每个格子标注数值
func (r *Renderer) HeatMap(t *PivotTable, l Labels, name string) error {
	if t == nil || len(t.Rows) == 0 || len(t.Cols) == 0 {
		return ErrNoData
	}

	pal, err := brewer.GetPalette(brewer.TypeSequential, "YlGnBu", 9)
	if err != nil {
		return err
	}
	h := plotter.NewHeatMap(t, pal)
	h.NaN = color.White
	if h.Min == h.Max {
		h.Max = h.Min + 1
	}

	p := newPlot(l)
	p.Add(h)

	var (
		xys  plotter.XYs
		text []string
	)
	for c := range t.Cols {
		for row := range t.Rows {
			v := t.Z(c, row)
			if math.IsNaN(v) {
				continue
			}
			xys = append(xys, plotter.XY{X: t.X(c), Y: t.Y(row)})
			text = append(text, fmt.Sprintf("%.2f", v))
		}
	}
	if len(xys) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
		if err != nil {
			return err
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].XAlign = draw.XCenter
			labels.TextStyle[i].YAlign = draw.YCenter
		}
		p.Add(labels)
	}

	p.NominalX(t.Cols...)
	p.NominalY(t.Rows...)
	return r.save(p, name)
}

// LinePlot 按 x 排序后绘制 y 的折线图
func (r *Renderer) LinePlot(x, y []float64, l Labels, name string) error {
	if len(x) != len(y) {
		return fmt.Errorf("x/y 长度不一致: %d != %d", len(x), len(y))
	}
	xys := make(plotter.XYs, 0, len(x))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: x[i], Y: y[i]})
	}
	if len(xys) == 0 {
		return ErrNoData
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })

	p := newPlot(l)
	p.Add(plotter.NewGrid())
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.LineStyle.Color = color.RGBA{B: 255, A: 255}
	p.Add(line)
	return r.save(p, name)
}

// TimeSeriesPlot 横轴为时间的折线图
func (r *Renderer) TimeSeriesPlot(times []time.Time, values []float64, l Labels, name string) error {
	p, err := timeSeriesPlot(times, values, l)
	if err != nil {
		return err
	}
	return r.save(p, name)
}

func timeSeriesPlot(times []time.Time, values []float64, l Labels) (*plot.Plot, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("时间与数值长度不一致: %d != %d", len(times), len(values))
	}
	xys := make(plotter.XYs, 0, len(times))
	for i, t := range times {
		if math.IsNaN(values[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(t.Unix()), Y: values[i]})
	}
	if len(xys) == 0 {
		return nil, ErrNoData
	}

	p := newPlot(l)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = color.RGBA{B: 255, A: 255}
	p.Add(line)
	return p, nil
}

// BarPlot 分类柱状图
func (r *Renderer) BarPlot(categories []string, values []float64, l Labels, name string) error {
	if len(categories) == 0 || len(categories) != len(values) {
		return ErrNoData
	}

	p := newPlot(l)
	p.Add(yGrid())
	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(30))
	if err != nil {
		return err
	}
	bars.Color = qualitativeColors(1)[0]
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(categories...)
	return r.save(p, name)
}

// AnnotatedBarPlot 并排绘制两组柱状图, 柱顶标注数值
func (r *Renderer) AnnotatedBarPlot(categories []string, first, second []float64, firstName, secondName string, l Labels, name string) error {
	if len(categories) == 0 || len(first) != len(categories) || len(second) != len(categories) {
		return ErrNoData
	}

	const width = 20
	p := newPlot(l)
	p.Add(yGrid())
	colors := qualitativeColors(2)

	for i, series := range []struct {
		name   string
		values []float64
		offset vg.Length
	}{
		{firstName, first, -width / 2},
		{secondName, second, width / 2},
	} {
		bars, err := plotter.NewBarChart(plotter.Values(series.values), vg.Points(width))
		if err != nil {
			return err
		}
		bars.Color = colors[i]
		bars.Offset = vg.Points(float64(series.offset))
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.Legend.Add(series.name, bars)

		xys := make(plotter.XYs, len(series.values))
		text := make([]string, len(series.values))
		for j, v := range series.values {
			xys[j] = plotter.XY{X: float64(j), Y: v}
			text[j] = fmt.Sprintf("%.2f", v)
		}
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
		if err != nil {
			return err
		}
		labels.Offset = vg.Point{X: vg.Points(float64(series.offset)), Y: vg.Points(3)}
		for k := range labels.TextStyle {
			labels.TextStyle[k].XAlign = draw.XCenter
		}
		p.Add(labels)
	}

	p.Legend.Top = true
	p.NominalX(categories...)
	return r.save(p, name)
}
