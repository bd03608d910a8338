// decomposition.go
package visualize

import (
	"fmt"
	"os"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg/draw"
)

// Panel 分解图中的一个子图
type Panel struct {
	Name   string
	Values []float64
}

// DecompositionPlot 上下排列多个时间序列子图(observed/trend/seasonal/resid), 共用时间轴
func (r *Renderer) DecompositionPlot(times []time.Time, panels []Panel, title, name string) error {
	if len(panels) == 0 {
		return ErrNoData
	}

	plots := make([][]*plot.Plot, len(panels))
	for i, panel := range panels {
		l := Labels{Y: panel.Name}
		if i == 0 {
			l.Title = title
		}
		p, err := timeSeriesPlot(times, panel.Values, l)
		if err != nil {
			return fmt.Errorf("子图 %s: %w", panel.Name, err)
		}
		plots[i] = []*plot.Plot{p}
	}

	path, err := r.Path(name)
	if err != nil {
		return err
	}
	w, h := r.size()
	c, err := draw.NewFormattedCanvas(w, h, format(path))
	if err != nil {
		return err
	}

	tiles := draw.Tiles{Rows: len(panels), Cols: 1, PadY: 2, PadTop: 2, PadBottom: 2, PadLeft: 2, PadRight: 2}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建图表文件失败: %w", err)
	}
	defer f.Close()
	if _, err := c.WriteTo(f); err != nil {
		return fmt.Errorf("保存图表 %s 失败: %w", path, err)
	}
	r.logger.Info("图表已保存: " + path)
	return nil
}
