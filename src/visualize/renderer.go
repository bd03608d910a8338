// renderer.go
package visualize

import (
	"TaxiWeather/src/config"
	"TaxiWeather/src/storage"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

// Labels 图表标题与坐标轴标签
type Labels struct {
	Title string
	X     string
	Y     string
}

// Renderer 将图表写入 OutputDir 下的图片文件, 格式由文件扩展名决定(默认 png)
type Renderer struct {
	OutputDir string
	Width     vg.Length
	Height    vg.Length
	logger    *storage.Logger
}

func NewRenderer(cfg *config.Config, logger *storage.Logger) *Renderer {
	return &Renderer{
		OutputDir: cfg.Plot.OutputDir,
		Width:     vg.Length(cfg.Plot.Width) * vg.Inch,
		Height:    vg.Length(cfg.Plot.Height) * vg.Inch,
		logger:    logger,
	}
}

// Path 返回图表文件的完整路径, 并确保目录存在
func (r *Renderer) Path(name string) (string, error) {
	if filepath.Ext(name) == "" {
		name += ".png"
	}
	dir := r.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建图表目录失败: %w", err)
	}
	return filepath.Join(dir, name), nil
}

func (r *Renderer) size() (vg.Length, vg.Length) {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = 10 * vg.Inch
	}
	if h <= 0 {
		h = 8 * vg.Inch
	}
	return w, h
}

func newPlot(l Labels) *plot.Plot {
	p := plot.New()
	p.Title.Text = l.Title
	p.X.Label.Text = l.X
	p.Y.Label.Text = l.Y
	return p
}

// yGrid 只保留水平网格线
func yGrid() *plotter.Grid {
	g := plotter.NewGrid()
	g.Vertical.Color = nil
	return g
}

func (r *Renderer) save(p *plot.Plot, name string) error {
	path, err := r.Path(name)
	if err != nil {
		return err
	}
	w, h := r.size()
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("保存图表 %s 失败: %w", path, err)
	}
	r.logger.Info("图表已保存: " + path)
	return nil
}

// qualitativeColors Set3 配色, 不足时循环使用
func qualitativeColors(n int) []color.Color {
	p, err := brewer.GetPalette(brewer.TypeQualitative, "Set3", 12)
	if err != nil {
		return []color.Color{color.Gray{Y: 180}}
	}
	base := p.Colors()
	out := make([]color.Color, n)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}

// format 返回 name 的图片格式
func format(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "png"
	}
	return ext[1:]
}
