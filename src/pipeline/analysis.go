// analysis.go
package pipeline

import (
	"TaxiWeather/src/config"
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/model"
	"TaxiWeather/src/processor"
	"TaxiWeather/src/storage"
	"TaxiWeather/src/utils"
	"TaxiWeather/src/visualize"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Report 一次批处理的结果
type Report struct {
	Rows     int
	Model    *model.LinearModel
	Seasonal series.Series
	Metrics  map[string]interface{}
	Summary  string
	Charts   []string
	Elapsed  time.Duration
}

// Analysis 批处理: 合并 → 抽样 → 清洗 → 特征 → 天气合并 → 异常值剔除 → 回归 → STL → 图表
type Analysis struct {
	cfg      *config.Config
	dcfg     *config.DataConfig
	logger   *storage.Logger
	Merger   *processor.Merger
	Renderer *visualize.Renderer
	Out      io.Writer // 回归评估输出, 为空时不输出

	mu sync.Mutex
}

func NewAnalysis(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) *Analysis {
	return &Analysis{
		cfg:      cfg,
		dcfg:     dcfg,
		logger:   logger,
		Merger:   processor.NewMerger(cfg, dcfg, logger),
		Renderer: visualize.NewRenderer(cfg, logger),
	}
}

// Run 执行一次完整分析; 并发调用时串行执行
func (a *Analysis) Run(ctx context.Context) (*Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t1 := time.Now()
	trips, err := a.Merger.Merge()
	if err != nil {
		return nil, fmt.Errorf("合并行程数据失败: %w", err)
	}

	trips, err = processor.SampleData(trips, a.cfg.Sample.Proportion, a.cfg.Sample.Seed)
	if err != nil {
		return nil, err
	}
	a.logger.Info(utils.Printer.Sprintf("抽样后 %d 行", trips.Nrow()))

	df, err := a.Prepare(ctx, trips)
	if err != nil {
		return nil, err
	}

	report := &Report{Rows: df.Nrow()}

	report.Model, err = a.regression(df)
	if err != nil {
		return nil, err
	}
	if report.Model != nil {
		report.Summary = report.Model.Summary()
		a.logger.Info("回归结果:\n" + report.Summary)
	}

	report.Seasonal, err = a.decompose(df, &report.Charts)
	if err != nil {
		return nil, err
	}

	report.Charts = append(report.Charts, a.charts(df)...)

	dp := processor.NewDataProcessor(df, a.dcfg)
	if report.Metrics, err = dp.CalculateMetrics(); err != nil {
		return nil, err
	}
	if s, err := dp.Summary(); err == nil {
		a.logger.Info(s)
	}

	report.Elapsed = time.Since(t1)
	a.logger.Info(fmt.Sprintf("分析完成, 耗时 %v, 输出图表 %d 张", report.Elapsed, len(report.Charts)))
	return report, nil
}

// Prepare 清洗、派生时间特征、合并天气并剔除异常值
func (a *Analysis) Prepare(ctx context.Context, trips dataframe.DataFrame) (dataframe.DataFrame, error) {
	pickup := a.dcfg.GetColumn("pickup")

	pre := NewPipeline(a.logger).
		AddFunc("clean", func(data *dataframe.DataFrame) error {
			dp := processor.NewDataProcessor(*data, a.dcfg)
			if err := dp.CleanData(); err != nil {
				return err
			}
			*data = dp.DataFrame()
			return nil
		}).
		Add("time_features", processor.TimeFeatureStep{Column: pickup}).
		Add("time_of_day", processor.HourBuckets{})
	if dropoff := a.dcfg.GetColumn("dropoff"); utils.HasColumn(trips, dropoff) {
		pre.Add("duration", processor.TripDuration{Pickup: pickup, Dropoff: dropoff})
	}
	df, err := pre.Run(ctx, trips)
	if err != nil {
		return df, err
	}

	post := NewPipeline(a.logger)
	if a.cfg.WeatherFile != "" {
		weather, err := a.loadWeather()
		if err != nil {
			return df, err
		}
		post.AddFunc("merge_weather", func(data *dataframe.DataFrame) error {
			out, err := processor.MergeWeather(*data, weather, a.cfg.WeatherMerged)
			if err != nil {
				return err
			}
			*data = out
			return nil
		}).
			Add("temperature", processor.TemperatureBands{Column: a.dcfg.GetColumn("temperature")}).
			Add("weather", processor.WeatherCategories{
				Column:    a.dcfg.GetColumn("precipitation"),
				Threshold: a.cfg.PrecipitationThreshold,
			})
	} else {
		a.logger.Warning("未配置天气数据, 跳过天气合并")
	}

	if col := a.outlierCol(); col != "" {
		group := a.dcfg.GroupCol
		if group != "" {
			post.Add("distance_group", processor.DistanceRounder{Column: a.dcfg.GetColumn("distance"), Out: group})
		}
		post.Add("outliers", processor.OutlierTrim{GroupCol: group, Column: col})
	}
	return post.Run(ctx, df)
}

func (a *Analysis) loadWeather() (dataframe.DataFrame, error) {
	timeCol := a.dcfg.GetColumn("weather_time")
	weather, err := file.ReadFile(a.cfg.WeatherFile, file.Options{
		Encoding:  a.cfg.Encoding,
		SheetName: a.cfg.WeatherSheet,
		HeaderRow: a.cfg.WeatherHeaderRow,
	})
	if err != nil {
		return weather, fmt.Errorf("读取天气数据失败: %w", err)
	}
	if strings.EqualFold(filepath.Ext(a.cfg.WeatherFile), ".xlsx") {
		if weather, err = file.NormalizeExcelTimes(weather, timeCol); err != nil {
			return weather, err
		}
	}
	weather, err = processor.PrepareWeather(weather, timeCol)
	if err != nil {
		return weather, err
	}
	a.logger.Info(utils.Printer.Sprintf("天气数据 %d 小时", weather.Nrow()))
	return weather, nil
}

func (a *Analysis) outlierCol() string {
	if a.dcfg.OutlierCol != "" {
		return a.dcfg.GetColumn(a.dcfg.OutlierCol)
	}
	return ""
}

// regression 只使用数据中存在的特征列; 目标列不存在时跳过
func (a *Analysis) regression(df dataframe.DataFrame) (*model.LinearModel, error) {
	target := a.dcfg.GetColumn(a.dcfg.Target)
	if a.dcfg.Target == "" || !utils.HasColumn(df, target) {
		a.logger.Warning("未配置回归目标列, 跳过回归")
		return nil, nil
	}

	m, _, err := model.LinearRegression(df, model.RegressionOptions{
		Target:      target,
		Features:    a.present(df, a.dcfg.Features),
		Categorical: a.present(df, a.dcfg.Categorical),
		TestSize:    a.cfg.Model.TestSize,
		Seed:        a.cfg.Model.Seed,
		Out:         a.Out,
	})
	if err != nil {
		return nil, fmt.Errorf("线性回归失败: %w", err)
	}

	if a.cfg.Model.ReportPath != "" {
		if err := model.ExportCoefficients(m, a.cfg.Model.ReportPath); err != nil {
			return m, err
		}
		a.logger.Info("回归系数已保存: " + a.cfg.Model.ReportPath)
	}
	return m, nil
}

func (a *Analysis) present(df dataframe.DataFrame, cols []string) []string {
	var out []string
	for _, c := range cols {
		col := a.dcfg.GetColumn(c)
		if utils.HasColumn(df, col) {
			out = append(out, col)
		} else {
			a.logger.Warning("特征列不存在, 已忽略: " + col)
		}
	}
	return out
}

// decompose 对日均值序列做 STL; 天数不足两个周期时只记录警告
func (a *Analysis) decompose(df dataframe.DataFrame, charts *[]string) (series.Series, error) {
	if a.cfg.Decompose.Column == "" {
		return series.Series{}, nil
	}
	col := a.dcfg.GetColumn(a.cfg.Decompose.Column)
	name := "stl_" + col
	daily, err := model.DailyMean(df, a.dcfg.GetColumn("pickup"), col)
	var (
		seasonal series.Series
		res      *model.STLResult
	)
	if err == nil {
		seasonal, res, err = model.Decompose(daily, processor.DateCol, col, model.STLOptions{
			Period:   a.cfg.Decompose.Period,
			Seasonal: a.cfg.Decompose.Seasonal,
			LowPass:  a.cfg.Decompose.LowPass,
			Robust:   a.cfg.Decompose.Robust,
			Renderer: a.Renderer,
			PlotName: name,
		})
	}
	if errors.Is(err, model.ErrInsufficientData) {
		a.logger.Warning("STL 分解跳过: " + err.Error())
		return series.Series{}, nil
	}
	if err != nil {
		return series.Series{}, err
	}
	*charts = append(*charts, name)

	l := visualize.Labels{Title: "Daily mean " + col, X: "Date", Y: col}
	if err := a.Renderer.TimeSeriesPlot(res.Time, res.Observed, l, "daily_"+col); err != nil {
		a.logger.Error(fmt.Sprintf("图表 daily_%s 生成失败: %v", col, err))
	} else {
		*charts = append(*charts, "daily_"+col)
	}
	return seasonal, nil
}

// charts 输出探索性图表, 单张失败只记录错误
func (a *Analysis) charts(df dataframe.DataFrame) []string {
	fare := a.dcfg.GetColumn("fare")
	var done []string
	try := func(name string, err error) {
		if err != nil {
			a.logger.Error(fmt.Sprintf("图表 %s 生成失败: %v", name, err))
			return
		}
		done = append(done, name)
	}

	try("fare_by_time_of_day", a.Renderer.BoxPlot(df, processor.TimeOfDayCol, fare,
		visualize.Labels{Title: "Fare by time of day", X: "Time of day", Y: "Fare"}, "fare_by_time_of_day"))

	if pt, err := visualize.Pivot(df, processor.HourCol, processor.WeekdayCol, fare); err != nil {
		try("fare_heatmap", err)
	} else {
		try("fare_heatmap", a.Renderer.HeatMap(pt,
			visualize.Labels{Title: "Mean fare by hour and weekday", X: "Weekday", Y: "Hour"}, "fare_heatmap"))
	}

	if utils.HasColumn(df, processor.WeatherCol) {
		if g, err := visualize.GroupValues(df, processor.WeatherCol, fare); err != nil {
			try("fare_by_weather", err)
		} else {
			try("fare_by_weather", a.Renderer.BarPlot(g.Keys, g.Means(),
				visualize.Labels{Title: "Mean fare by weather", X: "Weather", Y: "Fare"}, "fare_by_weather"))
		}
	}

	if utils.HasColumn(df, processor.TemperatureCol) {
		if g, err := visualize.GroupValues(df, processor.TemperatureCol, fare); err != nil {
			try("temperature_fare", err)
		} else {
			counts := make([]float64, len(g.Keys))
			for i, k := range g.Keys {
				counts[i] = float64(len(g.Values[k]))
			}
			try("temperature_fare", a.Renderer.AnnotatedBarPlot(g.Keys, g.Means(), counts, "Mean fare", "Trips",
				visualize.Labels{Title: "Fare and trips by temperature", X: "Temperature"}, "temperature_fare"))
		}
	}

	if group := a.dcfg.GroupCol; group != "" && utils.HasColumn(df, group) {
		if x, y, err := groupMeans(df, group, fare); err != nil {
			try("fare_by_distance", err)
		} else {
			try("fare_by_distance", a.Renderer.LinePlot(x, y,
				visualize.Labels{Title: "Mean fare by distance", X: "Distance", Y: "Fare"}, "fare_by_distance"))
		}
	}
	return done
}

// groupMeans 数值分组列的均值曲线, x 升序
func groupMeans(df dataframe.DataFrame, group, value string) ([]float64, []float64, error) {
	g, err := visualize.GroupValues(df, group, value)
	if err != nil {
		return nil, nil, err
	}
	type point struct{ x, y float64 }
	means := g.Means()
	points := make([]point, 0, len(g.Keys))
	for i, k := range g.Keys {
		x, err := strconv.ParseFloat(k, 64)
		if err != nil {
			continue
		}
		points = append(points, point{x, means[i]})
	}
	if len(points) == 0 {
		return nil, nil, visualize.ErrNoData
	}
	sort.Slice(points, func(i, j int) bool { return points[i].x < points[j].x })
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i], y[i] = p.x, p.y
	}
	return x, y, nil
}
