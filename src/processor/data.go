// data.go
package processor

import (
	"TaxiWeather/src/config"
	"TaxiWeather/src/utils"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
)

type DataProcessor struct {
	df   dataframe.DataFrame
	dcfg *config.DataConfig
}

func NewDataProcessor(df dataframe.DataFrame, dcfg *config.DataConfig) *DataProcessor {
	return &DataProcessor{df: df, dcfg: dcfg}
}

func (p *DataProcessor) DataFrame() dataframe.DataFrame {
	return p.df
}

// CleanData 删除上车时间、距离、车费为空的行
func (p *DataProcessor) CleanData() error {
	df := p.df
	for _, name := range []string{"pickup", "distance", "fare"} {
		col := p.dcfg.GetColumn(name)
		if !utils.HasColumn(df, col) {
			continue
		}
		var err error
		if df, err = DropMissing(df, col); err != nil {
			return err
		}
	}
	if df.Nrow() == 0 {
		return fmt.Errorf("%w: 清洗后没有数据", ErrEmptyResult)
	}
	p.df = df
	return nil
}

// CalculateMetrics 数据集概况: 行数、平均车费/距离/总额、上车时间范围
func (p *DataProcessor) CalculateMetrics() (map[string]interface{}, error) {
	if p.df.Err != nil {
		return nil, p.df.Err
	}

	metrics := map[string]interface{}{
		"total_trips":  p.df.Nrow(),
		"last_updated": time.Now(),
	}
	for key, name := range map[string]string{
		"mean_fare":     "fare",
		"mean_distance": "distance",
		"mean_total":    "total_amount",
	} {
		col := p.dcfg.GetColumn(name)
		if utils.HasColumn(p.df, col) {
			metrics[key] = p.df.Col(col).Mean()
		}
	}

	pickup := p.dcfg.GetColumn("pickup")
	if utils.HasColumn(p.df, pickup) {
		var first, last time.Time
		s := p.df.Col(pickup)
		for i := 0; i < s.Len(); i++ {
			t, err := utils.ParseTime(s.Elem(i))
			if err != nil || t.IsZero() {
				continue
			}
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if last.IsZero() || t.After(last) {
				last = t
			}
		}
		if !first.IsZero() {
			metrics["first_pickup"] = first.Format(utils.TimeLayout)
			metrics["last_pickup"] = last.Format(utils.TimeLayout)
		}
	}
	return metrics, nil
}

// Summary 用于日志输出的概况
func (p *DataProcessor) Summary() (string, error) {
	m, err := p.CalculateMetrics()
	if err != nil {
		return "", err
	}
	s := utils.Printer.Sprintf("行程数 %d", m["total_trips"])
	if v, ok := m["mean_fare"].(float64); ok {
		s += utils.Printer.Sprintf(", 平均车费 %.2f", v)
	}
	if v, ok := m["mean_distance"].(float64); ok {
		s += utils.Printer.Sprintf(", 平均距离 %.2f", v)
	}
	if first, ok := m["first_pickup"]; ok {
		s += fmt.Sprintf(", 时间范围 %v ~ %v", first, m["last_pickup"])
	}
	return s, nil
}
