package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir          string `json:"data_dir"`           // 行程分区文件所在目录
	FilePattern      string `json:"file_pattern"`       // 分区文件匹配模式, 例如 *.parquet
	MergedFile       string `json:"merged_file"`        // 合并结果缓存文件
	WeatherFile      string `json:"weather_file"`       // 天气数据文件(csv/xlsx)
	WeatherSheet     string `json:"weather_sheet"`      // xlsx 天气数据的工作表
	WeatherHeaderRow int    `json:"weather_header_row"` // xlsx 标题所在行(从0开始)
	WeatherMerged    string `json:"weather_merged"`     // 行程与天气合并后的输出文件
	Encoding         string `json:"encoding"`           // csv 文件编码
	LogName          string `json:"log_name"`
	LogMaxSize       string `json:"log_max_size"`

	Sample struct {
		Proportion float64 `json:"proportion"`
		Seed       int64   `json:"seed"`
	} `json:"sample"`

	PrecipitationThreshold float64 `json:"precipitation_threshold"`

	Model struct {
		TestSize   float64 `json:"test_size"`
		Seed       int64   `json:"seed"`
		ReportPath string  `json:"report_path"` // 回归系数 Excel 报告
	} `json:"model"`

	Decompose struct {
		Column   string `json:"column"` // 做时间序列分解的数值列(逻辑列名)
		Period   int    `json:"period"`
		Seasonal int    `json:"seasonal"`
		LowPass  int    `json:"low_pass"` // 0 时取大于周期的最小奇数
		Robust   bool   `json:"robust"`
	} `json:"decompose"`

	Plot struct {
		OutputDir string  `json:"output_dir"`
		Width     float64 `json:"width"`  // 英寸
		Height    float64 `json:"height"` // 英寸
	} `json:"plot"`

	RefreshInterval Duration `json:"refresh_interval"` // watch 模式下定时刷新间隔
}

// DataConfig 数据列映射以及建模相关的列配置
type DataConfig struct {
	Columns     map[string]string `json:"columns"` // 逻辑列名 -> 数据集中的列名
	Target      string            `json:"target"`
	Features    []string          `json:"features"`
	Categorical []string          `json:"categorical"`
	OutlierCol  string            `json:"outlier_col"`
	GroupCol    string            `json:"group_col"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 加载配置, 进程内只加载一次
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	cfg.applyDefaults()
	dcfg.applyDefaults()
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

// newConfig 0 也是合法取值的配置项在解析前预先填好默认值, 只有 JSON 中出现时才会被覆盖
func newConfig() Config {
	var cfg Config
	cfg.Sample.Proportion = 1
	cfg.Model.Seed = 42
	return cfg
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	cfg := newConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyDefaults 为未设置的配置项填充默认值
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.FilePattern == "" {
		c.FilePattern = "*.parquet"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.Model.TestSize == 0 {
		c.Model.TestSize = 0.2
	}
	if c.Decompose.Period == 0 {
		c.Decompose.Period = 7
	}
	if c.Decompose.Seasonal == 0 {
		c.Decompose.Seasonal = 7
	}
	if c.Plot.OutputDir == "" {
		c.Plot.OutputDir = "plots"
	}
	if c.Plot.Width == 0 {
		c.Plot.Width = 10
	}
	if c.Plot.Height == 0 {
		c.Plot.Height = 8
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = Duration(time.Hour)
	}
}

// defaultColumns NYC 黄色出租车与 Meteostat 小时天气的默认列名
var defaultColumns = map[string]string{
	"pickup":        "tpep_pickup_datetime",
	"dropoff":       "tpep_dropoff_datetime",
	"distance":      "trip_distance",
	"fare":          "fare_amount",
	"total_amount":  "total_amount",
	"weather_time":  "time",
	"temperature":   "temp",
	"precipitation": "prcp",
}

func (dc *DataConfig) applyDefaults() {
	mu.Lock()
	defer mu.Unlock()
	if dc.Columns == nil {
		dc.Columns = make(map[string]string, len(defaultColumns))
	}
	for k, v := range defaultColumns {
		if _, ok := dc.Columns[k]; !ok {
			dc.Columns[k] = v
		}
	}
}

// NewDataConfig 返回仅包含默认列映射的 DataConfig
func NewDataConfig() *DataConfig {
	dc := &DataConfig{}
	dc.applyDefaults()
	return dc
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// GetColumn 返回逻辑列名对应的数据集列名, 未配置时原样返回
func (dc *DataConfig) GetColumn(name string) string {
	mu.RLock()
	defer mu.RUnlock()
	if col, ok := dc.Columns[name]; ok && col != "" {
		return col
	}
	return name
}

func (dc *DataConfig) SetColumn(name, value string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.Columns == nil {
		dc.Columns = make(map[string]string)
	}
	dc.Columns[name] = value
}
