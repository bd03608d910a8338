// merge.go
package processor

import (
	"TaxiWeather/src/config"
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/storage"
	"TaxiWeather/src/utils"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Merger 合并数据目录中的行程分区文件, 并将结果缓存到 Output
type Merger struct {
	Dir      string
	Pattern  string
	Output   string // 为空时不缓存
	TotalCol string
	Options  file.Options
	logger   *storage.Logger
	mu       sync.Mutex
}

func NewMerger(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) *Merger {
	return &Merger{
		Dir:      cfg.DataDir,
		Pattern:  cfg.FilePattern,
		Output:   cfg.MergedFile,
		TotalCol: dcfg.GetColumn("total_amount"),
		Options:  file.Options{Encoding: cfg.Encoding},
		logger:   logger,
	}
}

// Merge 缓存文件存在时直接读取; 否则读取并拼接所有匹配文件, 删除最后一列,
// 去重, 保留 total_amount > 0 的行, 写出缓存后返回
func (m *Merger) Merge() (dataframe.DataFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Output != "" {
		if _, err := os.Stat(m.Output); err == nil {
			df, err := file.ReadFile(m.Output, m.Options)
			if err != nil {
				return df, fmt.Errorf("读取合并缓存失败: %w", err)
			}
			m.logger.Info(fmt.Sprintf("使用合并缓存 %s (%s 行)", m.Output, utils.Printer.Sprintf("%d", df.Nrow())))
			return df, nil
		}
	}

	t1 := time.Now()
	files, err := file.ListFiles(m.Dir, m.Pattern, m.Output)
	if err != nil {
		return dataframe.New(), err
	}

	var merged dataframe.DataFrame
	for i, path := range files {
		df, err := file.ReadFile(path, m.Options)
		if err != nil {
			return dataframe.New(), err
		}
		m.logger.Debug(fmt.Sprintf("读取 %s: %s 行", path, utils.Printer.Sprintf("%d", df.Nrow())))
		if i == 0 {
			merged = df
			continue
		}
		merged = merged.RBind(df)
		if merged.Err != nil {
			return merged, fmt.Errorf("拼接 %s 失败: %w", path, merged.Err)
		}
	}

	names := merged.Names()
	if len(names) > 1 {
		merged = merged.Select(names[:len(names)-1])
	}
	merged = DropDuplicates(merged)

	totalCol := orDefault(m.TotalCol, "total_amount")
	merged, err = FilterPositive(merged, totalCol)
	if err != nil {
		return merged, err
	}
	if merged.Nrow() == 0 {
		return merged, fmt.Errorf("%w: 没有 %s > 0 的行程", ErrEmptyResult, totalCol)
	}

	if m.Output != "" {
		if err := file.SaveDataFrame(merged, m.Output); err != nil {
			return merged, fmt.Errorf("写入合并缓存失败: %w", err)
		}
	}

	m.logger.Info(fmt.Sprintf("合并 %d 个文件, 共 %s 行, 耗时 %v",
		len(files), utils.Printer.Sprintf("%d", merged.Nrow()), time.Since(t1)))
	return merged, nil
}

// Invalidate 删除缓存文件, 下一次 Merge 会重新合并
func (m *Merger) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Output == "" {
		return nil
	}
	if err := os.Remove(m.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
