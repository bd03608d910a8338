// writer.go
package file

import (
	"TaxiWeather/src/utils"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}
	if info, err := os.Stat(dirPath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return os.MkdirAll(dirPath, 0755)
}

// SaveDataFrame 按扩展名(.parquet/.csv/.xlsx)保存 DataFrame
func SaveDataFrame(df dataframe.DataFrame, filePath string) error {
	if df.Err != nil {
		return df.Err
	}
	if err := ensureDir(filepath.Dir(filePath)); err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".parquet":
		return WriteParquet(df, filePath)
	case ".csv":
		return writeCSV(df, filePath)
	case ".xlsx":
		return utils.SaveToExcel(df, filePath)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filePath)
	}
}

func writeCSV(df dataframe.DataFrame, filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建csv文件失败: %w", err)
	}
	defer f.Close()

	if err := df.WriteCSV(f); err != nil {
		return fmt.Errorf("写入csv失败: %w", err)
	}
	return nil
}
