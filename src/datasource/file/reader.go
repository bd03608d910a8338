// reader.go
package file

import (
	"TaxiWeather/src/utils"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var (
	ErrMissingDirectory   = errors.New("data directory does not exist")
	ErrNoMatchingFiles    = errors.New("no files match the pattern")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrSheetNotFound      = errors.New("sheet not found")
	excelSerialExpression = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
)

// Options 读取文件时的可选参数
type Options struct {
	Encoding  string // csv 编码: utf-8(默认) / gbk / latin1 / windows-1252
	SheetName string // xlsx 工作表, 为空时取第一个
	HeaderRow int    // xlsx 标题所在行(从0开始)
}

// ReadFile 根据扩展名选择读取方式
func ReadFile(filePath string, opts Options) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".parquet":
		return ReadParquet(filePath)
	case ".csv":
		return ReadCSV(filePath, opts.Encoding)
	case ".xlsx":
		return ReadXLSX(filePath, opts.SheetName, opts.HeaderRow)
	default:
		return dataframe.New(), fmt.Errorf("%w: %s", ErrUnsupportedFormat, filePath)
	}
}

// ReadCSV 读取 csv 文件, 自动推断列类型
func ReadCSV(filePath, encoding string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("打开csv文件失败: %w", err)
	}
	defer f.Close()

	r, err := decodeReader(f, encoding)
	if err != nil {
		return dataframe.New(), err
	}

	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(true))
	if df.Err != nil {
		return df, fmt.Errorf("解析csv文件失败 %s: %w", filePath, df.Err)
	}
	return df, nil
}

// decodeReader 将指定编码的输入转换为 UTF-8
func decodeReader(input io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "gbk", "gb2312":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("不支持的编码: %s", charset)
	}
}

// ReadXLSX 读取 xlsx 工作表, headerRow 行作为列名, 其后为数据
func ReadXLSX(filePath, sheetName string, headerRow int) (df dataframe.DataFrame, err error) {

	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表
	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("%w: excel文件中没有工作表", ErrSheetNotFound)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.New(), fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
		}
		sheet = s
	}

	// 3. 转换为Gota DataFrame
	return convertSheetToDataFrame(sheet, headerRow)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, headerRow int) (dataframe.DataFrame, error) {
	if len(sheet.Rows) <= headerRow {
		return dataframe.New(), fmt.Errorf("工作表 %s 没有标题行", sheet.Name)
	}

	var headers []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}

	records := [][]string{headers}
	for _, row := range sheet.Rows[headerRow+1:] {
		if row == nil {
			continue
		}
		record := make([]string, len(headers))
		for i := range record {
			record[i] = "NaN"
		}
		empty := true
		for i, cell := range row.Cells {
			if i < len(headers) && cell.Value != "" { // 确保不超出列数范围
				record[i] = cell.Value
				empty = false
			}
		}
		// 跳过完全空的行
		if !empty {
			records = append(records, record)
		}
	}

	df := dataframe.LoadRecords(records, dataframe.DetectTypes(true))
	return df, df.Err
}

// NormalizeExcelTimes 将 Excel 序列日期列转换为统一的时间字符串
func NormalizeExcelTimes(df dataframe.DataFrame, cols ...string) (dataframe.DataFrame, error) {
	for _, col := range cols {
		s := df.Col(col)
		if s.Err != nil {
			return df, fmt.Errorf("列不存在: %s", col)
		}
		converted := make([]string, s.Len())
		for i := 0; i < s.Len(); i++ {
			converted[i] = excelToTime(s.Elem(i))
		}
		df = df.Mutate(series.New(converted, series.String, col))
	}
	return df, df.Err
}

// excelToTime excel序列日期转为时间字符串, 非数值原样返回
func excelToTime(v series.Element) string {
	if v.IsNA() {
		return "NaN"
	}
	str := v.String()
	if !excelSerialExpression.MatchString(str) {
		return str
	}

	excelDays, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return str
	}

	// 1899-12-30 作为基准已经抵消了 Excel 1900 年闰年错误
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := math.Floor(excelDays)
	fraction := excelDays - days

	result := base.AddDate(0, 0, int(days)).
		Add(time.Duration(math.Round(86400*fraction)) * time.Second)

	return result.Format(utils.TimeLayout)
}
