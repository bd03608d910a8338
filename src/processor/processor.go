package processor

import (
	"TaxiWeather/src/utils"
	"errors"
	"fmt"

	"github.com/go-gota/gota/dataframe"
)

var (
	ErrMissingColumn  = errors.New("column not found")
	ErrMissingJoinKey = errors.New("join key not found")
	ErrEmptyResult    = errors.New("no rows left after filtering")
)

// DataProcess 对 DataFrame 做一步原地处理
type DataProcess interface {
	ColCalculation(data *dataframe.DataFrame) error
}

// ProcessFunc 将普通函数适配为 DataProcess
type ProcessFunc func(data *dataframe.DataFrame) error

func (f ProcessFunc) ColCalculation(data *dataframe.DataFrame) error {
	return f(data)
}

// requireColumns 检查列是否存在
func requireColumns(df dataframe.DataFrame, cols ...string) error {
	if df.Err != nil {
		return df.Err
	}
	for _, col := range cols {
		if !utils.HasColumn(df, col) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return nil
}
