package pipeline

import (
	"TaxiWeather/src/processor"
	"TaxiWeather/src/storage"
	"TaxiWeather/src/utils"
	"context"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Step 流水线中的一个命名处理步骤
type Step struct {
	Name    string
	Process processor.DataProcess
}

// Pipeline 按顺序对同一个 DataFrame 执行多个处理步骤
type Pipeline struct {
	steps  []Step
	logger *storage.Logger
}

func NewPipeline(logger *storage.Logger, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: logger}
}

// Add 追加步骤, 返回自身便于链式调用
func (p *Pipeline) Add(name string, process processor.DataProcess) *Pipeline {
	p.steps = append(p.steps, Step{Name: name, Process: process})
	return p
}

// AddFunc 追加一个函数步骤
func (p *Pipeline) AddFunc(name string, f func(data *dataframe.DataFrame) error) *Pipeline {
	return p.Add(name, processor.ProcessFunc(f))
}

// Names 返回所有步骤名称
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Run 依次执行各步骤; 任一步骤失败或 ctx 被取消时停止, 返回失败前的数据
func (p *Pipeline) Run(ctx context.Context, df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return df, err
		}

		t1 := time.Now()
		before := df.Nrow()
		data := df
		if err := step.Process.ColCalculation(&data); err != nil {
			p.logger.Error(fmt.Sprintf("步骤 %s 失败: %v", step.Name, err))
			return df, fmt.Errorf("步骤 %s: %w", step.Name, err)
		}
		if data.Err != nil {
			return df, fmt.Errorf("步骤 %s: %w", step.Name, data.Err)
		}
		df = data

		p.logger.Info(utils.Printer.Sprintf("步骤 %s 完成: %d -> %d 行, 耗时 %v", step.Name, before, df.Nrow(), time.Since(t1)))
	}
	return df, nil
}
