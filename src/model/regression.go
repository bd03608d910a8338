// regression.go
package model

import (
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/processor"
	"TaxiWeather/src/utils"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"text/tabwriter"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrSingularMatrix   = errors.New("design matrix is singular or ill-conditioned")
	ErrInsufficientData = errors.New("not enough observations")
)

// conditionLimit 设计矩阵条件数上限, 超过视为奇异
const conditionLimit = 1e10

// InterceptTerm 截距项名称
const InterceptTerm = "const"

type RegressionOptions struct {
	Target      string
	Features    []string // 数值特征
	Categorical []string // 独热编码的分类特征(去掉第一个水平)
	TestSize    float64  // 测试集比例, 0 表示在训练集上评估
	Seed        int64
	Out         io.Writer // 评估结果输出, 为空时不输出
}

// Coefficient OLS 系数及显著性
type Coefficient struct {
	Term     string
	Estimate float64
	StdErr   float64
	TStat    float64
	PValue   float64
}

// LinearModel 线性回归模型: Coef 来自训练集, OLS 诊断来自全量数据
type LinearModel struct {
	Target      string
	Terms       []string
	Coef        []float64
	NTrain      int
	NTest       int
	TestR2      float64
	TestMSE     float64
	NObs        int
	RSquared    float64
	AdjRSquared float64
	OLS         []Coefficient

	features    []string
	categorical []string
	levels      map[string][]string
}

// LinearRegression 独热编码分类特征, 划分训练/测试集, 拟合 OLS 并输出 R²、MSE 和系数,
// 再用全量数据拟合得到标准误与 p 值. 返回模型与文本摘要
func LinearRegression(df dataframe.DataFrame, opts RegressionOptions) (*LinearModel, string, error) {
	if df.Err != nil {
		return nil, "", df.Err
	}
	if opts.TestSize < 0 || opts.TestSize >= 1 {
		return nil, "", fmt.Errorf("测试集比例必须在 [0,1) 之间: %v", opts.TestSize)
	}
	cols := append([]string{opts.Target}, opts.Features...)
	cols = append(cols, opts.Categorical...)
	for _, col := range cols {
		if !utils.HasColumn(df, col) {
			return nil, "", fmt.Errorf("%w: %s", processor.ErrMissingColumn, col)
		}
	}

	df = completeRows(df, opts)
	if df.Err != nil {
		return nil, "", df.Err
	}

	m := &LinearModel{
		Target:      opts.Target,
		features:    opts.Features,
		categorical: opts.Categorical,
		levels:      make(map[string][]string),
	}
	m.buildTerms(df)

	x := m.design(df)
	y := df.Col(opts.Target).Float()
	n, p := len(y), len(m.Terms)
	if n <= p {
		return nil, "", fmt.Errorf("%w: %d 行, %d 个参数", ErrInsufficientData, n, p)
	}

	// 训练/测试集划分
	perm := rand.New(rand.NewSource(opts.Seed)).Perm(n)
	nTest := int(math.Ceil(opts.TestSize * float64(n)))
	testIdx, trainIdx := perm[:nTest], perm[nTest:]
	if len(trainIdx) <= p {
		return nil, "", fmt.Errorf("%w: 训练集 %d 行, %d 个参数", ErrInsufficientData, len(trainIdx), p)
	}
	if len(testIdx) == 0 {
		testIdx = trainIdx
	}

	xTrain, yTrain := subset(x, y, trainIdx)
	coef, err := fitOLS(xTrain, yTrain)
	if err != nil {
		return nil, "", err
	}
	m.Coef = coef
	m.NTrain, m.NTest = len(trainIdx), nTest

	xTest, yTest := subset(x, y, testIdx)
	pred := predict(xTest, coef)
	m.TestR2 = RSquared(yTest, pred)
	m.TestMSE = MSE(yTest, pred)

	// 全量数据上的显著性诊断
	full, err := fitOLS(x, y)
	if err != nil {
		return nil, "", err
	}
	m.OLS, err = diagnostics(x, y, full, m.Terms)
	if err != nil {
		return nil, "", err
	}
	m.NObs = n
	m.RSquared = RSquared(y, predict(x, full))
	m.AdjRSquared = AdjustedRSquared(m.RSquared, n, p-1)

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "R-squared: %.4f\n", m.TestR2)
		fmt.Fprintf(opts.Out, "Mean Squared Error: %.4f\n", m.TestMSE)
		tw := tabwriter.NewWriter(opts.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Feature\tCoefficient")
		for i, term := range m.Terms[1:] {
			fmt.Fprintf(tw, "%s\t%.4f\n", term, coef[i+1])
		}
		tw.Flush()
	}
	return m, m.Summary(), nil
}

// completeRows 删除模型用到的列中含空值的行
func completeRows(df dataframe.DataFrame, opts RegressionOptions) dataframe.DataFrame {
	numeric := append([]string{opts.Target}, opts.Features...)
	keep := make([]int, 0, df.Nrow())
	numCols := make([]series.Series, len(numeric))
	for i, c := range numeric {
		numCols[i] = df.Col(c)
	}
	catCols := make([]series.Series, len(opts.Categorical))
	for i, c := range opts.Categorical {
		catCols[i] = df.Col(c)
	}

	for r := 0; r < df.Nrow(); r++ {
		ok := true
		for _, s := range numCols {
			if math.IsNaN(s.Elem(r).Float()) {
				ok = false
				break
			}
		}
		for _, s := range catCols {
			if !ok {
				break
			}
			ok = !utils.IsMissing(s.Elem(r))
		}
		if ok {
			keep = append(keep, r)
		}
	}
	if len(keep) == df.Nrow() {
		return df
	}
	return df.Subset(keep)
}

// buildTerms 记录分类特征的水平(排序后去掉第一个)以及设计矩阵列名
func (m *LinearModel) buildTerms(df dataframe.DataFrame) {
	m.Terms = append([]string{InterceptTerm}, m.features...)
	for _, c := range m.categorical {
		set := make(map[string]struct{})
		for _, v := range df.Col(c).Records() {
			set[v] = struct{}{}
		}
		levels := make([]string, 0, len(set))
		for v := range set {
			levels = append(levels, v)
		}
		sort.Strings(levels)
		if len(levels) > 0 {
			levels = levels[1:]
		}
		m.levels[c] = levels
		for _, l := range levels {
			m.Terms = append(m.Terms, c+"_"+l)
		}
	}
}

// design 构造设计矩阵, 未见过的分类水平全部编码为 0
func (m *LinearModel) design(df dataframe.DataFrame) *mat.Dense {
	n := df.Nrow()
	x := mat.NewDense(n, len(m.Terms), nil)
	for r := 0; r < n; r++ {
		x.Set(r, 0, 1)
	}
	col := 1
	for _, f := range m.features {
		for r, v := range df.Col(f).Float() {
			x.Set(r, col, v)
		}
		col++
	}
	for _, c := range m.categorical {
		values := df.Col(c).Records()
		for _, l := range m.levels[c] {
			for r, v := range values {
				if v == l {
					x.Set(r, col, 1)
				}
			}
			col++
		}
	}
	return x
}

// Predict 对新数据做预测, 含空值的行结果为 NaN
func (m *LinearModel) Predict(df dataframe.DataFrame) ([]float64, error) {
	for _, col := range append(append([]string{}, m.features...), m.categorical...) {
		if !utils.HasColumn(df, col) {
			return nil, fmt.Errorf("%w: %s", processor.ErrMissingColumn, col)
		}
	}

	pred := predict(m.design(df), m.Coef)
	for r := range pred {
		for _, f := range m.features {
			if math.IsNaN(df.Col(f).Elem(r).Float()) {
				pred[r] = math.NaN()
			}
		}
		for _, c := range m.categorical {
			if utils.IsMissing(df.Col(c).Elem(r)) {
				pred[r] = math.NaN()
			}
		}
	}
	return pred, nil
}

func subset(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	xs := mat.NewDense(len(idx), p, nil)
	ys := make([]float64, len(idx))
	for i, r := range idx {
		xs.SetRow(i, x.RawRowView(r))
		ys[i] = y[r]
	}
	return xs, ys
}

// fitOLS 通过 QR 分解求最小二乘解
func fitOLS(x *mat.Dense, y []float64) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(x)
	if cond := qr.Cond(); math.IsNaN(cond) || cond > conditionLimit {
		return nil, fmt.Errorf("%w: 条件数 %.3g", ErrSingularMatrix, cond)
	}

	_, p := x.Dims()
	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, mat.NewVecDense(len(y), y)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}
	return beta.RawVector().Data, nil
}

func predict(x *mat.Dense, coef []float64) []float64 {
	n, _ := x.Dims()
	out := mat.NewVecDense(n, nil)
	out.MulVec(x, mat.NewVecDense(len(coef), coef))
	return out.RawVector().Data
}

// diagnostics 计算系数的标准误、t 统计量和双侧 p 值
func diagnostics(x *mat.Dense, y, beta []float64, terms []string) ([]Coefficient, error) {
	n, p := x.Dims()
	fitted := predict(x, beta)
	var rss float64
	for i := range y {
		d := y[i] - fitted[i]
		rss += d * d
	}
	dof := float64(n - p)
	sigma2 := rss / dof

	// (X'X)^-1 = R^-1 R^-T
	var (
		qr           mat.QR
		r, rinv, inv mat.Dense
	)
	qr.Factorize(x)
	qr.RTo(&r)
	if err := rinv.Inverse(r.Slice(0, p, 0, p)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
	}
	inv.Mul(&rinv, rinv.T())

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	out := make([]Coefficient, p)
	for j := 0; j < p; j++ {
		se := math.Sqrt(sigma2 * inv.At(j, j))
		t := beta[j] / se
		out[j] = Coefficient{
			Term:     terms[j],
			Estimate: beta[j],
			StdErr:   se,
			TStat:    t,
			PValue:   2 * dist.Survival(math.Abs(t)),
		}
	}
	return out, nil
}

// Summary OLS 回归结果表
func (m *LinearModel) Summary() string {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "OLS Regression Results")
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Dep. Variable:\t%s\tNo. Observations:\t%d\n", m.Target, m.NObs)
	fmt.Fprintf(tw, "R-squared:\t%.4f\tAdj. R-squared:\t%.4f\n", m.RSquared, m.AdjRSquared)
	fmt.Fprintf(tw, "Test R-squared:\t%.4f\tTest MSE:\t%.4f\n", m.TestR2, m.TestMSE)
	tw.Flush()

	fmt.Fprintln(&buf)
	tw = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcoef\tstd err\tt\tP>|t|\t")
	for _, c := range m.OLS {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.3f\t%.3f\t\n", c.Term, c.Estimate, c.StdErr, c.TStat, c.PValue)
	}
	tw.Flush()
	return buf.String()
}

// Coefficient 按名称查找全量 OLS 系数
func (m *LinearModel) Coefficient(term string) (Coefficient, bool) {
	for _, c := range m.OLS {
		if c.Term == term {
			return c, true
		}
	}
	return Coefficient{}, false
}

// CoefficientFrame 系数表: 训练集系数与全量 OLS 诊断
func (m *LinearModel) CoefficientFrame() dataframe.DataFrame {
	n := len(m.OLS)
	terms := make([]string, n)
	train := make([]float64, n)
	est := make([]float64, n)
	se := make([]float64, n)
	t := make([]float64, n)
	pv := make([]float64, n)
	for i, c := range m.OLS {
		terms[i] = c.Term
		train[i] = m.Coef[i]
		est[i], se[i], t[i], pv[i] = c.Estimate, c.StdErr, c.TStat, c.PValue
	}
	return dataframe.New(
		series.New(terms, series.String, "term"),
		series.New(train, series.Float, "train_coef"),
		series.New(est, series.Float, "coef"),
		series.New(se, series.Float, "std_err"),
		series.New(t, series.Float, "t"),
		series.New(pv, series.Float, "p_value"),
	)
}

// ExportCoefficients 将系数表写入 Excel(或按扩展名选择格式)
func ExportCoefficients(m *LinearModel, path string) error {
	if m == nil || len(m.OLS) == 0 {
		return fmt.Errorf("模型尚未拟合")
	}
	return file.SaveDataFrame(m.CoefficientFrame(), path)
}
