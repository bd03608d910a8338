// parquet.go
package file

import (
	"TaxiWeather/src/utils"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/encoding"
)

// julianUnixEpoch 1970-01-01 的儒略日, INT96 时间戳以儒略日计
const julianUnixEpoch = 2440588

// parquetColumn 文件中的一个顶层叶子列
type parquetColumn struct {
	name   string
	index  int
	kind   series.Type
	format func(v parquet.Value) string
	values []string
}

// ReadParquet 按文件自身的 schema 读取 parquet 文件, 列名与列顺序和文件一致.
// 时间戳列转换为 utils.TimeLayout 字符串, 空值记为 NaN, 嵌套或重复列跳过
func ReadParquet(filePath string) (dataframe.DataFrame, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("打开parquet文件失败: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return dataframe.New(), err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return dataframe.New(), fmt.Errorf("解析parquet文件失败 %s: %w", filePath, err)
	}

	columns := leafColumns(pf.Schema(), int(pf.NumRows()))
	byIndex := make(map[int]*parquetColumn, len(columns))
	for _, c := range columns {
		byIndex[c.index] = c
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	buf := make([]parquet.Row, 1024)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			for _, v := range row {
				if c, ok := byIndex[v.Column()]; ok {
					c.values = append(c.values, c.format(v))
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataframe.New(), fmt.Errorf("读取parquet文件失败 %s: %w", filePath, err)
		}
	}

	list := make([]series.Series, 0, len(columns))
	for _, c := range columns {
		list = append(list, series.New(c.values, c.kind, c.name))
	}
	return dataframe.New(list...), nil
}

func leafColumns(schema *parquet.Schema, nrows int) []*parquetColumn {
	var columns []*parquetColumn
	for _, field := range schema.Fields() {
		if !field.Leaf() || field.Repeated() {
			continue
		}
		leaf, ok := schema.Lookup(field.Name())
		if !ok {
			continue
		}
		kind, format := leafFormat(field.Type())
		cell := func(v parquet.Value) string {
			if v.IsNull() {
				return "NaN"
			}
			return format(v)
		}
		columns = append(columns, &parquetColumn{
			name:   field.Name(),
			index:  leaf.ColumnIndex,
			kind:   kind,
			format: cell,
			values: make([]string, 0, nrows),
		})
	}
	return columns
}

// leafFormat 按物理类型和逻辑类型选择 series 类型和取值方式
func leafFormat(t parquet.Type) (series.Type, func(v parquet.Value) string) {
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil:
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return series.String, func(v parquet.Value) string { return formatTime(time.UnixMilli(v.Int64())) }
			case unit.Nanos != nil:
				return series.String, func(v parquet.Value) string { return formatTime(time.Unix(0, v.Int64())) }
			default:
				return series.String, func(v parquet.Value) string { return formatTime(time.UnixMicro(v.Int64())) }
			}
		case lt.Date != nil:
			return series.String, func(v parquet.Value) string {
				return time.Unix(int64(v.Int32())*86400, 0).UTC().Format("2006-01-02")
			}
		}
	}
	if ct := t.ConvertedType(); ct != nil {
		switch *ct {
		case deprecated.TimestampMillis:
			return series.String, func(v parquet.Value) string { return formatTime(time.UnixMilli(v.Int64())) }
		case deprecated.TimestampMicros:
			return series.String, func(v parquet.Value) string { return formatTime(time.UnixMicro(v.Int64())) }
		}
	}

	switch t.Kind() {
	case parquet.Boolean:
		return series.Bool, func(v parquet.Value) string { return strconv.FormatBool(v.Boolean()) }
	case parquet.Int32:
		return series.Int, func(v parquet.Value) string { return strconv.FormatInt(int64(v.Int32()), 10) }
	case parquet.Int64:
		return series.Int, func(v parquet.Value) string { return strconv.FormatInt(v.Int64(), 10) }
	case parquet.Int96:
		return series.String, func(v parquet.Value) string { return formatTime(int96Time(v.Int96())) }
	case parquet.Float:
		return series.Float, func(v parquet.Value) string { return formatFloat(float64(v.Float())) }
	case parquet.Double:
		return series.Float, func(v parquet.Value) string { return formatFloat(v.Double()) }
	default:
		return series.String, func(v parquet.Value) string { return string(v.ByteArray()) }
	}
}

// int96Time 低 8 字节为当天纳秒数, 高 4 字节为儒略日
func int96Time(i deprecated.Int96) time.Time {
	nanos := int64(i[1])<<32 | int64(i[0])
	days := int64(i[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(utils.TimeLayout)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// columnGroup 按给定顺序排列字段的 schema 根节点; parquet.Group 会按列名排序
type columnGroup []parquet.Field

type columnField struct {
	parquet.Node
	name  string
	index int
}

func (f *columnField) Name() string { return f.name }

func (f *columnField) Value(base reflect.Value) reflect.Value {
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	return base.Field(f.index)
}

func (g columnGroup) ID() int { return 0 }

func (g columnGroup) String() string {
	var b strings.Builder
	_ = parquet.PrintSchema(&b, "", g)
	return b.String()
}

func (g columnGroup) Type() parquet.Type { return parquet.Group{}.Type() }

func (g columnGroup) Optional() bool { return false }

func (g columnGroup) Repeated() bool { return false }

func (g columnGroup) Required() bool { return true }

func (g columnGroup) Leaf() bool { return false }

func (g columnGroup) Fields() []parquet.Field { return g }

func (g columnGroup) Encoding() encoding.Encoding { return nil }

func (g columnGroup) Compression() compress.Codec { return nil }

func (g columnGroup) GoType() reflect.Type {
	fields := make([]reflect.StructField, len(g))
	for i, f := range g {
		fields[i] = reflect.StructField{
			Name: "F" + strconv.Itoa(i),
			Type: f.GoType(),
			Tag:  reflect.StructTag(`parquet:"` + f.Name() + `"`),
		}
	}
	return reflect.StructOf(fields)
}

// WriteParquet 按 DataFrame 的列顺序动态生成 schema 并写出 parquet 文件
func WriteParquet(df dataframe.DataFrame, filePath string) error {
	if df.Err != nil {
		return df.Err
	}

	names := df.Names()
	types := df.Types()
	timestamps := make([]bool, len(names))
	group := make(columnGroup, len(names))
	for i, name := range names {
		timestamps[i] = isTimestampColumn(df.Col(name))
		group[i] = &columnField{Node: parquetNode(types[i], timestamps[i]), name: name, index: i}
	}
	schema := parquet.NewSchema("trips", group)

	rows, err := dataFrameRows(df, schema, timestamps)
	if err != nil {
		return err
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建parquet文件失败: %w", err)
	}
	defer f.Close()

	w := parquet.NewWriter(f, schema)
	if _, err := w.WriteRows(rows); err != nil {
		return fmt.Errorf("写入parquet失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("写入parquet失败: %w", err)
	}
	return nil
}

// isTimestampColumn 名称以 _datetime 结尾且所有值都是 utils.TimeLayout 格式时按时间戳存储,
// 读回后字符串不变
func isTimestampColumn(col series.Series) bool {
	if col.Type() != series.String || !strings.HasSuffix(strings.ToLower(col.Name), "_datetime") {
		return false
	}
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		s := e.String()
		t, err := time.Parse(utils.TimeLayout, s)
		if err != nil || t.Format(utils.TimeLayout) != s {
			return false
		}
	}
	return true
}

func parquetNode(t series.Type, timestamp bool) parquet.Node {
	if timestamp {
		return parquet.Optional(parquet.Timestamp(parquet.Microsecond))
	}
	switch t {
	case series.Float:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case series.Int:
		return parquet.Optional(parquet.Int(64))
	case series.Bool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

func dataFrameRows(df dataframe.DataFrame, schema *parquet.Schema, timestamps []bool) ([]parquet.Row, error) {
	names := df.Names()
	types := df.Types()
	indexes := make([]int, len(names))
	for i, name := range names {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("schema 中缺少列 %s", name)
		}
		indexes[i] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, df.Nrow())
	for r := range rows {
		rows[r] = make(parquet.Row, len(names))
	}

	for c, name := range names {
		col := df.Col(name)
		for r := 0; r < df.Nrow(); r++ {
			v, err := parquetValue(col.Elem(r), types[c], timestamps[c])
			if err != nil {
				return nil, fmt.Errorf("列 %s 第 %d 行: %w", name, r, err)
			}
			// 行内的值按 schema 的列序排列
			if v.IsNull() {
				rows[r][indexes[c]] = v.Level(0, 0, indexes[c])
			} else {
				rows[r][indexes[c]] = v.Level(0, 1, indexes[c])
			}
		}
	}
	return rows, nil
}

func parquetValue(e series.Element, t series.Type, timestamp bool) (parquet.Value, error) {
	if e.IsNA() {
		return parquet.NullValue(), nil
	}
	if timestamp {
		ts, err := time.Parse(utils.TimeLayout, e.String())
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(ts.UnixMicro()), nil
	}
	switch t {
	case series.Float:
		f := e.Float()
		if math.IsNaN(f) {
			return parquet.NullValue(), nil
		}
		return parquet.DoubleValue(f), nil
	case series.Int:
		i, err := e.Int()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(int64(i)), nil
	case series.Bool:
		b, err := e.Bool()
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.BooleanValue(b), nil
	default:
		return parquet.ByteArrayValue([]byte(e.String())), nil
	}
}
