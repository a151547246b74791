package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind enumerates the scalar types a result column can hold.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindDate
)

// Value is a tagged scalar read from a result row.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Time time.Time
}

func NullValue() Value            { return Value{Kind: KindNull} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Time: t} }
func (v Value) IsNull() bool      { return v.Kind == KindNull }

// ValueOf converts a driver value into a Value.
func ValueOf(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return NullValue()
	case Value:
		return x
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return StringValue(strconv.FormatBool(x))
	case int:
		return NumberValue(float64(x))
	case int8:
		return NumberValue(float64(x))
	case int16:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case uint8:
		return NumberValue(float64(x))
	case uint16:
		return NumberValue(float64(x))
	case uint32:
		return NumberValue(float64(x))
	case uint64:
		return NumberValue(float64(x))
	case float32:
		return NumberValue(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return NullValue()
		}
		return NumberValue(x)
	case time.Time:
		return DateValue(x)
	case *time.Time:
		if x == nil {
			return NullValue()
		}
		return DateValue(*x)
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(x))
	}
}

// String renders the value for answer text: whole numbers without decimals,
// dates as YYYY-MM-DD and null as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1e15 {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return strconv.FormatFloat(v.Num, 'f', 2, 64)
	case KindDate:
		return v.Time.Format("2006-01-02")
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindDate:
		if v.Time.Hour() == 0 && v.Time.Minute() == 0 && v.Time.Second() == 0 {
			return json.Marshal(v.Time.Format("2006-01-02"))
		}
		return json.Marshal(v.Time.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// Row maps a column name to its value.
type Row map[string]Value

// Str returns the column rendered as text, or "" when missing.
func (r Row) Str(col string) string {
	return r[col].String()
}

// Num returns the column as a number when it holds one.
func (r Row) Num(col string) (float64, bool) {
	v, ok := r[col]
	if !ok {
		return 0, false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
	return 0, false
}

// Has reports whether the column is present and non-null.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && !v.IsNull()
}

// ResultSet is an ordered list of rows tagged with their origin.
// An empty ResultSet is a valid outcome, distinct from an execution error.
type ResultSet struct {
	Columns    []string   `json:"columns"`
	Rows       []Row      `json:"rows"`
	Source     DataSource `json:"source"`
	DataSource string     `json:"dataSource"`
}

// NewResultSet builds an empty result set tagged for source.
func NewResultSet(source DataSource) *ResultSet {
	return &ResultSet{
		Columns:    []string{},
		Rows:       []Row{},
		Source:     source,
		DataSource: source.Provider(),
	}
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

func (rs *ResultSet) Empty() bool { return rs.Len() == 0 }

// Merge concatenates two result sets, tagging the combined provider.
func Merge(a, b *ResultSet) *ResultSet {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := &ResultSet{
		Source:     a.Source,
		DataSource: a.DataSource + "+" + b.DataSource,
	}
	seen := make(map[string]bool)
	for _, c := range append(append([]string{}, a.Columns...), b.Columns...) {
		if !seen[c] {
			seen[c] = true
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = append(append([]Row{}, a.Rows...), b.Rows...)
	return out
}
