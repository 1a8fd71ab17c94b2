package kusto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Dataset is a REST v1 response: a list of result tables, the first of
// which is the primary result.
type Dataset struct {
	Tables []Table `json:"Tables"`
}

// Table is one result table.
type Table struct {
	TableName string   `json:"TableName"`
	Columns   []Column `json:"Columns"`
	Rows      [][]any  `json:"Rows"`
}

// Column describes one result column.
type Column struct {
	ColumnName string `json:"ColumnName"`
	DataType   string `json:"DataType"`
	ColumnType string `json:"ColumnType,omitempty"`
}

// ErrNoPrimaryResult is returned when a response carries no tables.
var ErrNoPrimaryResult = errors.New("kusto response has no primary result")

// Primary returns the primary result table.
func (d *Dataset) Primary() (*Table, error) {
	if d == nil || len(d.Tables) == 0 {
		return nil, ErrNoPrimaryResult
	}
	return &d.Tables[0], nil
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.ColumnName == name {
			return i
		}
	}
	return -1
}

// Value returns the cell at row, column name.
func (t *Table) Value(row int, column string) (any, bool) {
	i := t.ColumnIndex(column)
	if i < 0 || row < 0 || row >= len(t.Rows) || i >= len(t.Rows[row]) {
		return nil, false
	}
	return t.Rows[row][i], true
}

// cellString renders a cell as a string; null becomes "".
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// cellInt64 reads a numeric cell.
func cellInt64(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cell value %v (%T) is not numeric", v, v)
	}
}
