package core

import (
	"fmt"
	"strings"
)

// WriteMode selects how a plan is applied to the destination table.
type WriteMode string

const (
	ModeSkip    WriteMode = "skip"
	ModeAppend  WriteMode = "append"
	ModeReplace WriteMode = "replace"
)

// WritePlan is a single write against the destination table.
type WritePlan struct {
	Mode  WriteMode `json:"mode"`
	Table string    `json:"table"`
	Rows  []Record  `json:"rows"`
}

// PlanWrite turns a diff into a write plan.
//
// A diff with no rows and no replacement is a skip. A diff with no rows that
// still demands a replacement means the candidate set came back empty while
// the table is not; writing it would clear the table, so it is refused with
// ErrEmptyReplace unless allowEmptyReplace is set.
func PlanWrite(table string, diff Diff, allowEmptyReplace bool) (WritePlan, error) {
	plan := WritePlan{Table: table, Rows: diff.Rows}

	switch {
	case len(diff.Rows) == 0 && !diff.Replace:
		plan.Mode = ModeSkip
	case len(diff.Rows) == 0 && !allowEmptyReplace:
		plan.Mode = ModeSkip
		return plan, fmt.Errorf("%w: %d persisted rows would be removed", ErrEmptyReplace, diff.Stale)
	case diff.Replace:
		plan.Mode = ModeReplace
	default:
		plan.Mode = ModeAppend
	}

	return plan, nil
}

// Skip reports whether the plan writes nothing.
func (p WritePlan) Skip() bool {
	return p.Mode == ModeSkip
}

// ExpectedRows is the row count the destination must report after applying
// the plan.
func (p WritePlan) ExpectedRows() int64 {
	if p.Skip() {
		return 0
	}
	return int64(len(p.Rows))
}

// Command renders the plan as a Kusto management command with the rows
// inlined as a datatable literal. A skip plan renders as an empty string.
func (p WritePlan) Command() string {
	var verb string
	switch p.Mode {
	case ModeAppend:
		verb = ".set-or-append"
	case ModeReplace:
		verb = ".set-or-replace"
	default:
		return ""
	}

	var b strings.Builder
	b.WriteString(verb)
	b.WriteString(" ")
	b.WriteString(p.Table)
	b.WriteString(" <|\ndatatable (")
	for i, col := range Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(":string")
	}
	b.WriteString(") [\n")
	for _, r := range p.Rows {
		for i, v := range r.Values() {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(quoteLiteral(v))
		}
		b.WriteString(",\n")
	}
	b.WriteString("]")
	return b.String()
}

// quoteLiteral renders s as a double-quoted Kusto string literal.
func quoteLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
