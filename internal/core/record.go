package core

// Record is one (version, component, image, environment) mapping.
//
// Record is a comparable value: two records are equal exactly when all four
// fields are equal, so it is used directly as a map key for set operations.
type Record struct {
	OsVersion   string `json:"osVersion"`
	ComponentID string `json:"componentId"`
	ImageID     string `json:"imageId"`
	Environment string `json:"environment"`
}

// Column names as stored in the destination table.
const (
	ColumnOsVersion   = "OsVersion"
	ColumnEnvironment = "Environment"
	ColumnComponentID = "ComponentId"
	ColumnImageID     = "ImageId"
)

// Columns lists the destination columns in table order.
var Columns = []string{ColumnOsVersion, ColumnEnvironment, ColumnComponentID, ColumnImageID}

// Values returns the record fields in Columns order.
func (r Record) Values() []string {
	return []string{r.OsVersion, r.Environment, r.ComponentID, r.ImageID}
}

// RecordSet is an unordered set of records.
type RecordSet map[Record]struct{}

// NewRecordSet builds a set from records. Duplicates collapse.
func NewRecordSet(records []Record) RecordSet {
	set := make(RecordSet, len(records))
	for _, r := range records {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is in the set.
func (s RecordSet) Contains(r Record) bool {
	_, ok := s[r]
	return ok
}

// Dedupe drops exact duplicates, keeping the first occurrence of each record
// and the original order otherwise.
func Dedupe(records []Record) []Record {
	seen := make(RecordSet, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if seen.Contains(r) {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Subtract returns the records of a that are not present in b, in a's order.
func Subtract(a []Record, b RecordSet) []Record {
	var out []Record
	for _, r := range a {
		if !b.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// RecordFromFields builds a Record from a column-name keyed row.
// Unknown columns are ignored; a missing column is an error.
func RecordFromFields(fields map[string]string) (Record, error) {
	var r Record
	for _, col := range Columns {
		v, ok := fields[col]
		if !ok {
			return Record{}, &MissingColumnError{Column: col}
		}
		switch col {
		case ColumnOsVersion:
			r.OsVersion = v
		case ColumnEnvironment:
			r.Environment = v
		case ColumnComponentID:
			r.ComponentID = v
		case ColumnImageID:
			r.ImageID = v
		}
	}
	return r, nil
}

// MissingColumnError reports a persisted row that lacks a required column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return "missing column " + e.Column
}
