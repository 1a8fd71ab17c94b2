package core

// Diff is the outcome of reconciling candidate records against the persisted
// table contents.
type Diff struct {
	// Rows are the records to write. With Replace they are the full candidate
	// set; otherwise only the records missing from the table.
	Rows []Record `json:"rows"`

	// Replace is true when the table must be rewritten from scratch.
	Replace bool `json:"replace"`

	// Added counts candidate records absent from the table.
	Added int `json:"added"`

	// Stale counts persisted records absent from the candidate set.
	Stale int `json:"stale"`
}

// Reconcile decides what to write so the table matches candidate.
//
// The destination can only append rows or replace its full contents. An
// append is enough when every persisted record still appears among the
// candidates. If even one persisted record is gone (removed, or changed,
// which looks like a removal plus an addition) the whole candidate set is
// written with Replace. force skips the comparison and always replaces.
//
// Duplicate candidates collapse to their first occurrence.
func Reconcile(candidate, persisted []Record, force bool) Diff {
	candidate = Dedupe(candidate)

	if force {
		return Diff{
			Rows:    candidate,
			Replace: true,
			Added:   len(candidate),
		}
	}

	persistedSet := NewRecordSet(persisted)
	candidateSet := NewRecordSet(candidate)

	added := Subtract(candidate, persistedSet)
	stale := len(Subtract(Dedupe(persisted), candidateSet))

	if stale == 0 {
		return Diff{
			Rows:  added,
			Added: len(added),
		}
	}

	return Diff{
		Rows:    candidate,
		Replace: true,
		Added:   len(added),
		Stale:   stale,
	}
}
