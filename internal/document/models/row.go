package models

// Row is one tabular record of a spreadsheet document: a mapping from column
// name to cell value. All rows of one document share the same column set; the
// ordered column list lives alongside the rows in the tabular model, not on
// each row.
type Row map[string]string

// CloneRow copies a row so edits never alias stored state.
func CloneRow(r Row) Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// BlankRow builds a row with every column set to the empty string.
func BlankRow(columns []string) Row {
	r := make(Row, len(columns))
	for _, c := range columns {
		r[c] = ""
	}
	return r
}
