package core

import (
	"strconv"
	"strings"
)

// idSeparator delimits the fields of a record identifier. It never occurs in
// sheet names and is unlikely enough in expense names that collisions fall
// back to the occurrence counter anyway.
const idSeparator = "||"

// AssignIDs derives a stable identifier for every record in place and returns
// the slice. Records sharing the same (sheet, name, amount) tuple get a
// 1-based occurrence suffix, so exact duplicate rows stay distinguishable
// while re-extracting the same spreadsheet reproduces identical ids. The
// persistence codecs rely on that determinism for round-trip identity.
func AssignIDs(records []ExpenseRecord) []ExpenseRecord {
	seen := make(map[string]int, len(records))
	for i := range records {
		base := strings.Join([]string{
			records[i].Sheet,
			records[i].Name,
			strconv.FormatFloat(records[i].Amount, 'f', -1, 64),
		}, idSeparator)
		seen[base]++
		records[i].ID = base + idSeparator + strconv.Itoa(seen[base])
	}
	return records
}
