package workbook

import "strings"

// Role is a semantic column in a budget sheet whose position is discovered at
// load time rather than fixed by the template.
type Role string

const (
	RoleCategory    Role = "category"
	RoleSubCategory Role = "sub-category"
	RolePhase       Role = "phase"
	RoleVendor      Role = "vendor"
	RoleItem        Role = "item"
	RoleAmount      Role = "amount"
	RoleInvoiceRef  Role = "invoice-ref"
	RoleInvoiceDate Role = "invoice-date"
	RoleTxnType     Role = "transaction-type"
	RoleCheck       Role = "check"
)

// rolePhrases maps each role to the lower-cased phrases that identify its
// column by substring containment. The first six are mandatory; a row
// qualifies as the header when at least minHeaderMatches of them are present.
var rolePhrases = []struct {
	role      Role
	phrases   []string
	mandatory bool
}{
	{RoleCategory, []string{"budget category"}, true},
	{RoleSubCategory, []string{"sub-category"}, true},
	{RolePhase, []string{"project phase"}, true},
	{RoleVendor, []string{"vendor"}, true},
	{RoleItem, []string{"item"}, true},
	{RoleAmount, []string{"amount"}, true},
	{RoleInvoiceRef, []string{"invoice"}, false},
	{RoleInvoiceDate, []string{"invoice date"}, false},
	{RoleTxnType, []string{"transaction"}, false},
	{RoleCheck, []string{"check", "voucher"}, false},
}

const minHeaderMatches = 3

// namePreference is the fixed order in which role columns contribute to a
// composed expense name. The amount column is deliberately absent.
var namePreference = []Role{
	RoleCategory, RoleSubCategory, RolePhase, RoleVendor, RoleItem,
	RoleInvoiceRef, RoleInvoiceDate, RoleTxnType, RoleCheck,
}

// Header locates the header row of a loosely-formatted sheet and maps roles
// to column indices.
type Header struct {
	RowIndex int
	Columns  map[Role]int
}

// DetectHeader scans rows top-down and returns the first row where enough
// mandatory role phrases appear as substrings of some cell. First qualifying
// row wins; within a row, the last cell matching a role keeps that role's
// column. The second return value is false when no row qualifies and the
// caller should fall back to a fixed layout.
func DetectHeader(rows [][]string) (Header, bool) {
	for i, row := range rows {
		columns := make(map[Role]int)
		mandatory := 0
		for j, cell := range row {
			cell = strings.ToLower(strings.TrimSpace(cell))
			if cell == "" {
				continue
			}
			for _, rp := range rolePhrases {
				for _, phrase := range rp.phrases {
					if !strings.Contains(cell, phrase) {
						continue
					}
					if _, seen := columns[rp.role]; !seen && rp.mandatory {
						mandatory++
					}
					columns[rp.role] = j // last match wins per role
					break
				}
			}
		}
		if mandatory >= minHeaderMatches {
			return Header{RowIndex: i, Columns: columns}, true
		}
	}
	return Header{}, false
}
