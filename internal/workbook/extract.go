// Package workbook turns budget spreadsheets into expense records. Cell
// decoding is delegated to excelize; everything above the raw row matrix
// (template layouts, header sniffing, amount filtering) lives here.
package workbook

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"budgetproof/internal/core"
)

// Sheets is a workbook reduced to named row matrices, as produced by
// ReadSheets. Tests construct it directly.
type Sheets map[string][][]string

// Sheet names and layout constants for the two supported template versions.
const (
	SheetPersonnel    = "Personnel_Expenses"
	SheetNonPersonnel = "NonPersonnel_Expenses"
	SheetGeneric      = "Expenses"
)

// fixedLayout describes a template section with hardcoded geometry: a header
// block to skip, a run of leading name columns, and one amount column.
//
// The v1 fallback and the v2 personnel layout share the same skip offset by
// legacy coincidence; they are configured independently on purpose.
type fixedLayout struct {
	skipRows  int
	nameCols  int
	amountCol int
}

var (
	layoutPersonnel    = fixedLayout{skipRows: 6, nameCols: 6, amountCol: 6}
	layoutNonPersonnel = fixedLayout{skipRows: 6, nameCols: 3, amountCol: 9}
	layoutV1Fallback   = fixedLayout{skipRows: 6, nameCols: 10, amountCol: 10}
)

// ReadSheets decodes workbook bytes into named row matrices.
func ReadSheets(data []byte) (Sheets, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := make(Sheets)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets[name] = rows
	}
	return sheets, nil
}

// Extract turns raw sheets into expense records for the given template
// version. Records come back without ids; the caller runs core.AssignIDs.
// Rows whose amount normalizes to 0 are dropped: zero is indistinguishable
// from "no expense" and this is the only filtering rule.
func Extract(version core.TemplateVersion, sheets Sheets) ([]core.ExpenseRecord, error) {
	switch version {
	case core.TemplateV2SplitSheets:
		records := extractFixed(SheetPersonnel, layoutPersonnel, sheets[SheetPersonnel])
		records = append(records, extractFixed(SheetNonPersonnel, layoutNonPersonnel, sheets[SheetNonPersonnel])...)
		return records, nil
	case core.TemplateV1Generic:
		name := findGenericSheet(sheets)
		return extractGeneric(name, sheets[name]), nil
	default:
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownTemplate, version)
	}
}

// findGenericSheet matches the expenses sheet case- and
// whitespace-insensitively, falling back to the literal name.
func findGenericSheet(sheets Sheets) string {
	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), SheetGeneric) {
			return name
		}
	}
	return SheetGeneric
}

func extractGeneric(sheet string, rows [][]string) []core.ExpenseRecord {
	header, ok := DetectHeader(rows)
	if !ok {
		return extractFixed(sheet, layoutV1Fallback, rows)
	}
	amountCol, ok := header.Columns[RoleAmount]
	if !ok {
		return extractFixed(sheet, layoutV1Fallback, rows)
	}

	var records []core.ExpenseRecord
	for i := header.RowIndex + 1; i < len(rows); i++ {
		row := rows[i]
		amount := core.NormalizeAmount(cell(row, amountCol))
		if amount == 0 {
			continue
		}
		var parts []string
		for _, role := range namePreference {
			col, ok := header.Columns[role]
			if !ok {
				continue
			}
			parts = append(parts, cell(row, col))
		}
		records = append(records, core.ExpenseRecord{
			Name:   core.ComposeName(parts),
			Amount: amount,
			Sheet:  sheet,
		})
	}
	return records
}

func extractFixed(sheet string, layout fixedLayout, rows [][]string) []core.ExpenseRecord {
	var records []core.ExpenseRecord
	for i := layout.skipRows; i < len(rows); i++ {
		row := rows[i]
		amount := core.NormalizeAmount(cell(row, layout.amountCol))
		if amount == 0 {
			continue
		}
		parts := make([]string, 0, layout.nameCols)
		for j := 0; j < layout.nameCols; j++ {
			parts = append(parts, cell(row, j))
		}
		records = append(records, core.ExpenseRecord{
			Name:   core.ComposeName(parts),
			Amount: amount,
			Sheet:  sheet,
		})
	}
	return records
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
