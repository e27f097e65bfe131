package core

import "errors"

const (
	// TemplateV1Generic is the column-position-agnostic layout with a single
	// "Expenses" sheet located by header sniffing.
	TemplateV1Generic TemplateVersion = 1
	// TemplateV2SplitSheets is the fixed layout with separate personnel and
	// non-personnel sheets.
	TemplateV2SplitSheets TemplateVersion = 2
)

type (
	// TemplateVersion selects a spreadsheet layout convention. It is chosen
	// explicitly by the user, never auto-detected.
	TemplateVersion int

	// ExpenseRecord is one normalized expense extracted from a budget
	// spreadsheet. Fields are immutable after extraction or restore.
	ExpenseRecord struct {
		ID     string  `json:"id"`
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
		Sheet  string  `json:"sheet"`
	}

	// FileRef is an uploaded supporting document held in memory.
	FileRef struct {
		Name     string
		MimeType string
		Bytes    []byte
	}

	// AttachmentSlot pairs the optional invoice and proof-of-payment for the
	// expense record at the same ordinal position.
	AttachmentSlot struct {
		Invoice *FileRef
		Proof   *FileRef
	}
)

var (
	ErrNoExpenses      = errors.New("no expenses loaded")
	ErrSlotOutOfRange  = errors.New("expense index out of range")
	ErrUnknownTemplate = errors.New("unknown template version")

	ErrSchemaVersion = errors.New("unsupported save schema version")
	ErrMissingState  = errors.New("save state not found in container")
	ErrSaveKind      = errors.New("unexpected save payload kind")
)

func (v TemplateVersion) Valid() bool {
	return v == TemplateV1Generic || v == TemplateV2SplitSheets
}
