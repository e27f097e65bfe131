package core

// Session is the aggregate root for one working set of expenses: the ordered
// records extracted from a budget spreadsheet plus a parallel attachment slot
// per record. Record order is stable and defines both display order and
// detail-page order in every generated document.
//
// A Session is never merged: loads and restores build a fresh Session and the
// caller swaps it in wholesale only on full success, so a failed load leaves
// the previous session untouched.
type Session struct {
	Version     TemplateVersion
	Expenses    []ExpenseRecord
	Attachments []AttachmentSlot
}

// NewSession builds a session around extracted records, allocating one empty
// attachment slot per record.
func NewSession(version TemplateVersion, records []ExpenseRecord) *Session {
	return &Session{
		Version:     version,
		Expenses:    records,
		Attachments: make([]AttachmentSlot, len(records)),
	}
}

// Len returns the number of expense records.
func (s *Session) Len() int {
	return len(s.Expenses)
}

// Empty reports whether the session holds no records.
func (s *Session) Empty() bool {
	return s == nil || len(s.Expenses) == 0
}

// AttachInvoice sets (or clears, with nil) the invoice for the record at
// index i.
func (s *Session) AttachInvoice(i int, f *FileRef) error {
	if i < 0 || i >= len(s.Attachments) {
		return ErrSlotOutOfRange
	}
	s.Attachments[i].Invoice = f
	return nil
}

// AttachProof sets (or clears, with nil) the proof of payment for the record
// at index i.
func (s *Session) AttachProof(i int, f *FileRef) error {
	if i < 0 || i >= len(s.Attachments) {
		return ErrSlotOutOfRange
	}
	s.Attachments[i].Proof = f
	return nil
}

// Slot returns the attachment slot for the record at index i.
func (s *Session) Slot(i int) (AttachmentSlot, error) {
	if i < 0 || i >= len(s.Attachments) {
		return AttachmentSlot{}, ErrSlotOutOfRange
	}
	return s.Attachments[i], nil
}
