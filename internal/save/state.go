// Package save persists and restores a working session. One canonical
// SaveState schema, two container codecs: a zip save-point archive and a
// progress PDF with an embedded save payload.
package save

import (
	"context"
	"encoding/json"
	"fmt"

	"budgetproof/internal/core"
)

const (
	// SchemaVersion is the sole compatibility gate of the wire schema. Any
	// other value is a hard failure; there is no migration logic, so a
	// future format can never be silently misread.
	SchemaVersion = 1

	// SaveKind discriminates budgetproof save payloads from arbitrary JSON
	// found in a container.
	SaveKind = "budgetproof-session"

	// StateEntryName and ReportEntryName are the fixed zip entry names.
	StateEntryName  = "state.json"
	ReportEntryName = "progress-report.pdf"

	// EmbeddedStateName is the fixed filename of the save payload embedded
	// in a progress PDF.
	EmbeddedStateName = "budgetproof-state.json"
)

type (
	// Codec serializes a session into container bytes and back. Both
	// directions are all-or-nothing: Deserialize either returns a complete
	// session or an error, never a partial one.
	Codec interface {
		Serialize(ctx context.Context, s *core.Session) ([]byte, error)
		Deserialize(ctx context.Context, data []byte) (*core.Session, error)
	}

	// SaveState is the canonical wire schema shared by every container.
	SaveState struct {
		Kind            string               `json:"kind"`
		SchemaVersion   int                  `json:"schemaVersion"`
		TemplateVersion int                  `json:"templateVersion"`
		Expenses        []core.ExpenseRecord `json:"expenses"`
		Attachments     []SlotManifest       `json:"attachments,omitempty"`
	}

	// SlotManifest records the attachments of one expense slot. Slots with
	// neither side present get no manifest entry at all.
	SlotManifest struct {
		Index   int            `json:"index"` // 1-based ordinal of the expense record
		Invoice *AttachmentRef `json:"invoice,omitempty"`
		Proof   *AttachmentRef `json:"proof,omitempty"`
	}

	// AttachmentRef references one attachment payload. The zip codec points
	// at a container-relative Path; the PDF codec inlines the bytes as
	// base64 Data. Name and MimeType always round-trip verbatim.
	AttachmentRef struct {
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
		Path     string `json:"path,omitempty"`
		Data     []byte `json:"data,omitempty"`
	}
)

// newState captures the container-independent part of a session.
func newState(s *core.Session) SaveState {
	return SaveState{
		Kind:            SaveKind,
		SchemaVersion:   SchemaVersion,
		TemplateVersion: int(s.Version),
		Expenses:        s.Expenses,
	}
}

// decodeState parses and gate-checks a SaveState payload. requireKind is set
// by the PDF codec, whose payload shares the container with arbitrary
// embedded files.
func decodeState(data []byte, requireKind bool) (SaveState, error) {
	var st SaveState
	if err := json.Unmarshal(data, &st); err != nil {
		return SaveState{}, fmt.Errorf("parse save state: %w", err)
	}
	if requireKind && st.Kind != SaveKind {
		return SaveState{}, fmt.Errorf("%w: %q", core.ErrSaveKind, st.Kind)
	}
	if st.SchemaVersion != SchemaVersion {
		return SaveState{}, fmt.Errorf("%w: %d", core.ErrSchemaVersion, st.SchemaVersion)
	}
	return st, nil
}

// restoreRecords copies only the persisted record fields into a fresh
// session; other state-json fields are informational.
func restoreRecords(st SaveState) *core.Session {
	records := make([]core.ExpenseRecord, len(st.Expenses))
	for i, e := range st.Expenses {
		records[i] = core.ExpenseRecord{
			ID:     e.ID,
			Name:   e.Name,
			Amount: e.Amount,
			Sheet:  e.Sheet,
		}
	}
	return core.NewSession(core.TemplateVersion(st.TemplateVersion), records)
}
