package save

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"budgetproof/internal/core"
	"budgetproof/internal/report"
)

// ProgressPDF is the PDF-container codec. The document is the regular
// progress report with the full save payload (attachment bytes inlined as
// base64) embedded as a named file, plus a reduced payload in the subject
// metadata for readers that cannot reach embedded files.
type ProgressPDF struct{}

var _ Codec = ProgressPDF{}

// Serialize renders the report and embeds the save payload.
func (ProgressPDF) Serialize(ctx context.Context, s *core.Session) ([]byte, error) {
	if s.Empty() {
		return nil, core.ErrNoExpenses
	}

	st := newState(s)
	for i, slot := range s.Attachments {
		entry := SlotManifest{Index: i + 1}
		if slot.Invoice != nil {
			entry.Invoice = &AttachmentRef{
				Name:     slot.Invoice.Name,
				MimeType: slot.Invoice.MimeType,
				Data:     slot.Invoice.Bytes,
			}
		}
		if slot.Proof != nil {
			entry.Proof = &AttachmentRef{
				Name:     slot.Proof.Name,
				MimeType: slot.Proof.MimeType,
				Data:     slot.Proof.Bytes,
			}
		}
		if entry.Invoice != nil || entry.Proof != nil {
			st.Attachments = append(st.Attachments, entry)
		}
	}
	fullPayload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode save state: %w", err)
	}

	// The subject fallback carries records only; payloads would not fit a
	// metadata string.
	reduced := st
	reduced.Attachments = nil
	subject, err := json.Marshal(reduced)
	if err != nil {
		return nil, fmt.Errorf("encode subject payload: %w", err)
	}

	reportBytes, err := report.Compose(s, report.Metadata{Subject: string(subject)})
	if err != nil {
		return nil, fmt.Errorf("compose progress report: %w", err)
	}

	// api.AddAttachments takes file paths and runs the full
	// read-validate-write cycle; staging the payload under the embedded
	// name keeps the attachment ID stable.
	dir, err := os.MkdirTemp("", "budgetproof-embed")
	if err != nil {
		return nil, fmt.Errorf("stage save state: %w", err)
	}
	defer os.RemoveAll(dir)
	statePath := filepath.Join(dir, EmbeddedStateName)
	if err := os.WriteFile(statePath, fullPayload, 0o600); err != nil {
		return nil, fmt.Errorf("stage save state: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddAttachments(bytes.NewReader(reportBytes), &out, []string{statePath}, false, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("embed save state: %w", err)
	}
	return out.Bytes(), nil
}

// Deserialize restores a session from a progress PDF. The embedded save
// payload is preferred; when only the subject metadata is readable the
// records round-trip but every attachment slot restores empty — an accepted
// degradation, not an error.
func (ProgressPDF) Deserialize(ctx context.Context, data []byte) (*core.Session, error) {
	payload, embedded, err := extractState(data)
	if err != nil {
		return nil, err
	}

	st, err := decodeState(payload, true)
	if err != nil {
		return nil, err
	}

	session := restoreRecords(st)
	if !embedded {
		return session, nil
	}
	for _, entry := range st.Attachments {
		if entry.Index < 1 || entry.Index > session.Len() {
			return nil, fmt.Errorf("save state references expense %d of %d", entry.Index, session.Len())
		}
		slot := &session.Attachments[entry.Index-1]
		if entry.Invoice != nil {
			slot.Invoice = &core.FileRef{Name: entry.Invoice.Name, MimeType: entry.Invoice.MimeType, Bytes: entry.Invoice.Data}
		}
		if entry.Proof != nil {
			slot.Proof = &core.FileRef{Name: entry.Proof.Name, MimeType: entry.Proof.MimeType, Bytes: entry.Proof.Data}
		}
	}
	return session, nil
}

// extractState returns the save payload and whether it came from the
// embedded file (true) or the subject metadata fallback (false).
func extractState(data []byte) ([]byte, bool, error) {
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, false, fmt.Errorf("open progress pdf: %w", err)
	}

	if aa, err := pctx.ExtractAttachments([]string{EmbeddedStateName}); err == nil && len(aa) > 0 && aa[0].Reader != nil {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(aa[0].Reader); err != nil {
			return nil, false, fmt.Errorf("read embedded save state: %w", err)
		}
		return buf.Bytes(), true, nil
	}

	subject, ok := readSubject(data)
	if !ok {
		return nil, false, fmt.Errorf("%w: no embedded %s and no subject payload", core.ErrMissingState, EmbeddedStateName)
	}
	return []byte(subject), false, nil
}

// readSubject pulls the Subject string out of the document info dictionary.
func readSubject(data []byte) (string, bool) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}
	v := r.Trailer().Key("Info").Key("Subject")
	if v.Kind() != pdf.String {
		return "", false
	}
	s := v.Text()
	if s == "" {
		return "", false
	}
	return s, true
}
