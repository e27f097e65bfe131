package save

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"golang.org/x/sync/errgroup"

	"budgetproof/internal/core"
	"budgetproof/internal/report"
)

// SavePoint is the zip-container codec. The archive carries state.json, the
// rendered progress report, and one entry per present attachment under
// attachments/<n>/.
type SavePoint struct{}

var _ Codec = SavePoint{}

// entryNameUnsafe matches anything that could turn an uploaded filename into
// a hostile archive path.
var entryNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.\-() ]`)

func sanitizeEntryName(name string) string {
	return entryNameUnsafe.ReplaceAllString(name, "_")
}

func invoicePath(n int, name string) string {
	return fmt.Sprintf("attachments/%d/invoice_%s", n, sanitizeEntryName(name))
}

func proofPath(n int, name string) string {
	return fmt.Sprintf("attachments/%d/proof_%s", n, sanitizeEntryName(name))
}

// Serialize writes the session into a fresh archive. Entries are written in
// manifest order so identical sessions produce identical layouts.
func (SavePoint) Serialize(ctx context.Context, s *core.Session) ([]byte, error) {
	if s.Empty() {
		return nil, core.ErrNoExpenses
	}

	reportBytes, err := report.Compose(s, report.Metadata{})
	if err != nil {
		return nil, fmt.Errorf("compose progress report: %w", err)
	}

	st := newState(s)
	for i, slot := range s.Attachments {
		n := i + 1
		entry := SlotManifest{Index: n}
		if slot.Invoice != nil {
			entry.Invoice = &AttachmentRef{
				Name:     slot.Invoice.Name,
				MimeType: slot.Invoice.MimeType,
				Path:     invoicePath(n, slot.Invoice.Name),
			}
		}
		if slot.Proof != nil {
			entry.Proof = &AttachmentRef{
				Name:     slot.Proof.Name,
				MimeType: slot.Proof.MimeType,
				Path:     proofPath(n, slot.Proof.Name),
			}
		}
		if entry.Invoice != nil || entry.Proof != nil {
			st.Attachments = append(st.Attachments, entry)
		}
	}

	stateJSON, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode save state: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeEntry := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("create archive entry %q: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write archive entry %q: %w", name, err)
		}
		return nil
	}

	if err := writeEntry(StateEntryName, stateJSON); err != nil {
		return nil, err
	}
	if err := writeEntry(ReportEntryName, reportBytes); err != nil {
		return nil, err
	}
	for i, slot := range s.Attachments {
		n := i + 1
		if slot.Invoice != nil {
			if err := writeEntry(invoicePath(n, slot.Invoice.Name), slot.Invoice.Bytes); err != nil {
				return nil, err
			}
		}
		if slot.Proof != nil {
			if err := writeEntry(proofPath(n, slot.Proof.Name), slot.Proof.Bytes); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Deserialize rebuilds a session from archive bytes. It stages everything
// into a fresh session and only returns it on full success, so a failed load
// can never leave the caller with a half-restored state.
func (SavePoint) Deserialize(ctx context.Context, data []byte) (*core.Session, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open save-point archive: %w", err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	stateFile, ok := entries[StateEntryName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingState, StateEntryName)
	}
	stateJSON, err := readEntry(stateFile)
	if err != nil {
		return nil, err
	}
	st, err := decodeState(stateJSON, false)
	if err != nil {
		return nil, err
	}

	session := restoreRecords(st)

	// Slots are independent, so payload extraction fans out per entry.
	// Each goroutine writes only its own slot.
	g, _ := errgroup.WithContext(ctx)
	for _, entry := range st.Attachments {
		if entry.Index < 1 || entry.Index > session.Len() {
			return nil, fmt.Errorf("save state references expense %d of %d", entry.Index, session.Len())
		}
		slot := &session.Attachments[entry.Index-1]
		invoice, proof := entry.Invoice, entry.Proof
		g.Go(func() error {
			if invoice != nil {
				ref, err := readAttachment(entries, invoice)
				if err != nil {
					return err
				}
				slot.Invoice = ref
			}
			if proof != nil {
				ref, err := readAttachment(entries, proof)
				if err != nil {
					return err
				}
				slot.Proof = ref
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return session, nil
}

func readAttachment(entries map[string]*zip.File, ref *AttachmentRef) (*core.FileRef, error) {
	f, ok := entries[ref.Path]
	if !ok {
		return nil, fmt.Errorf("attachment entry %q missing from archive", ref.Path)
	}
	payload, err := readEntry(f)
	if err != nil {
		return nil, err
	}
	return &core.FileRef{Name: ref.Name, MimeType: ref.MimeType, Bytes: payload}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %q: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read archive entry %q: %w", f.Name, err)
	}
	return data, nil
}
