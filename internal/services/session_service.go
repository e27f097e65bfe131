// Package services orchestrates the expense session pipeline: extraction,
// attachment management, report composition, and save/restore through the
// container codecs.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetproof/internal/cache"
	"budgetproof/internal/core"
	applog "budgetproof/internal/log"
	"budgetproof/internal/report"
	"budgetproof/internal/save"
	"budgetproof/internal/workbook"
)

// ErrBusy is returned when a load or save pipeline is already in flight.
// Pipelines never interleave; callers retry once the current one finishes.
var ErrBusy = errors.New("another load or save is in progress")

// ErrUnsupportedType rejects attachment uploads outside the accepted set.
var ErrUnsupportedType = errors.New("unsupported attachment type")

// SessionService owns the single working session. Loads and restores stage
// into a fresh session and swap it in wholesale, so the current session
// survives any failed pipeline untouched.
type SessionService struct {
	gate sync.Mutex // at-most-one in-flight pipeline
	mu   sync.RWMutex
	sess *core.Session
	rev  uint64 // bumped on every session mutation

	savepoint save.Codec
	progress  save.Codec

	// memoizes rendered downloads; keys carry the revision, so entries
	// from older sessions simply age out
	renders *cache.LRUCache[[]byte]
}

func NewSessionService() *SessionService {
	return &SessionService{
		savepoint: save.SavePoint{},
		progress:  save.ProgressPDF{},
		renders:   cache.NewLRUCache[[]byte](8, 10*time.Minute),
	}
}

// acquire claims the pipeline gate without blocking.
func (s *SessionService) acquire() error {
	if !s.gate.TryLock() {
		return ErrBusy
	}
	return nil
}

// LoadBudget extracts expenses from spreadsheet bytes and replaces the
// session. Returns the number of extracted records.
func (s *SessionService) LoadBudget(ctx context.Context, data []byte, version core.TemplateVersion) (int, error) {
	if !version.Valid() {
		return 0, fmt.Errorf("%w: %d", core.ErrUnknownTemplate, version)
	}
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.gate.Unlock()

	sheets, err := workbook.ReadSheets(data)
	if err != nil {
		return 0, fmt.Errorf("load budget: %w", err)
	}
	records, err := workbook.Extract(version, sheets)
	if err != nil {
		return 0, fmt.Errorf("load budget: %w", err)
	}
	next := core.NewSession(version, core.AssignIDs(records))

	s.swap(next)
	slog.InfoContext(ctx, "Budget loaded", applog.FieldComponent, applog.ComponentSession, applog.FieldTemplateVersion, int(version), applog.FieldExpenses, next.Len())
	return next.Len(), nil
}

// RestoreSavePoint replaces the session from a zip save-point archive.
func (s *SessionService) RestoreSavePoint(ctx context.Context, data []byte) (int, error) {
	return s.restore(ctx, data, s.savepoint, "save-point")
}

// RestoreProgressPDF replaces the session from a progress PDF.
func (s *SessionService) RestoreProgressPDF(ctx context.Context, data []byte) (int, error) {
	return s.restore(ctx, data, s.progress, "progress-pdf")
}

func (s *SessionService) restore(ctx context.Context, data []byte, codec save.Codec, kind string) (int, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.gate.Unlock()

	next, err := codec.Deserialize(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", kind, err)
	}
	s.swap(next)
	slog.InfoContext(ctx, "Session restored", applog.FieldComponent, applog.ComponentSession, applog.FieldContainer, kind, applog.FieldExpenses, next.Len())
	return next.Len(), nil
}

// Report renders the progress report for download.
func (s *SessionService) Report(ctx context.Context) ([]byte, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.gate.Unlock()

	sess, rev := s.currentRev()
	if sess.Empty() {
		return nil, core.ErrNoExpenses
	}
	key := renderKey("report", rev)
	if out, ok := s.renders.Get(key); ok {
		return out, nil
	}
	out, err := report.Compose(sess, report.Metadata{})
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	s.renders.Set(key, out)
	return out, nil
}

// SavePoint serializes the session into a zip archive for download.
func (s *SessionService) SavePoint(ctx context.Context) ([]byte, error) {
	return s.serialize(ctx, s.savepoint, "save-point")
}

// ProgressPDF serializes the session into a progress PDF for download.
func (s *SessionService) ProgressPDF(ctx context.Context) ([]byte, error) {
	return s.serialize(ctx, s.progress, "progress-pdf")
}

func (s *SessionService) serialize(ctx context.Context, codec save.Codec, kind string) ([]byte, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.gate.Unlock()

	sess, rev := s.currentRev()
	if sess.Empty() {
		return nil, core.ErrNoExpenses
	}
	key := renderKey(kind, rev)
	if out, ok := s.renders.Get(key); ok {
		return out, nil
	}
	out, err := codec.Serialize(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", kind, err)
	}
	s.renders.Set(key, out)
	return out, nil
}

func renderKey(kind string, rev uint64) string {
	return fmt.Sprintf("%s@%d", kind, rev)
}

// Attach stores (or clears, with a nil ref) an attachment on slot i. It
// claims the pipeline gate: render and serialize walk the live session's
// slots, so slot writes must not interleave with them.
func (s *SessionService) Attach(ctx context.Context, i int, side string, f *core.FileRef) error {
	if f != nil {
		switch f.MimeType {
		case report.MimePDF, report.MimePNG, report.MimeJPEG:
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedType, f.MimeType)
		}
	}

	if err := s.acquire(); err != nil {
		return err
	}
	defer s.gate.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return core.ErrNoExpenses
	}
	var err error
	switch side {
	case "proof":
		err = s.sess.AttachProof(i, f)
	default:
		err = s.sess.AttachInvoice(i, f)
	}
	if err != nil {
		return err
	}
	s.rev++
	slog.DebugContext(ctx, "Attachment updated", applog.FieldComponent, applog.ComponentSession, applog.FieldSlot, i, applog.FieldSide, side, applog.FieldAttached, f != nil)
	return nil
}

// Clear drops the session and any renders memoized for it.
func (s *SessionService) Clear() {
	s.swap(nil)
	s.renders.Purge()
}

func (s *SessionService) swap(next *core.Session) {
	s.mu.Lock()
	s.sess = next
	s.rev++
	s.mu.Unlock()
}

// currentRev returns the live session and its revision. Pipeline callers
// hold the gate, so the session cannot be swapped out from under them.
func (s *SessionService) currentRev() (*core.Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess, s.rev
}

// SlotView is the read-only listing shape consumed by the UI.
type SlotView struct {
	Record  core.ExpenseRecord `json:"record"`
	Facets  core.NameFacets    `json:"facets"`
	Amount  string             `json:"amount"`
	Invoice string             `json:"invoice,omitempty"`
	Proof   string             `json:"proof,omitempty"`
}

// Snapshot lists the current records with attachment filenames.
func (s *SessionService) Snapshot() []SlotView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil
	}
	views := make([]SlotView, s.sess.Len())
	for i, e := range s.sess.Expenses {
		v := SlotView{
			Record: e,
			Facets: core.DecomposeName(e.Name),
			Amount: report.FormatUSD(e.Amount),
		}
		if inv := s.sess.Attachments[i].Invoice; inv != nil {
			v.Invoice = inv.Name
		}
		if p := s.sess.Attachments[i].Proof; p != nil {
			v.Proof = p.Name
		}
		views[i] = v
	}
	return views
}
