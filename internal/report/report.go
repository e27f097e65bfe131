// Package report composes the progress-report PDF: one detail section per
// expense record, each followed by the invoice and proof-of-payment content
// (or an explicit placeholder page), preserving record order.
package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/page"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	appcore "budgetproof/internal/core"
)

// DocumentTitle is the PDF title metadata of every generated report.
const DocumentTitle = "Budget progress report"

// MimePDF/MimePNG/MimeJPEG are the accepted attachment content types.
const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// Metadata is optional document metadata set by the caller; the progress-PDF
// codec uses Subject to carry its reduced save payload.
type Metadata struct {
	Subject string
}

// Compose renders the session into a single PDF. For every record in order it
// emits the detail page, then the invoice content or placeholder, then the
// proof content or placeholder. Uploaded PDF attachments contribute their own
// pages; images are drawn centered under a caption.
func Compose(s *appcore.Session, meta Metadata) ([]byte, error) {
	if s.Empty() {
		return nil, appcore.ErrNoExpenses
	}

	b := newBuilder(meta)
	for i, exp := range s.Expenses {
		n := i + 1
		b.addDetailPage(n, exp)

		slot := s.Attachments[i]
		if err := b.addAttachment(n, "invoice", slot.Invoice); err != nil {
			return nil, fmt.Errorf("expense %d invoice: %w", n, err)
		}
		if err := b.addAttachment(n, "proof", slot.Proof); err != nil {
			return nil, fmt.Errorf("expense %d proof: %w", n, err)
		}
	}
	return b.bytes()
}

// builder accumulates maroto pages and flushes them into raw PDF segments
// whenever an uploaded PDF has to be spliced in; the segments are merged at
// the end. Keeping a single maroto document per run preserves page order
// without re-encoding attachment pages.
type builder struct {
	meta     Metadata
	current  core.Maroto
	dirty    bool
	segments [][]byte
}

func newBuilder(meta Metadata) *builder {
	return &builder{meta: meta, current: newDocument(meta)}
}

func newDocument(meta Metadata) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithOrientation(orientation.Vertical).
		WithLeftMargin(10).
		WithTopMargin(15).
		WithRightMargin(10).
		WithBottomMargin(10).
		WithTitle(DocumentTitle, true).
		WithSubject(meta.Subject, true).
		Build()
	return maroto.New(cfg)
}

func (b *builder) addDetailPage(n int, exp appcore.ExpenseRecord) {
	name := exp.Name
	if strings.TrimSpace(name) == "" {
		name = "(unnamed)"
	}
	facets := appcore.DecomposeName(exp.Name)

	b.dirty = true
	rows := []core.Row{
		row.New(12).Add(
			text.NewCol(12, fmt.Sprintf("Expense %d", n), props.Text{
				Size:  16,
				Style: fontstyle.Bold,
			}),
		),
		row.New(4).Add(line.NewCol(12)),
		labelRow("Name", name),
		labelRow("Category", facets.Category),
		labelRow("Sub-category", facets.SubCategory),
		labelRow("Project phase", facets.Phase),
		labelRow("Details", facets.Details),
		labelRow("Amount", FormatUSD(exp.Amount)),
		labelRow("Sheet", exp.Sheet),
	}
	b.current.AddPages(page.New().Add(rows...))
}

func labelRow(label, value string) core.Row {
	return row.New(10).Add(
		text.NewCol(3, label, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
		}),
		text.NewCol(9, value, props.Text{
			Size: 10,
		}),
	)
}

func (b *builder) addAttachment(n int, side string, f *appcore.FileRef) error {
	if f == nil {
		b.addPlaceholderPage(fmt.Sprintf("Expense %d: no %s uploaded.", n, side))
		return nil
	}
	switch f.MimeType {
	case MimePDF:
		return b.appendPDF(f.Bytes)
	case MimePNG:
		b.addImagePage(captionFor(n, side), f.Bytes, extension.Png)
		return nil
	case MimeJPEG:
		b.addImagePage(captionFor(n, side), f.Bytes, extension.Jpg)
		return nil
	default:
		return fmt.Errorf("unsupported attachment type %q", f.MimeType)
	}
}

func captionFor(n int, side string) string {
	if side == "proof" {
		return fmt.Sprintf("Proof of payment for expense %d", n)
	}
	return fmt.Sprintf("Invoice for expense %d", n)
}

func (b *builder) addPlaceholderPage(message string) {
	b.dirty = true
	b.current.AddPages(page.New().Add(
		row.New(10).Add(
			text.NewCol(12, message, props.Text{Size: 12}),
		),
	))
}

// addImagePage draws the image centered on its own page, scaled to fit while
// keeping its aspect ratio, with the caption above it.
func (b *builder) addImagePage(caption string, data []byte, ext extension.Type) {
	b.dirty = true
	b.current.AddPages(page.New().Add(
		row.New(10).Add(
			text.NewCol(12, caption, props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Align: align.Center,
			}),
		),
		row.New(4),
		row.New(200).Add(
			col.New(12).Add(
				image.NewFromBytes(data, ext, props.Rect{
					Center:  true,
					Percent: 100,
				}),
			),
		),
	))
}

// appendPDF flushes the maroto document built so far and splices the uploaded
// PDF's pages in as the next segment.
func (b *builder) appendPDF(data []byte) error {
	if err := b.flush(); err != nil {
		return err
	}
	b.segments = append(b.segments, data)
	b.current = newDocument(b.meta)
	b.dirty = false
	return nil
}

func (b *builder) flush() error {
	if !b.dirty {
		return nil
	}
	doc, err := b.current.Generate()
	if err != nil {
		return fmt.Errorf("render pages: %w", err)
	}
	b.segments = append(b.segments, doc.GetBytes())
	b.dirty = false
	return nil
}

func (b *builder) bytes() ([]byte, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	if len(b.segments) == 1 {
		return b.segments[0], nil
	}
	readers := make([]io.ReadSeeker, len(b.segments))
	for i, seg := range b.segments {
		readers[i] = bytes.NewReader(seg)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("merge attachment pages: %w", err)
	}
	return out.Bytes(), nil
}

// FormatUSD renders an amount the way the session table shows it:
// dollar sign, thousands separators, two decimals, minus sign leading.
func FormatUSD(amount float64) string {
	neg := math.Signbit(amount)
	str := fmt.Sprintf("%.2f", math.Abs(amount))
	parts := strings.Split(str, ".")

	intPart := parts[0]
	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteRune(',')
		}
		grouped.WriteRune(digit)
	}

	out := "$" + grouped.String() + "." + parts[1]
	if neg {
		return "-" + out
	}
	return out
}
