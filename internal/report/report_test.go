package report

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	"budgetproof/internal/core"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{1200, "$1,200.00"},
		{1234567.5, "$1,234,567.50"},
		{0.01, "$0.01"},
		{-500, "-$500.00"},
		{0, "$0.00"},
	}
	for _, tc := range cases {
		if got := FormatUSD(tc.in); got != tc.out {
			t.Fatalf("FormatUSD(%v) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestComposeEmptySession(t *testing.T) {
	_, err := Compose(core.NewSession(core.TemplateV1Generic, nil), Metadata{})
	if !errors.Is(err, core.ErrNoExpenses) {
		t.Fatalf("expected ErrNoExpenses, got %v", err)
	}
}

func TestComposeProducesPDF(t *testing.T) {
	records := core.AssignIDs([]core.ExpenseRecord{
		{Name: "Travel - Lodging - 1", Amount: 1200, Sheet: "Expenses"},
		{Name: "Ops", Amount: 9.99, Sheet: "Expenses"},
	})
	s := core.NewSession(core.TemplateV1Generic, records)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := s.AttachInvoice(0, &core.FileRef{Name: "inv.png", MimeType: MimePNG, Bytes: img.Bytes()}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	out, err := Compose(s, Metadata{Subject: "test"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not look like a pdf")
	}
}

func TestComposeRejectsUnknownAttachmentType(t *testing.T) {
	records := core.AssignIDs([]core.ExpenseRecord{{Name: "X", Amount: 1, Sheet: "S"}})
	s := core.NewSession(core.TemplateV1Generic, records)
	_ = s.AttachInvoice(0, &core.FileRef{Name: "x.gif", MimeType: "image/gif", Bytes: []byte{1}})

	if _, err := Compose(s, Metadata{}); err == nil {
		t.Fatalf("expected error for unsupported attachment type")
	}
}
