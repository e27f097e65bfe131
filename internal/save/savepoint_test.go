package save

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"reflect"
	"testing"

	"budgetproof/internal/core"
)

func pngFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

func testSession(t *testing.T) *core.Session {
	t.Helper()
	records := core.AssignIDs([]core.ExpenseRecord{
		{Name: "Travel - Lodging - 1 - Acme Hotels", Amount: 1200, Sheet: "Expenses"},
		{Name: "Equipment - Laptops", Amount: -350.75, Sheet: "Expenses"},
		{Name: "Ops - Hosting", Amount: 42, Sheet: "Expenses"},
	})
	s := core.NewSession(core.TemplateV1Generic, records)
	if err := s.AttachInvoice(0, &core.FileRef{Name: "hotel invoice #1.png", MimeType: "image/png", Bytes: pngFixture(t)}); err != nil {
		t.Fatalf("attach invoice: %v", err)
	}
	if err := s.AttachProof(1, &core.FileRef{Name: "wire.jpeg", MimeType: "image/jpeg", Bytes: jpegFixture(t)}); err != nil {
		t.Fatalf("attach proof: %v", err)
	}
	return s
}

func TestSavePointRoundTrip(t *testing.T) {
	src := testSession(t)
	codec := SavePoint{}

	blob, err := codec.Serialize(context.Background(), src)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := codec.Deserialize(context.Background(), blob)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if got.Version != src.Version {
		t.Fatalf("template version = %d, want %d", got.Version, src.Version)
	}
	if !reflect.DeepEqual(got.Expenses, src.Expenses) {
		t.Fatalf("records differ:\n got %v\nwant %v", got.Expenses, src.Expenses)
	}
	inv := got.Attachments[0].Invoice
	if inv == nil || inv.Name != "hotel invoice #1.png" || inv.MimeType != "image/png" {
		t.Fatalf("invoice ref = %+v", inv)
	}
	if !bytes.Equal(inv.Bytes, src.Attachments[0].Invoice.Bytes) {
		t.Fatalf("invoice payload not byte-identical")
	}
	proof := got.Attachments[1].Proof
	if proof == nil || !bytes.Equal(proof.Bytes, src.Attachments[1].Proof.Bytes) {
		t.Fatalf("proof payload not restored")
	}
	if got.Attachments[0].Proof != nil || got.Attachments[1].Invoice != nil {
		t.Fatalf("absent sides must stay empty")
	}
	if got.Attachments[2].Invoice != nil || got.Attachments[2].Proof != nil {
		t.Fatalf("untouched slot must restore empty")
	}
}

func TestSavePointArchiveLayout(t *testing.T) {
	blob, err := SavePoint{}.Serialize(context.Background(), testSession(t))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{
		StateEntryName,
		ReportEntryName,
		"attachments/1/invoice_hotel invoice _1.png", // '#' sanitized
		"attachments/2/proof_wire.jpeg",
	} {
		if !names[want] {
			t.Fatalf("archive missing entry %q, have %v", want, names)
		}
	}

	stateFile, err := zr.Open(StateEntryName)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	defer stateFile.Close()
	var st SaveState
	if err := json.NewDecoder(stateFile).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.SchemaVersion != SchemaVersion || st.TemplateVersion != 1 {
		t.Fatalf("state header = %+v", st)
	}
	if len(st.Attachments) != 2 {
		t.Fatalf("manifest should only list non-empty slots, got %v", st.Attachments)
	}
}

func TestSavePointMissingState(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("unrelated.txt")
	_, _ = w.Write([]byte("nope"))
	_ = zw.Close()

	_, err := SavePoint{}.Deserialize(context.Background(), buf.Bytes())
	if !errors.Is(err, core.ErrMissingState) {
		t.Fatalf("expected ErrMissingState, got %v", err)
	}
}

func TestSavePointSchemaVersionGate(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create(StateEntryName)
	_, _ = w.Write([]byte(`{"kind":"budgetproof-session","schemaVersion":2,"expenses":[]}`))
	_ = zw.Close()

	_, err := SavePoint{}.Deserialize(context.Background(), buf.Bytes())
	if !errors.Is(err, core.ErrSchemaVersion) {
		t.Fatalf("expected ErrSchemaVersion, got %v", err)
	}
}

func TestSavePointRejectsGarbage(t *testing.T) {
	if _, err := (SavePoint{}).Deserialize(context.Background(), []byte("not a zip")); err == nil {
		t.Fatalf("expected error for non-archive input")
	}
}

func TestSavePointEmptySession(t *testing.T) {
	_, err := SavePoint{}.Serialize(context.Background(), core.NewSession(core.TemplateV1Generic, nil))
	if !errors.Is(err, core.ErrNoExpenses) {
		t.Fatalf("expected ErrNoExpenses, got %v", err)
	}
}
