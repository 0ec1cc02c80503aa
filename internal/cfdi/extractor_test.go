package cfdi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleCFDI = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Folio="A-1001" Total="230.00">
  <cfdi:Emisor Rfc="AAA010101AAA" Nombre="Maderas SA"/>
  <cfdi:Conceptos>
    <cfdi:Concepto Descripcion="Chair SKU: WOOD-1" NoIdentificacion="" Cantidad="2.0000" ValorUnitario="75.0000" Importe="150.00">
      <cfdi:Impuestos/>
    </cfdi:Concepto>
    <cfdi:Concepto Descripcion="Sample" Importe="0.00"/>
    <cfdi:Concepto Descripcion="Table [TBL-9]" NoIdentificacion="TBL-9" Cantidad="1" ValorUnitario="80" Importe="80.00"/>
  </cfdi:Conceptos>
</cfdi:Comprobante>`

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestExtract(t *testing.T) {
	inv, err := NewExtractor(testLogger()).Extract([]byte(sampleCFDI))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.InvoiceNumber != "A-1001" {
		t.Errorf("invoice number = %q, want A-1001", inv.InvoiceNumber)
	}
	if len(inv.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", inv.Warnings)
	}
	if len(inv.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(inv.Lines))
	}

	first := inv.Lines[0]
	if first.Description != "Chair SKU: WOOD-1" || first.ProductIdentifier != "" {
		t.Errorf("first line = %+v", first)
	}
	if !first.Quantity.Equal(mustDecimal(t, "2")) || !first.UnitPrice.Equal(mustDecimal(t, "75")) || !first.Amount.Equal(mustDecimal(t, "150")) {
		t.Errorf("first line numbers = qty %s price %s amount %s", first.Quantity, first.UnitPrice, first.Amount)
	}

	second := inv.Lines[1]
	if !second.Quantity.Equal(mustDecimal(t, "1")) {
		t.Errorf("default quantity = %s, want 1", second.Quantity)
	}
	if !second.UnitPrice.IsZero() || !second.Amount.IsZero() {
		t.Errorf("second line = %+v, want zero price and amount", second)
	}

	if inv.Lines[2].ProductIdentifier != "TBL-9" {
		t.Errorf("identifier = %q, want TBL-9", inv.Lines[2].ProductIdentifier)
	}
}

func TestExtractPreservesOrderAndCount(t *testing.T) {
	for _, n := range []int{1, 7, 40} {
		var b strings.Builder
		b.WriteString(`<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Folio="F"><cfdi:Conceptos>`)
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, `<cfdi:Concepto Descripcion="line %d" Importe="%d.50"/>`, i, i+1)
		}
		b.WriteString(`</cfdi:Conceptos></cfdi:Comprobante>`)

		inv, err := NewExtractor(testLogger()).Extract([]byte(b.String()))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(inv.Lines) != n {
			t.Fatalf("n=%d: got %d lines", n, len(inv.Lines))
		}
		for i, l := range inv.Lines {
			if want := fmt.Sprintf("line %d", i); l.Description != want {
				t.Fatalf("n=%d: line %d description = %q, want %q", n, i, l.Description, want)
			}
		}
	}
}

func TestExtractUnprefixedDocument(t *testing.T) {
	doc := `<Comprobante Folio="77"><Conceptos><Concepto Descripcion="x" Importe="1"/></Conceptos></Comprobante>`
	inv, err := NewExtractor(testLogger()).Extract([]byte(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.InvoiceNumber != "77" || len(inv.Lines) != 1 {
		t.Errorf("got folio %q with %d lines", inv.InvoiceNumber, len(inv.Lines))
	}
}

func TestExtractMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"whitespace":    "   \n",
		"unclosed":      `<cfdi:Comprobante Folio="1"><cfdi:Conceptos>`,
		"not xml":       "Folio,Descripcion\n1,Chair",
		"mismatch tag":  `<a Folio="1"></b>`,
		"second root":   `<cfdi:Comprobante Folio="1"/><cfdi:Comprobante Folio="2"/>`,
		"trailing text": `<cfdi:Comprobante Folio="1"/> garbage`,
		"stray close":   `<cfdi:Comprobante Folio="1"/></cfdi:Comprobante>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			inv, err := NewExtractor(testLogger()).Extract([]byte(doc))
			if !errors.Is(err, common.ErrMalformedDocument) {
				t.Fatalf("err = %v, want ErrMalformedDocument", err)
			}
			if inv != nil {
				t.Errorf("expected nil invoice, got %+v", inv)
			}
		})
	}
}

func TestExtractTrailingCommentAllowed(t *testing.T) {
	doc := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Folio="9"><cfdi:Conceptos/></cfdi:Comprobante>
<!-- sellado -->
`
	inv, err := NewExtractor(testLogger()).Extract([]byte(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.InvoiceNumber != "9" {
		t.Errorf("folio = %q", inv.InvoiceNumber)
	}
}

func TestExtractMissingSection(t *testing.T) {
	doc := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Folio="B-7"><cfdi:Emisor Rfc="X"/></cfdi:Comprobante>`
	inv, err := NewExtractor(testLogger()).Extract([]byte(doc))
	if err != nil {
		t.Fatalf("missing section must not be an error: %v", err)
	}
	if inv.InvoiceNumber != "B-7" {
		t.Errorf("invoice number = %q, want B-7", inv.InvoiceNumber)
	}
	if inv.Lines == nil || len(inv.Lines) != 0 {
		t.Errorf("lines = %#v, want empty non-nil slice", inv.Lines)
	}
	if len(inv.Warnings) != 1 || !errors.Is(inv.Warnings[0], common.ErrMissingSection) {
		t.Errorf("warnings = %v, want one ErrMissingSection", inv.Warnings)
	}
}

func TestExtractInvalidNumeric(t *testing.T) {
	doc := `<Comprobante Folio="C"><Conceptos>
		<Concepto Descripcion="bad qty" Cantidad="dos" ValorUnitario="10" Importe="20"/>
		<Concepto Descripcion="no amount" Cantidad="1" ValorUnitario="5"/>
	</Conceptos></Comprobante>`
	inv, err := NewExtractor(testLogger()).Extract([]byte(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(inv.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(inv.Lines))
	}
	if !inv.Lines[0].Quantity.IsZero() {
		t.Errorf("invalid quantity = %s, want 0", inv.Lines[0].Quantity)
	}
	if !inv.Lines[0].Amount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("amount = %s, want 20", inv.Lines[0].Amount)
	}
	if !inv.Lines[1].Amount.IsZero() {
		t.Errorf("absent amount = %s, want 0", inv.Lines[1].Amount)
	}
	if len(inv.Warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", inv.Warnings)
	}
	for _, w := range inv.Warnings {
		if !errors.Is(w, common.ErrInvalidNumericField) {
			t.Errorf("warning %v is not ErrInvalidNumericField", w)
		}
	}
}

func TestExtractLatin1(t *testing.T) {
	// "Código" with ó encoded as 0xF3
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<Comprobante Folio=\"L1\"><Conceptos><Concepto Descripcion=\"Silla C\xf3digo: SL-2\" Importe=\"5\"/></Conceptos></Comprobante>")
	inv, err := NewExtractor(testLogger()).Extract(doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := inv.Lines[0].Description; got != "Silla Código: SL-2" {
		t.Errorf("description = %q", got)
	}
}

func TestExtractBOM(t *testing.T) {
	doc := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`<Comprobante Folio="BOM"><Conceptos/></Comprobante>`)...)
	inv, err := NewExtractor(testLogger()).Extract(doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.InvoiceNumber != "BOM" || len(inv.Lines) != 0 || len(inv.Warnings) != 0 {
		t.Errorf("got %+v", inv)
	}
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factura.xml")
	if err := os.WriteFile(path, []byte(sampleCFDI), 0o600); err != nil {
		t.Fatal(err)
	}
	inv, err := NewExtractor(testLogger()).ExtractFile(path)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if len(inv.Lines) != 3 {
		t.Errorf("got %d lines", len(inv.Lines))
	}

	if _, err := NewExtractor(testLogger()).ExtractFile(filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Error("expected error for missing file")
	}
}
