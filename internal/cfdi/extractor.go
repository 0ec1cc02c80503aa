// Package cfdi reads line items out of CFDI (Mexican electronic invoice) XML.
package cfdi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// Textual defaults applied when a concepto omits the attribute.
const (
	defaultCantidad      = "1.0000"
	defaultValorUnitario = "0.0000"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Invoice is the extracted view of one CFDI document.
type Invoice struct {
	InvoiceNumber string
	Lines         []entity.RawLineItem
	// Warnings holds recoverable problems (ErrMissingSection,
	// ErrInvalidNumericField) that did not stop extraction.
	Warnings []error
}

// comprobante matches on local names only, so both cfdi:-prefixed and
// unprefixed documents decode.
type comprobante struct {
	XMLName   xml.Name
	Folio     string     `xml:"Folio,attr"`
	Conceptos *conceptos `xml:"Conceptos"`
}

type conceptos struct {
	Items []concepto `xml:"Concepto"`
}

type concepto struct {
	Descripcion      string  `xml:"Descripcion,attr"`
	NoIdentificacion string  `xml:"NoIdentificacion,attr"`
	Cantidad         *string `xml:"Cantidad,attr"`
	ValorUnitario    *string `xml:"ValorUnitario,attr"`
	Importe          *string `xml:"Importe,attr"`
}

// Extractor turns CFDI bytes into raw line items. It has no state besides its logger.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractFile reads path and extracts it.
func (e *Extractor) ExtractFile(path string) (*Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.Extract(data)
}

// Extract parses one document. Only unparseable markup is an error
// (wrapping ErrMalformedDocument); a missing Conceptos section or bad numeric
// text is reported through Invoice.Warnings.
func (e *Extractor) Extract(data []byte) (*Invoice, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		e.logger.Error("cfdi.extract.malformed", "error", "empty document")
		return nil, fmt.Errorf("%w: empty document", common.ErrMalformedDocument)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var doc comprobante
	if err := dec.Decode(&doc); err != nil {
		e.logger.Error("cfdi.extract.malformed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedDocument, err)
	}
	if err := expectEOF(dec); err != nil {
		e.logger.Error("cfdi.extract.malformed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedDocument, err)
	}

	inv := &Invoice{InvoiceNumber: strings.TrimSpace(doc.Folio)}

	if doc.Conceptos == nil {
		w := fmt.Errorf("%w: Conceptos not found under %s", common.ErrMissingSection, doc.XMLName.Local)
		e.logger.Warn("cfdi.extract.missing_section", "folio", inv.InvoiceNumber, "root", doc.XMLName.Local)
		inv.Warnings = append(inv.Warnings, w)
		inv.Lines = []entity.RawLineItem{}
		return inv, nil
	}

	inv.Lines = make([]entity.RawLineItem, 0, len(doc.Conceptos.Items))
	for i, c := range doc.Conceptos.Items {
		line := entity.RawLineItem{
			Description:       strings.TrimSpace(c.Descripcion),
			ProductIdentifier: strings.TrimSpace(c.NoIdentificacion),
		}
		line.Quantity = e.parseNumeric(inv, i, "Cantidad", c.Cantidad, defaultCantidad)
		line.UnitPrice = e.parseNumeric(inv, i, "ValorUnitario", c.ValorUnitario, defaultValorUnitario)
		line.Amount = e.parseNumeric(inv, i, "Importe", c.Importe, "")
		inv.Lines = append(inv.Lines, line)
	}

	e.logger.Debug("cfdi.extract.ok",
		"folio", inv.InvoiceNumber,
		"lines", len(inv.Lines),
		"warnings", len(inv.Warnings),
	)
	return inv, nil
}

// expectEOF consumes what follows the root element. Only whitespace,
// comments and processing instructions may trail it.
func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after root element")
			}
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root element", t.Name.Local)
		default:
			return fmt.Errorf("unexpected %T after root element", tok)
		}
	}
}

// parseNumeric converts an attribute to a decimal. Absent attributes take
// def; unparseable text (or an absent attribute with no default) becomes zero
// and is recorded as an ErrInvalidNumericField warning.
func (e *Extractor) parseNumeric(inv *Invoice, idx int, field string, raw *string, def string) decimal.Decimal {
	text := def
	if raw != nil {
		text = strings.TrimSpace(*raw)
	}
	d, err := decimal.NewFromString(text)
	if err == nil {
		return d
	}

	w := fmt.Errorf("concepto %d %s %q: %w", idx+1, field, text, common.ErrInvalidNumericField)
	e.logger.Warn("cfdi.extract.invalid_numeric",
		"folio", inv.InvoiceNumber,
		"concepto", idx+1,
		"field", field,
		"value", text,
	)
	inv.Warnings = append(inv.Warnings, w)
	return decimal.Zero
}
