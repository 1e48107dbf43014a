package ledger

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/backend-komisi/internal/commission"
)

var (
	// ErrUnsupportedFormat is matched by every FormatError.
	ErrUnsupportedFormat = errors.New("unsupported ledger format")
	// ErrMalformed wraps files that cannot be decoded in their declared format.
	ErrMalformed = errors.New("malformed ledger file")
)

// FormatError reports an upload whose name does not map to a known format.
type FormatError struct {
	Name string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s %q: upload an .xlsx workbook or a delimited .txt file", ErrUnsupportedFormat.Error(), e.Name)
}

// Unwrap allows errors.Is(err, ErrUnsupportedFormat).
func (e *FormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// Format identifies how a ledger file is parsed.
type Format string

const (
	FormatWorkbook  Format = "xlsx"
	FormatDelimited Format = "delimited"
)

// DetectFormat maps a file name to its ledger format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".xlsx":
		return FormatWorkbook, nil
	case ".txt", ".csv", ".tsv":
		return FormatDelimited, nil
	default:
		return "", &FormatError{Name: name}
	}
}

// Loader reads ledger uploads into raw rows for the commission engine.
type Loader struct {
	// Sheet selects a workbook sheet by name. Empty means the first sheet.
	Sheet string
}

// Load parses the named upload. The header row must name the counter, sale
// date, discount rate and net sales columns; other columns are ignored.
func (l Loader) Load(name string, r io.Reader) ([]commission.LedgerRow, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	var records []record
	switch format {
	case FormatWorkbook:
		records, err = readWorkbook(r, l.Sheet)
	default:
		records, err = readDelimited(r)
	}
	if err != nil {
		return nil, err
	}
	return toLedgerRows(records)
}

// record is one parsed row with its 1-based line (or sheet row) number.
type record struct {
	line  int
	cells []string
}

func toLedgerRows(records []record) ([]commission.LedgerRow, error) {
	for len(records) > 0 && blank(records[0].cells) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, commission.MissingColumns(requiredColumns...)
	}
	cols, err := mapHeader(records[0].cells)
	if err != nil {
		return nil, err
	}
	rows := make([]commission.LedgerRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec.cells) {
			continue
		}
		rows = append(rows, commission.LedgerRow{
			Line:         rec.line,
			CounterID:    cell(rec.cells, cols.counter),
			SaleDate:     cell(rec.cells, cols.date),
			DiscountRate: cell(rec.cells, cols.discount),
			NetSales:     cell(rec.cells, cols.net),
		})
	}
	return rows, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return normalizeCell(record[idx])
}

func normalizeCell(value string) string {
	return strings.TrimSpace(norm.NFKC.String(value))
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
