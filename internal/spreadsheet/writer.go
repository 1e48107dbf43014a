package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-komisi/internal/commission"
)

// ContentType is the media type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Writer renders commission reports as single-sheet workbooks.
type Writer struct {
	Labels Labels
}

// NewWriter returns a writer using the given labels, falling back to Chinese
// when the set is incomplete.
func NewWriter(labels Labels) Writer {
	if labels.Sheet == "" || len(labels.Headers) != len(commission.Columns) {
		labels = Chinese
	}
	return Writer{Labels: labels}
}

// Bytes renders the report into memory.
func (w Writer) Bytes(report *commission.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf, report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the report to out. Every column is sized to its widest
// rendered cell plus two.
func (w Writer) Write(out io.Writer, report *commission.Report) error {
	labels := NewWriter(w.Labels).Labels

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := labels.Sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	widths := make([]int, len(labels.Headers))
	header := make([]any, len(labels.Headers))
	for i, h := range labels.Headers {
		header[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, bold)
	}

	var rows []commission.Row
	if report != nil {
		rows = report.Rows
	}
	for i, row := range rows {
		values, texts := renderRow(row, labels)
		for c, text := range texts {
			if n := utf8.RuneCountInString(text); n > widths[c] {
				widths[c] = n
			}
		}
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, ref, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for c, width := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(width+2)); err != nil {
			return fmt.Errorf("size column %s: %w", col, err)
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// renderRow returns the cell values of a row and the text used to size each
// column. Blank and zero cells measure as empty.
func renderRow(row commission.Row, labels Labels) ([]any, []string) {
	if row.IsSubtotal() {
		values := []any{"", "", labels.Subtotal, row.NetSales.InexactFloat64(), nil, nil, row.CommissionAmount}
		texts := []string{"", "", labels.Subtotal, decimalText(row.NetSales), "", "", intText(row.CommissionAmount)}
		return values, texts
	}
	date := row.SaleDate.Format("2006-01-02")
	values := []any{
		row.CounterID,
		date,
		row.DiscountRate.InexactFloat64(),
		row.NetSales.InexactFloat64(),
		row.CumulativePct.InexactFloat64(),
		row.CommissionRate,
		row.CommissionAmount,
	}
	texts := []string{
		row.CounterID,
		date,
		decimalText(row.DiscountRate),
		decimalText(row.NetSales),
		decimalText(row.CumulativePct),
		intText(int64(row.CommissionRate)),
		intText(row.CommissionAmount),
	}
	return values, texts
}

func decimalText(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func intText(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
