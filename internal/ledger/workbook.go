package ledger

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

func readWorkbook(r io.Reader, sheet string) ([]record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrMalformed, err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformed, sheet, err)
	}
	records := make([]record, 0, len(rows))
	for i, cells := range rows {
		if !blank(cells) {
			records = append(records, record{line: i + 1, cells: cells})
		}
	}
	if len(records) == 0 {
		return nil, nil
	}
	cols, err := mapHeader(records[0].cells)
	if err != nil {
		return nil, err
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("%w: read workbook properties: %v", ErrMalformed, err)
	}
	date1904 := props.Date1904 != nil && *props.Date1904
	for _, rec := range records[1:] {
		if cols.date < len(rec.cells) {
			rec.cells[cols.date] = serialToDate(rec.cells[cols.date], date1904)
		}
	}
	return records, nil
}

// maxExcelSerial is 9999-12-31; larger numbers are compact dates such as 20250701.
const maxExcelSerial = 2958465

// serialToDate renders an Excel serial day number as an ISO date and leaves
// any other text untouched. date1904 selects the Mac epoch.
func serialToDate(value string, date1904 bool) string {
	v := strings.TrimSpace(value)
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 || serial > maxExcelSerial {
		return value
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return value
	}
	return t.Format("2006-01-02")
}
