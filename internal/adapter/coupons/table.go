// Package coupons reads the coupon dataset from spreadsheet or CSV content.
package coupons

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/agromin/jurisdiction-validator/internal/domain"
)

// Format is the encoding of a coupon table.
type Format int

const (
	FormatCSV Format = iota
	FormatSpreadsheet
)

func (f Format) String() string {
	if f == FormatSpreadsheet {
		return "xlsx"
	}
	return "csv"
}

// Column headers, compared case-insensitively after trimming.
const (
	colCoupon       = "coupon"
	colStatus       = "program status"
	colJurisdiction = "jurisdiction"
	colStartDate    = "start date"
	colEndDate      = "end date"
)

// ErrNoCouponColumn is returned for a table without a "Coupon" header.
var ErrNoCouponColumn = errors.New(`coupon table has no "Coupon" column`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat sniffs content by its first two bytes: the zip container
// signature "PK" means a spreadsheet, anything else is treated as CSV.
func DetectFormat(content []byte) Format {
	if bytes.HasPrefix(content, []byte("PK")) {
		return FormatSpreadsheet
	}
	return FormatCSV
}

// Parse decodes a coupon table in the given format into records keyed by
// code.
func Parse(format Format, r io.Reader) (map[string]domain.CouponRecord, error) {
	var (
		header []string
		rows   [][]any
		err    error
	)
	switch format {
	case FormatSpreadsheet:
		header, rows, err = readSpreadsheet(r)
	default:
		header, rows, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	return RecordsFromRows(header, rows)
}

// RecordsFromRows maps table rows to coupon records. Rows without a usable
// code are skipped and a later row with the same code replaces an earlier
// one.
func RecordsFromRows(header []string, rows [][]any) (map[string]domain.CouponRecord, error) {
	cols := columnIndex(header)
	codeCol, ok := cols[colCoupon]
	if !ok {
		return nil, ErrNoCouponColumn
	}

	records := make(map[string]domain.CouponRecord, len(rows))
	for _, row := range rows {
		rec, ok := domain.NewCouponRecord(
			cellString(row, codeCol),
			cellString(row, lookup(cols, colStatus)),
			cellString(row, lookup(cols, colJurisdiction)),
			cell(row, lookup(cols, colStartDate)),
			cell(row, lookup(cols, colEndDate)),
		)
		if !ok {
			continue
		}
		records[rec.Code] = rec
	}
	return records, nil
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func lookup(cols map[string]int, name string) int {
	if i, ok := cols[name]; ok {
		return i
	}
	return -1
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func cellString(row []any, i int) string {
	switch v := cell(row, i).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func readCSV(r io.Reader) ([]string, [][]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("parse csv: empty table")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], string(utf8BOM))
	}

	rows := make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// readSpreadsheet reads the first sheet of a workbook. Numeric cells in
// the date columns are spreadsheet serial dates and come back as time.Time;
// everything else stays text.
func readSpreadsheet(r io.Reader) ([]string, [][]any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("open spreadsheet: workbook has no sheets")
	}

	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("read sheet %q: empty table", sheets[0])
	}

	header := raw[0]
	cols := columnIndex(header)
	dateCols := map[int]bool{}
	for _, name := range []string{colStartDate, colEndDate} {
		if i, ok := cols[name]; ok {
			dateCols[i] = true
		}
	}

	rows := make([][]any, 0, len(raw)-1)
	for _, rec := range raw[1:] {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
			if dateCols[i] {
				if t, ok := serialDate(v); ok {
					row[i] = t
				}
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func serialDate(v string) (any, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || serial <= 0 {
		return nil, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil, false
	}
	return t, true
}
