// Package workbook reads bordereau spreadsheets of broker submissions and
// writes decision reports as XLSX.
package workbook

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/uw-workbench/internal/model"
)

// Options selects the sheet to read.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// Row is one submission read from a sheet. Line is the 1-based sheet row.
type Row struct {
	Line   int
	Fields model.Fields
}

// ReadRows reads a sheet and returns all rows as string slices.
func ReadRows(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// StreamSubmissions reads a sheet whose first row names the fields and
// sends every non-blank row after it as a Row. Both channels are closed
// when processing completes.
func StreamSubmissions(ctx context.Context, path string, opts Options) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: open file")
			return
		}

		sheet, err := getSheet(f, opts)
		if err != nil {
			errCh <- err
			return
		}
		var header []string
		named := false
		if len(sheet.Rows) > 0 {
			header = rowToStrings(sheet.Rows[0])
			for i := range header {
				header[i] = HeaderKey(header[i])
				named = named || header[i] != ""
			}
		}
		if !named {
			errCh <- eris.New("xlsx: sheet has no header row")
			return
		}

		for i, row := range sheet.Rows[1:] {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}

			fields := toFields(header, rowToStrings(row))
			if len(fields) == 0 {
				continue
			}

			select {
			case rowCh <- Row{Line: i + 2, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// HeaderKey converts a column header like "Coverage Amount" to the field
// name coverage_amount.
func HeaderKey(h string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.TrimSpace(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			sep = false
			continue
		}
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func toFields(header, cells []string) model.Fields {
	fields := model.Fields{}
	for j, v := range cells {
		if j >= len(header) || header[j] == "" {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			fields[header[j]] = v
		}
	}
	return fields
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
