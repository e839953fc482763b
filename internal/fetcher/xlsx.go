package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the sheet to stream and how many leading rows to
// drop before emitting.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // leading rows to drop
}

// StreamXLSX opens the workbook at path and emits its rows as string
// slices. The charging-station register runs to tens of thousands of
// rows, so rows go through a channel rather than one big slice. Both
// channels close when the sheet is exhausted or an error has been sent;
// cancelling ctx stops the stream.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		wb, err := xlsx.OpenFile(path)
		if err != nil {
			errs <- eris.Wrapf(err, "xlsx: open %s", path)
			return
		}
		sheet, err := pickSheet(wb, opts)
		if err != nil {
			errs <- err
			return
		}

		for i, row := range sheet.Rows {
			if i < opts.SkipRows {
				continue
			}
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			select {
			case rows <- cells:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "xlsx: stream cancelled")
				return
			}
		}
	}()

	return rows, errs
}

func pickSheet(wb *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := wb.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: no sheet named %q", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(wb.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range, workbook has %d sheets", opts.SheetIndex, len(wb.Sheets))
	}
	return wb.Sheets[opts.SheetIndex], nil
}
