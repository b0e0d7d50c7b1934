package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/fiberplan/internal/popup"
)

// SheetName is the worksheet holding the records.
const SheetName = "MASTER POP UP"

// WriteXLSX writes records as a single-sheet workbook. Coordinate columns
// are numeric cells; everything else is text.
func WriteXLSX(w io.Writer, records []popup.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range popup.Columns {
		header.AddCell().SetString(col)
	}

	for _, r := range records {
		row := sheet.AddRow()
		for _, col := range popup.Columns {
			cell := row.AddCell()
			if popup.IsCoordinateColumn(col) {
				if v, ok := coordinate(r, col); ok {
					cell.SetFloat(v)
					continue
				}
			}
			cell.SetString(r.Get(col))
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}
