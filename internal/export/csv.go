package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiberplan/internal/popup"
)

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []popup.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(popup.Columns); err != nil {
		return eris.Wrap(err, "csv export: write header")
	}

	for _, r := range records {
		if err := cw.Write(r); err != nil {
			return eris.Wrap(err, "csv export: write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "csv export: flush")
	}
	return nil
}
