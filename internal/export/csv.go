package export

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// WriteCSV writes t as comma-separated text. Every text field, header
// included, is quoted; numbers and empty values are written bare.
func WriteCSV(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)

	header := make([]cell, len(t.Header))
	for i, h := range t.Header {
		header[i] = str(h)
	}
	if err := writeRecord(bw, header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, row := range t.rows {
		if err := writeRecord(bw, row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	return eris.Wrap(bw.Flush(), "export: flush csv")
}

// WriteCSVFile writes t to path.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

func writeRecord(w *bufio.Writer, cells []cell) error {
	for i, c := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		var s string
		if c.isNum || c.empty {
			s = c.String()
		} else {
			s = `"` + strings.ReplaceAll(c.text, `"`, `""`) + `"`
		}
		if _, err := w.WriteString(s); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
