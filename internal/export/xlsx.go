package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX writes one sheet per table into a single workbook.
func WriteXLSX(w io.Writer, tables ...*Table) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteXLSXFile writes the workbook to path.
func WriteXLSXFile(path string, tables ...*Table) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Save(path), "export: save workbook")
}

func buildWorkbook(tables []*Table) (*xlsx.File, error) {
	if len(tables) == 0 {
		return nil, eris.New("export: no tables")
	}
	f := xlsx.NewFile()
	for _, t := range tables {
		sheet, err := f.AddSheet(t.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", t.Name)
		}
		header := sheet.AddRow()
		for _, h := range t.Header {
			header.AddCell().SetString(h)
		}
		for _, row := range t.rows {
			r := sheet.AddRow()
			for _, c := range row {
				xc := r.AddCell()
				switch {
				case c.empty:
				case c.isNum:
					xc.SetFloat(c.num)
				default:
					xc.SetString(c.text)
				}
			}
		}
	}
	return f, nil
}
