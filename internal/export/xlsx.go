package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// SheetName is the worksheet records are written to.
const SheetName = "Sheet1"

func writeXLSX(path string, columns []string, records []record.Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := setRow(f, 1, columns); err != nil {
		return err
	}
	for i, rec := range records {
		if err := setRow(f, i+2, rec.Row(columns)); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
