package loader

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// loadXLSX reads the first sheet of a workbook and emits one segment per
// data row, same rendering as the CSV loader.
func loadXLSX(path string) ([]Segment, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rowsToSegments(rows), nil
}
