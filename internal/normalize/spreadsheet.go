package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/thermocert/thermocert/pkg/types"
)

// fromSpreadsheet normalizes either an .xlsx workbook or a JSON array of rows.
func (n *Normalizer) fromSpreadsheet(file string, data []byte) ([]*types.MeasurementSet, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return n.fromWorkbook(file, data)
	}
	rows, err := decodeJSONGrid(data)
	if err != nil {
		return nil, formatErr(file, "spreadsheet grid (array of rows)", err)
	}
	set, err := n.fromGrid(file, rows)
	if err != nil {
		return nil, err
	}
	return []*types.MeasurementSet{set}, nil
}

// fromWorkbook uses the first sheet that has a recognizable header. Raw cell
// values are read so date cells arrive as serial numbers.
func (n *Normalizer) fromWorkbook(file string, data []byte) ([]*types.MeasurementSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, formatErr(file, "xlsx workbook", err)
	}
	defer f.Close()

	var firstErr error
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, formatErr(file, fmt.Sprintf("sheet %q", sheet), err)
		}
		set, err := n.fromGrid(file, rows)
		if err == nil {
			if set.Metadata == nil {
				set.Metadata = make(map[string]string)
			}
			set.Metadata["sheet"] = sheet
			return []*types.MeasurementSet{set}, nil
		}
		// A later sheet may hold the data; only the header search is retried.
		var fe *FormatError
		if !errors.As(err, &fe) || !errors.Is(fe.Err, ErrHeaderNotFound) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = formatErr(file, "workbook has no sheets", ErrHeaderNotFound)
	}
	return nil, firstErr
}

// decodeJSONGrid decodes [[cell, ...], ...] where cells are strings, numbers,
// booleans or null. Numbers keep their literal text.
func decodeJSONGrid(data []byte) ([][]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw [][]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	rows := make([][]string, len(raw))
	for i, r := range raw {
		row := make([]string, len(r))
		for j, c := range r {
			switch v := c.(type) {
			case nil:
			case string:
				row[j] = v
			case json.Number:
				row[j] = v.String()
			default:
				row[j] = fmt.Sprint(v)
			}
		}
		rows[i] = row
	}
	return rows, nil
}
