package models

import (
	"io"
	"strings"

	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/xuri/excelize/v2"
)

// RawRow is one data row of an uploaded spreadsheet, independent of any
// template semantics: the stable 0-based ordinal plus header -> cell text.
type RawRow struct {
	Ordinal int
	Cells   map[string]string
}

// ParseSpreadsheet reads the first sheet of an xlsx upload into raw rows.
// Rows are streamed rather than loaded wholesale so large files keep peak
// memory bounded. Cell values arrive as excelize's formatted text, which
// normalizes numbers and dates to strings.
func ParseSpreadsheet(r io.Reader) ([]*RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, utils.WrapError(utils.ErrKindMalformedFile, "not a readable spreadsheet", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, utils.NewAppError(utils.ErrKindMalformedFile, "spreadsheet has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, utils.WrapError(utils.ErrKindMalformedFile, "unable to read sheet", err)
	}
	defer rows.Close()

	var headers []string
	if rows.Next() {
		headers, err = rows.Columns()
		if err != nil {
			return nil, utils.WrapError(utils.ErrKindMalformedFile, "unable to read header row", err)
		}
	}
	if !hasAnyHeader(headers) {
		return nil, utils.NewAppError(utils.ErrKindMalformedFile, "spreadsheet has no header row")
	}

	var rawRows []*RawRow
	ordinal := 0
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, utils.WrapError(utils.ErrKindMalformedFile, "unable to read row", err)
		}
		if isEmptyRow(cols) {
			// spreadsheet tools pad trailing blank rows; they are not data
			continue
		}
		cells := make(map[string]string, len(headers))
		for i, header := range headers {
			header = strings.TrimSpace(header)
			if header == "" {
				continue
			}
			var value string
			if i < len(cols) {
				value = cols[i]
			}
			cells[header] = value
		}
		rawRows = append(rawRows, &RawRow{Ordinal: ordinal, Cells: cells})
		ordinal++
	}
	if err := rows.Error(); err != nil {
		return nil, utils.WrapError(utils.ErrKindMalformedFile, "error while streaming rows", err)
	}

	return rawRows, nil
}

func hasAnyHeader(headers []string) bool {
	for _, h := range headers {
		if strings.TrimSpace(h) != "" {
			return true
		}
	}
	return false
}

func isEmptyRow(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
