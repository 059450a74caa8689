package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sheet1"

// BuildExportFile serializes every non-archived document of the template
// created in the inclusive [from, to] range into a workbook: document name,
// creation date, then one column per declared field. Zero qualifying
// documents still yields a well-formed file with just the header row.
func BuildExportFile(ctx context.Context, template *Template, from, to time.Time) (*excelize.File, error) {
	documents, err := DocumentsInRange(ctx, template.ID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	headers := []string{"Document Name", "Created At"}
	for _, field := range template.Fields {
		label := field.Label
		if label == "" {
			label = field.Name
		}
		headers = append(headers, label)
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, utils.WrapError(utils.ErrKindExportFailed, "build header", err)
		}
		f.SetCellValue(exportSheet, cell, h)
	}

	for rowNo, doc := range documents {
		values := make(map[string]string, len(doc.Fields))
		for _, fv := range doc.Fields {
			values[fv.Name] = fv.Value
		}

		cells := []string{doc.Name, doc.CreatedAt.Format("2006-01-02")}
		for _, field := range template.Fields {
			cells = append(cells, values[field.Name])
		}
		for col, value := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return nil, utils.WrapError(utils.ErrKindExportFailed, "build row", err)
			}
			f.SetCellValue(exportSheet, cell, value)
		}
	}

	return f, nil
}
