package models

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseSpreadsheetMapsHeadersToCells(t *testing.T) {
	buf := buildWorkbook(t, [][]string{
		{"name", "email", "salary"},
		{"Alice", "alice@example.com", "1200"},
		{"Bob", "", "900"},
	})

	rows, err := ParseSpreadsheet(buf)
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for i, row := range rows {
		if row.Ordinal != i {
			t.Errorf("row %d has ordinal %d", i, row.Ordinal)
		}
	}
	if rows[0].Cells["name"] != "Alice" || rows[0].Cells["email"] != "alice@example.com" {
		t.Errorf("unexpected first row cells: %v", rows[0].Cells)
	}
	if rows[1].Cells["email"] != "" {
		t.Errorf("missing cell should map to empty string, got %q", rows[1].Cells["email"])
	}
}

func TestParseSpreadsheetSkipsBlankRowsKeepingOrdinalsContiguous(t *testing.T) {
	buf := buildWorkbook(t, [][]string{
		{"name"},
		{"Alice"},
		{""},
		{"   "},
		{"Bob"},
	})

	rows, err := ParseSpreadsheet(buf)
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Ordinal != 0 || rows[1].Ordinal != 1 {
		t.Errorf("ordinals not contiguous: %d, %d", rows[0].Ordinal, rows[1].Ordinal)
	}
	if rows[1].Cells["name"] != "Bob" {
		t.Errorf("second row = %q, want Bob", rows[1].Cells["name"])
	}
}

func TestParseSpreadsheetRequiresHeaderRow(t *testing.T) {
	buf := buildWorkbook(t, nil)

	_, err := ParseSpreadsheet(buf)
	if err == nil {
		t.Fatal("expected error for empty workbook")
	}
	if utils.KindOf(err) != utils.ErrKindMalformedFile {
		t.Errorf("got kind %s, want %s", utils.KindOf(err), utils.ErrKindMalformedFile)
	}
}

func TestParseSpreadsheetRejectsGarbage(t *testing.T) {
	_, err := ParseSpreadsheet(strings.NewReader("this is not an xlsx file"))
	if err == nil {
		t.Fatal("expected error for non-xlsx input")
	}
	if utils.KindOf(err) != utils.ErrKindMalformedFile {
		t.Errorf("got kind %s, want %s", utils.KindOf(err), utils.ErrKindMalformedFile)
	}
}

func TestParseSpreadsheetIgnoresUnnamedColumns(t *testing.T) {
	buf := buildWorkbook(t, [][]string{
		{"name", "", "notes"},
		{"Alice", "stray", "fine"},
	})

	rows, err := ParseSpreadsheet(buf)
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if _, ok := rows[0].Cells[""]; ok {
		t.Error("cells under a blank header should be dropped")
	}
	if rows[0].Cells["notes"] != "fine" {
		t.Errorf("notes = %q, want fine", rows[0].Cells["notes"])
	}
}
