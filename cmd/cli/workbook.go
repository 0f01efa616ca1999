package main

import (
	"fmt"
	"io"
	"time"

	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/xuri/excelize/v2"
)

const scansSheet = "Scans"

var scansHeader = []string{
	"Scanned At (UTC)",
	"Redirect Type",
	"Resolved URL",
	"Client IP",
	"User Agent",
}

// writeScansWorkbook renders one tag's scan history as a single-sheet xlsx.
func writeScansWorkbook(w io.Writer, tag *domain.Tag, scans []domain.ScanEvent) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(scansSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(scansSheet, "A1", fmt.Sprintf("%s (%s)", tag.Bizcode, tag.UID)); err != nil {
		return err
	}

	for i, h := range scansHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(scansSheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(scansHeader), 2)
	if err := f.SetCellStyle(scansSheet, "A2", last, headerStyle); err != nil {
		return err
	}

	for i, s := range scans {
		row := []any{
			s.CreatedAt.UTC().Format(time.DateTime),
			string(s.Kind),
			s.ResolvedURL,
			s.ClientIP,
			s.UserAgent,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(scansSheet, cell, &row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(scansSheet, "A", "A", 22)
	_ = f.SetColWidth(scansSheet, "C", "C", 60)
	_ = f.SetColWidth(scansSheet, "E", "E", 40)

	_, err = f.WriteTo(w)
	return err
}
