// Package report renders attendance reports for the office staff.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
)

const sheetName = "Attendance"

var summaryOrder = []attendance.Status{
	attendance.StatusPresent,
	attendance.StatusLate,
	attendance.StatusHalfDay,
	attendance.StatusAbsent,
	attendance.StatusLeave,
	attendance.StatusHoliday,
}

// WriteDailyXLSX renders a day report as an xlsx workbook.
func WriteDailyXLSX(report *attendance.DayReport, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("could not create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("could not drop default sheet: %w", err)
	}

	header := []any{"Subject ID", "Name", "Kind", "Session", "Status", "Present", "Source", "Remark", "Marked At"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	for i, rec := range report.Rows {
		row := []any{
			rec.SubjectID,
			rec.SubjectName,
			rec.SubjectKind,
			string(rec.Session),
			string(rec.Status),
			rec.Status.IsPresent(),
			rec.Source,
			rec.Remark,
			rec.MarkedAt.Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("could not address row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("could not write row %d: %w", i+2, err)
		}
	}

	summaryStart := len(report.Rows) + 3
	title := []any{fmt.Sprintf("Summary for %s on %s", report.Tenant, report.Date.Format("2006-01-02"))}
	cell, err := excelize.CoordinatesToCellName(1, summaryStart)
	if err != nil {
		return fmt.Errorf("could not address summary: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &title); err != nil {
		return fmt.Errorf("could not write summary title: %w", err)
	}

	line := summaryStart + 1
	for _, status := range summaryOrder {
		count, ok := report.Summary[status]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return fmt.Errorf("could not address summary row: %w", err)
		}
		row := []any{string(status), count}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("could not write summary row: %w", err)
		}
		line++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("could not write workbook: %w", err)
	}

	return nil
}
