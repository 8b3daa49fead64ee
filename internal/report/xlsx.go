package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// XLSXHeader is the first row of the exported sheet.
var XLSXHeader = []interface{}{
	"machine_id",
	"kind",
	"occupancy",
	"condition",
	"total_sessions",
	"active_sessions",
	"completed_sessions",
	"late_sessions",
	"avg_delay_minutes",
	"max_delay_minutes",
	"condition_reason",
	"problem_reported_at",
	"problem_resolved_at",
	"repair_minutes",
}

// WriteXLSX renders the summary as a single-sheet workbook, one row per machine.
func WriteXLSX(w io.Writer, rows []MachineSummary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	header := XLSXHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		excelRow := []interface{}{
			r.MachineID,
			r.Kind,
			string(r.Occupancy),
			string(r.Condition),
			r.TotalSessions,
			r.ActiveSessions,
			r.CompletedSessions,
			r.LateSessions,
			r.AverageDelayMinutes,
			r.MaxDelayMinutes,
			r.ConditionReason,
			formatTime(r.ProblemReportedAt),
			formatTime(r.ProblemResolvedAt),
			"",
		}
		if r.RepairMinutes != nil {
			excelRow[len(excelRow)-1] = *r.RepairMinutes
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return fmt.Errorf("write row %s: %w", r.MachineID, err)
		}
	}

	return f.Write(w)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
