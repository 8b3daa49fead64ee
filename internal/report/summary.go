package report

import (
	"sort"
	"time"

	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/parse"
)

// MachineSummary is one row of the supervisor report.
type MachineSummary struct {
	MachineID           string          `json:"machineId"`
	Kind                string          `json:"kind"`
	Occupancy           model.Occupancy `json:"occupancy"`
	Condition           model.Condition `json:"condition"`
	TotalSessions       int             `json:"totalSessions"`
	ActiveSessions      int             `json:"activeSessions"`
	CompletedSessions   int             `json:"completedSessions"`
	LateSessions        int             `json:"lateSessions"`
	AverageDelayMinutes float64         `json:"averageDelayMinutes"`
	MaxDelayMinutes     int             `json:"maxDelayMinutes"`
	ConditionReason     string          `json:"conditionReason,omitempty"`
	ProblemReportedAt   *time.Time      `json:"problemReportedAt,omitempty"`
	ProblemResolvedAt   *time.Time      `json:"problemResolvedAt,omitempty"`
	RepairMinutes       *int            `json:"repairMinutes,omitempty"`
}

// Build aggregates sessions per machine. Machines come out in identifier order; sessions of
// machines not in the list are ignored.
func Build(machines []model.Machine, sessions []model.Session) []MachineSummary {
	byMachine := make(map[string][]model.Session, len(machines))
	for _, s := range sessions {
		byMachine[s.MachineID] = append(byMachine[s.MachineID], s)
	}

	rows := make([]MachineSummary, 0, len(machines))
	for _, m := range machines {
		row := MachineSummary{
			MachineID:         m.ID,
			Occupancy:         m.Occupancy,
			Condition:         m.Condition,
			ConditionReason:   m.ConditionReason,
			ProblemReportedAt: m.ProblemReportedAt,
			ProblemResolvedAt: m.ProblemResolvedAt,
		}
		if loc, err := parse.ParseMachineID(m.ID); err == nil {
			row.Kind = string(loc.Kind)
		}
		if minutes, ok := m.RepairMinutes(); ok {
			row.RepairMinutes = &minutes
		}

		var delaySum, delayCount int
		for _, s := range byMachine[m.ID] {
			row.TotalSessions++
			if s.Status == model.SessionActive {
				row.ActiveSessions++
				continue
			}
			row.CompletedSessions++
			if s.DelayMinutes == nil {
				continue
			}
			d := *s.DelayMinutes
			delaySum += d
			delayCount++
			if d > 0 {
				row.LateSessions++
			}
			if d > row.MaxDelayMinutes {
				row.MaxDelayMinutes = d
			}
		}
		if delayCount > 0 {
			row.AverageDelayMinutes = float64(delaySum) / float64(delayCount)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].MachineID < rows[j].MachineID })
	return rows
}
