package models

import "time"

// Stats summarizes a rider's verification record for the profile screen.
type Stats struct {
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	Pending       int     `json:"pending"`
	SuccessRate   float64 `json:"success_rate"`
	CurrentStreak int     `json:"current_streak"`
	Today         int     `json:"today"`
	ThisWeek      int     `json:"this_week"`
}

// streakWindow bounds how many recent terminal attempts the streak considers.
const streakWindow = 10

// ComputeStats derives the summary from attempts ordered newest first.
// Today counts from UTC midnight; the week is the trailing seven days.
func ComputeStats(attempts []*Attempt, now time.Time) Stats {
	var stats Stats
	stats.Total = len(attempts)

	dayStart := now.UTC().Truncate(24 * time.Hour)
	weekStart := now.Add(-7 * 24 * time.Hour)

	terminalSeen := 0
	streakBroken := false
	for _, a := range attempts {
		if !a.SubmittedAt.Before(dayStart) {
			stats.Today++
		}
		if !a.SubmittedAt.Before(weekStart) {
			stats.ThisWeek++
		}
		switch a.Status {
		case StatusPassed:
			stats.Passed++
		case StatusFailed, StatusManualReview:
			stats.Failed++
		case StatusPending:
			stats.Pending++
		}
		if a.Status.Terminal() && terminalSeen < streakWindow {
			terminalSeen++
			if a.Status == StatusPassed && !streakBroken {
				stats.CurrentStreak++
			} else {
				streakBroken = true
			}
		}
	}

	if terminal := stats.Passed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Passed) / float64(terminal)
	}
	return stats
}
