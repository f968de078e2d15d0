// Package leaderboard turns learner progress into scores and ranked
// standings. Scoring and ranking are pure functions; the live skiplist boards
// are an in-memory acceleration fed by progress broadcasts.
package leaderboard

import (
	"math"
	"sort"

	"learnsync/core"
)

// MaxEntries caps a ranked standing at the top 50.
const MaxEntries = 50

// Entry is one ranked row of a tenant leaderboard. Derived, never persisted.
type Entry struct {
	UserID             core.UserID `json:"user_id"`
	UserName           string      `json:"user_name"`
	Score              float64     `json:"score"`
	CompletedModules   int         `json:"completed_modules"`
	CertificatesEarned int         `json:"certificates_earned"`
	StreakDays         int         `json:"streak_days"`
	Rank               int         `json:"rank"`
}

// Score computes the deterministic leaderboard score for one learner:
// completions dominate, quality and certificates weigh in, and time on task
// contributes up to a 100-hour cap.
func Score(p core.UserProgress) float64 {
	completed := float64(p.CompletedModules)
	score := 100*completed +
		0.5*p.AverageScore*completed +
		200*float64(p.CertificatesEarned) +
		10*math.Min(float64(p.TotalTimeSpentMinutes)/60, 100)
	return score
}

// Rank produces the tenant standing for the given users: active users sorted
// by score descending, ties broken by ascending user id for reproducibility,
// dense 1..N ranks, truncated to MaxEntries.
func Rank(users []core.User, progress map[core.UserID]core.UserProgress) []Entry {
	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		if !u.Active {
			continue
		}
		p := progress[u.ID]
		entries = append(entries, Entry{
			UserID:             u.ID,
			UserName:           u.Name,
			Score:              Score(p),
			CompletedModules:   p.CompletedModules,
			CertificatesEarned: p.CertificatesEarned,
			StreakDays:         p.StreakDays,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score == entries[j].Score {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
