package core

import "context"

// Rule derives follow-up events from a broadcast trigger event.
type Rule interface {
	Evaluate(ctx context.Context, trigger Event) []Event
}

// LeaderboardRefreshRule emits a leaderboard refresh signal when a progress
// event completes a module or earns a certificate. The derived event carries
// no recomputed payload: clients refetch the leaderboard.
type LeaderboardRefreshRule struct{}

func (LeaderboardRefreshRule) Evaluate(_ context.Context, trigger Event) []Event {
	if trigger.Kind != KindProgress {
		return nil
	}
	if PayloadBool(trigger.Payload, "completed") || PayloadBool(trigger.Payload, "certificate_earned") {
		return []Event{NewLeaderboardRefresh(trigger.TenantID)}
	}
	return nil
}
