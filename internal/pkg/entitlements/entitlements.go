package entitlements

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Limits describes what a plan entitles a user to. Zero means unlimited.
type Limits struct {
	ChatMessagesPerDay int
	MaxChatSessions    int
	ContextChunks      int
}

var planLimits = map[Plan]Limits{
	PlanFree: {
		ChatMessagesPerDay: 50,
		MaxChatSessions:    5,
		ContextChunks:      4,
	},
	PlanPro: {
		ChatMessagesPerDay: 0,
		MaxChatSessions:    0,
		ContextChunks:      8,
	},
}

// Normalize maps arbitrary plan strings onto a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	default:
		return PlanFree
	}
}

// LimitsFor returns the limits of the given plan string.
func LimitsFor(plan string) Limits {
	return planLimits[Normalize(plan)]
}

// AllowsMessages reports whether count messages today is still within plan limits.
func AllowsMessages(plan string, usedToday int) bool {
	l := LimitsFor(plan)
	return l.ChatMessagesPerDay == 0 || usedToday < l.ChatMessagesPerDay
}

// AllowsNewSession reports whether the user may open another chat session.
func AllowsNewSession(plan string, openSessions int) bool {
	l := LimitsFor(plan)
	return l.MaxChatSessions == 0 || openSessions < l.MaxChatSessions
}
