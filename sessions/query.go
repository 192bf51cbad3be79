package sessions

import (
	"sort"
	"strings"
	"time"
)

// Filter narrows a message query. Zero values mean "no constraint"; all set fields must match.
type Filter struct {
	From       string  `json:"from,omitempty"`       // case-insensitive substring of the sender display name
	Text       string  `json:"text,omitempty"`       // case-insensitive substring of the body
	LastHours  float64 `json:"lastHours,omitempty"`  // received at or after now minus LastHours
	Type       string  `json:"type,omitempty"`       // exact message type
	OnlyGroups *bool   `json:"onlyGroups,omitempty"` // nil matches both
	Limit      int     `json:"limit,omitempty"`      // applied after filtering and sorting; 0 means no cap
}

// QueryResult holds the matching messages newest first. Total counts every match before Limit.
type QueryResult struct {
	Messages []*InboundMessage `json:"messages"`
	Total    int               `json:"total"`
	Filters  Filter            `json:"filters"`
}

// Stats is computed from the live buffer on every call.
type Stats struct {
	Total      int            `json:"total"`
	LastHour   int            `json:"lastHour"`
	Last24h    int            `json:"last24h"`
	LastWeek   int            `json:"thisWeek"`
	Groups     int            `json:"groups"`
	Individual int            `json:"individual"`
	WithMedia  int            `json:"withMedia"`
	ByType     map[string]int `json:"byType"`
}

func (f Filter) matches(msg *InboundMessage, since time.Time) bool {
	if f.From != "" {
		name := msg.SenderName()
		if name == "" || !strings.Contains(strings.ToLower(name), strings.ToLower(f.From)) {
			return false
		}
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(msg.Body), strings.ToLower(f.Text)) {
		return false
	}
	if f.LastHours > 0 && msg.ReceivedAt.Before(since) {
		return false
	}
	if f.Type != "" && msg.Type != f.Type {
		return false
	}
	if f.OnlyGroups != nil && msg.IsGroup != *f.OnlyGroups {
		return false
	}
	return true
}

func runQuery(messages []*InboundMessage, f Filter, now time.Time) *QueryResult {
	since := now.Add(-time.Duration(f.LastHours * float64(time.Hour)))

	matched := make([]*InboundMessage, 0)
	for i := len(messages) - 1; i >= 0; i-- {
		if f.matches(messages[i], since) {
			matched = append(matched, messages[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	total := len(matched)
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return &QueryResult{Messages: matched, Total: total, Filters: f}
}

func computeStats(messages []*InboundMessage, now time.Time) *Stats {
	stats := &Stats{
		Total:  len(messages),
		ByType: make(map[string]int),
	}
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, msg := range messages {
		if !msg.ReceivedAt.Before(hourAgo) {
			stats.LastHour++
		}
		if !msg.ReceivedAt.Before(dayAgo) {
			stats.Last24h++
		}
		if !msg.ReceivedAt.Before(weekAgo) {
			stats.LastWeek++
		}
		if msg.IsGroup {
			stats.Groups++
		} else {
			stats.Individual++
		}
		if msg.HasMedia {
			stats.WithMedia++
		}
		stats.ByType[msg.Type]++
	}
	return stats
}
