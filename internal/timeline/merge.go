// Package timeline merges a forum's chat messages and predictions into one
// chronological feed.
package timeline

import (
	"slices"

	"github.com/pscheid92/fanpulse/internal/domain"
)

// Merge returns messages and predictions tagged and ordered by createdAt ascending.
// The sort is stable: inputs keep their relative order on equal timestamps, and
// messages come before predictions.
func Merge(messages []domain.Message, predictions []domain.Prediction) []domain.TimelineItem {
	items := make([]domain.TimelineItem, 0, len(messages)+len(predictions))
	for i := range messages {
		m := messages[i]
		items = append(items, domain.TimelineItem{Kind: domain.TimelineMessage, Message: &m})
	}
	for i := range predictions {
		p := predictions[i]
		items = append(items, domain.TimelineItem{Kind: domain.TimelinePrediction, Prediction: &p})
	}

	slices.SortStableFunc(items, func(a, b domain.TimelineItem) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	return items
}

// Window keeps the newest limit items, still in ascending order. limit <= 0 keeps all.
func Window(items []domain.TimelineItem, limit int) []domain.TimelineItem {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}
