package engine

import (
	"sort"

	"vanrank/internal/models"
)

// customerHistory is one customer's purchases inside the lookback window,
// with a per-item breakdown for O(1) lookup during scoring.
type customerHistory struct {
	events []models.PurchaseEvent
	items  map[string][]models.PurchaseEvent
}

// historyIndex maps customer id to their pre-grouped history. Built once
// per generation run so the customer x item loop never rescans the log.
type historyIndex map[string]*customerHistory

func buildHistoryIndex(events []models.PurchaseEvent) historyIndex {
	idx := make(historyIndex)
	for _, ev := range events {
		ch, ok := idx[ev.CustomerID]
		if !ok {
			ch = &customerHistory{items: make(map[string][]models.PurchaseEvent)}
			idx[ev.CustomerID] = ch
		}
		ch.events = append(ch.events, ev)
		ch.items[ev.ItemID] = append(ch.items[ev.ItemID], ev)
	}

	for _, ch := range idx {
		sort.Slice(ch.events, func(i, j int) bool { return ch.events[i].Date.Before(ch.events[j].Date) })
		for itemID := range ch.items {
			item := ch.items[itemID]
			sort.Slice(item, func(i, j int) bool { return item[i].Date.Before(item[j].Date) })
		}
	}
	return idx
}
