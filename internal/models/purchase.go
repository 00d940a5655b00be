package models

import "time"

// PurchaseEvent is a single historical sale of one item to one customer.
// Immutable once loaded; Date is truncated to the calendar day.
type PurchaseEvent struct {
	Date       time.Time
	RouteCode  string
	CustomerID string
	ItemID     string
	ItemName   string
	Quantity   float64
	UnitPrice  float64
}

// VanStockItem is the predicted vehicle load for one item on a route/date.
type VanStockItem struct {
	RouteCode string
	Date      time.Time
	ItemID    string
	ItemName  string
	Quantity  int
}

// JourneyStop is one scheduled customer on a route's journey plan.
type JourneyStop struct {
	RouteCode  string
	Date       time.Time
	CustomerID string
}

// Day strips the time-of-day component, keeping purchase dates comparable
// regardless of how the warehouse exported them.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
