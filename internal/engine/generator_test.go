package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"vanrank/internal/models"
)

type memHistory struct {
	events []models.PurchaseEvent
}

func (m *memHistory) GetByRouteAndRange(_ context.Context, route string, from, to time.Time) ([]models.PurchaseEvent, error) {
	var out []models.PurchaseEvent
	for _, ev := range m.events {
		if route != "" && ev.RouteCode != route {
			continue
		}
		day := models.Day(ev.Date)
		if !day.Before(models.Day(from)) && day.Before(models.Day(to)) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memHistory) GetActualSales(_ context.Context, route string, date time.Time) (map[string]map[string]float64, error) {
	sales := make(map[string]map[string]float64)
	for _, ev := range m.events {
		if ev.RouteCode != route || !models.Day(ev.Date).Equal(models.Day(date)) {
			continue
		}
		if sales[ev.CustomerID] == nil {
			sales[ev.CustomerID] = make(map[string]float64)
		}
		sales[ev.CustomerID][ev.ItemID] += ev.Quantity
	}
	return sales, nil
}

func (m *memHistory) BulkCreate(_ context.Context, events []models.PurchaseEvent) error {
	m.events = append(m.events, events...)
	return nil
}

type memStock struct {
	items []models.VanStockItem
}

func (m *memStock) GetForRouteDate(_ context.Context, route string, date time.Time) ([]models.VanStockItem, error) {
	var out []models.VanStockItem
	for _, item := range m.items {
		if item.RouteCode == route && models.Day(item.Date).Equal(models.Day(date)) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStock) Routes(_ context.Context, date time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var routes []string
	for _, item := range m.items {
		if models.Day(item.Date).Equal(models.Day(date)) && !seen[item.RouteCode] {
			seen[item.RouteCode] = true
			routes = append(routes, item.RouteCode)
		}
	}
	return routes, nil
}

func (m *memStock) BulkCreate(_ context.Context, items []models.VanStockItem) error {
	m.items = append(m.items, items...)
	return nil
}

type memJourneys struct {
	stops []models.JourneyStop
}

func (m *memJourneys) GetCustomers(_ context.Context, route string, date time.Time) ([]string, error) {
	var customers []string
	for _, stop := range m.stops {
		if stop.RouteCode == route && models.Day(stop.Date).Equal(models.Day(date)) {
			customers = append(customers, stop.CustomerID)
		}
	}
	return customers, nil
}

func (m *memJourneys) BulkCreate(_ context.Context, stops []models.JourneyStop) error {
	m.stops = append(m.stops, stops...)
	return nil
}

func testEngineConfig() models.EngineConfig {
	return models.EngineConfig{
		FallbackCycleDays:     30,
		LookbackDays:          365,
		MinPriority:           15,
		Strategy:              models.StrategyBalanced,
		NewCustomerItemCount:  5,
		NewCustomerQuantity:   5,
		MaxRecipients:         5,
		RedistributionStepCap: 0.5,
		BenchmarkTopCustomers: 100,
		Workers:               4,
	}
}

// fixture builds one route with a regular buyer, plenty of stock and a
// scheduled journey.
func generatorFixture() (*memHistory, *memStock, *memJourneys, time.Time) {
	targetDate := testBase.AddDate(0, 0, 40)

	history := &memHistory{}
	for _, customer := range []string{"C001", "C002"} {
		for _, offset := range []int{0, 10, 20, 30} {
			history.events = append(history.events, models.PurchaseEvent{
				Date:       testBase.AddDate(0, 0, offset),
				RouteCode:  "RT001",
				CustomerID: customer,
				ItemID:     "SKU-1",
				ItemName:   "Lemon Crate",
				Quantity:   6,
			})
		}
	}

	stock := &memStock{items: []models.VanStockItem{
		{RouteCode: "RT001", Date: targetDate, ItemID: "SKU-1", ItemName: "Lemon Crate", Quantity: 50},
		{RouteCode: "RT001", Date: targetDate, ItemID: "SKU-2", ItemName: "Olive Jar", Quantity: 40},
		{RouteCode: "RT001", Date: targetDate, ItemID: "SKU-3", ItemName: "Fig Box", Quantity: 30},
	}}

	journeys := &memJourneys{stops: []models.JourneyStop{
		{RouteCode: "RT001", Date: targetDate, CustomerID: "C001"},
		{RouteCode: "RT001", Date: targetDate, CustomerID: "C002"},
	}}

	return history, stock, journeys, targetDate
}

func TestGenerateMissingTargetDate(t *testing.T) {
	history, stock, journeys, _ := generatorFixture()
	g := NewGenerator(testEngineConfig(), history, stock, journeys)

	_, err := g.Generate(context.Background(), "RT001", time.Time{})
	if !errors.Is(err, ErrMissingTargetDate) {
		t.Fatalf("err = %v, want ErrMissingTargetDate", err)
	}
}

func TestGenerateEmptyInputs(t *testing.T) {
	history, stock, journeys, targetDate := generatorFixture()
	g := NewGenerator(testEngineConfig(), history, stock, journeys)

	// no stock loaded for this route
	recs, err := g.Generate(context.Background(), "RT999", targetDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations for a route with no stock, want 0", len(recs))
	}

	// stock but no scheduled customers
	stock.items = append(stock.items, models.VanStockItem{
		RouteCode: "RT002", Date: targetDate, ItemID: "SKU-1", ItemName: "Lemon Crate", Quantity: 10,
	})
	recs, err = g.Generate(context.Background(), "RT002", targetDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations with an empty journey, want 0", len(recs))
	}
}

func TestGenerateRegularBuyers(t *testing.T) {
	history, stock, journeys, targetDate := generatorFixture()
	g := NewGenerator(testEngineConfig(), history, stock, journeys)

	recs, err := g.Generate(context.Background(), "RT001", targetDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 {
		t.Fatal("expected recommendations for regular buyers")
	}

	perItem := make(map[string]int)
	for _, rec := range recs {
		if rec.RecommendedQuantity < 1 {
			t.Errorf("row %s/%s has quantity %d, zero rows must be dropped", rec.CustomerID, rec.ItemID, rec.RecommendedQuantity)
		}
		if rec.PriorityScore < 0 || rec.PriorityScore > 100 {
			t.Errorf("row %s/%s priority %v out of range", rec.CustomerID, rec.ItemID, rec.PriorityScore)
		}
		if rec.PurchaseCycleDays <= 0 || rec.PurchaseCycleDays > 365 {
			t.Errorf("row %s/%s cycle %v out of bounds", rec.CustomerID, rec.ItemID, rec.PurchaseCycleDays)
		}
		if rec.FrequencyPercent > 100 {
			t.Errorf("row %s/%s frequency %v exceeds 100", rec.CustomerID, rec.ItemID, rec.FrequencyPercent)
		}
		perItem[rec.ItemID] += rec.RecommendedQuantity
	}

	for _, item := range stock.items {
		if item.RouteCode == "RT001" && perItem[item.ItemID] > item.Quantity {
			t.Errorf("item %s allocated %d, exceeds van load %d", item.ItemID, perItem[item.ItemID], item.Quantity)
		}
	}

	// sorted by customer asc, priority desc
	for i := 1; i < len(recs); i++ {
		a, b := recs[i-1], recs[i]
		if a.CustomerID > b.CustomerID {
			t.Fatalf("rows out of customer order: %s before %s", a.CustomerID, b.CustomerID)
		}
		if a.CustomerID == b.CustomerID && a.PriorityScore < b.PriorityScore {
			t.Fatalf("customer %s rows out of priority order", a.CustomerID)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	history, stock, journeys, targetDate := generatorFixture()
	g := NewGenerator(testEngineConfig(), history, stock, journeys)

	first, err := g.Generate(context.Background(), "RT001", targetDate)
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Generate(context.Background(), "RT001", targetDate)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over identical inputs produced different batches")
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	history, stock, journeys, targetDate := generatorFixture()
	// more customers than workers, so a blocked feeder would hang here
	for i := 0; i < 40; i++ {
		journeys.stops = append(journeys.stops, models.JourneyStop{
			RouteCode: "RT001", Date: targetDate, CustomerID: fmt.Sprintf("C%03d", 100+i),
		})
	}

	cfg := testEngineConfig()
	cfg.Workers = 2
	g := NewGenerator(cfg, history, stock, journeys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, "RT001", targetDate)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want wrapped context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return after context cancellation")
	}
}

func TestGenerateNewCustomer(t *testing.T) {
	history, stock, journeys, targetDate := generatorFixture()
	journeys.stops = append(journeys.stops, models.JourneyStop{
		RouteCode: "RT001", Date: targetDate, CustomerID: "C900",
	})

	g := NewGenerator(testEngineConfig(), history, stock, journeys)
	recs, err := g.Generate(context.Background(), "RT001", targetDate)
	if err != nil {
		t.Fatal(err)
	}

	var newRows []models.Recommendation
	for _, rec := range recs {
		if rec.CustomerID == "C900" {
			newRows = append(newRows, rec)
		}
	}
	if len(newRows) != 3 { // only 3 items stocked
		t.Fatalf("new customer got %d rows, want 3", len(newRows))
	}
	for _, rec := range newRows {
		if rec.Tier != models.TierNewCustomer {
			t.Errorf("new customer row tier = %s, want %s", rec.Tier, models.TierNewCustomer)
		}
		if rec.PriorityScore != 25.0 {
			t.Errorf("new customer priority = %v, want 25.0", rec.PriorityScore)
		}
		if rec.RecommendedQuantity != 5 {
			t.Errorf("new customer quantity = %d, want default 5", rec.RecommendedQuantity)
		}
	}
}

func TestApplyVanLoadConstraints(t *testing.T) {
	recs := []models.Recommendation{
		{CustomerID: "A", ItemID: "X", RecommendedQuantity: 4, PriorityScore: 80},
		{CustomerID: "B", ItemID: "X", RecommendedQuantity: 4, PriorityScore: 50},
	}
	out := applyVanLoadConstraints(recs, map[string]int{"X": 5})

	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	for _, rec := range out {
		switch rec.CustomerID {
		case "A":
			if rec.RecommendedQuantity != 4 {
				t.Errorf("A keeps %d, want full 4 at higher priority", rec.RecommendedQuantity)
			}
		case "B":
			if rec.RecommendedQuantity != 1 {
				t.Errorf("B keeps %d, want remainder 1", rec.RecommendedQuantity)
			}
		}
	}
}

func TestApplyVanLoadConstraintsDropsZeroRows(t *testing.T) {
	recs := []models.Recommendation{
		{CustomerID: "A", ItemID: "X", RecommendedQuantity: 3, PriorityScore: 90},
		{CustomerID: "B", ItemID: "X", RecommendedQuantity: 2, PriorityScore: 60},
		{CustomerID: "C", ItemID: "X", RecommendedQuantity: 2, PriorityScore: 40},
	}
	out := applyVanLoadConstraints(recs, map[string]int{"X": 3})

	if len(out) != 1 {
		t.Fatalf("got %d rows, want 1 after exhausting stock", len(out))
	}
	if out[0].CustomerID != "A" || out[0].RecommendedQuantity != 3 {
		t.Errorf("surviving row = %+v, want A with 3", out[0])
	}
}
