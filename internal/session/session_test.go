package session

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"vanrank/internal/models"
)

func testRegistry() *Registry {
	return NewRegistry(models.EngineConfig{MaxRecipients: 5, RedistributionStepCap: 0.5})
}

func row(customer, item string, qty int, tier string, frequency, priority float64) models.Recommendation {
	return models.Recommendation{
		Date:                "2024-02-10",
		RouteCode:           "RT001",
		CustomerID:          customer,
		ItemID:              item,
		ItemName:            "Item " + item,
		RecommendedQuantity: qty,
		Tier:                tier,
		FrequencyPercent:    frequency,
		PriorityScore:       priority,
	}
}

func TestInitializeEmptyBatch(t *testing.T) {
	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(nil); err == nil {
		t.Fatal("expected error initializing from an empty batch")
	}
}

func TestInitializeIdempotent(t *testing.T) {
	batch := []models.Recommendation{
		row("C001", "Y", 10, models.TierMustStock, 90, 85),
		row("C002", "Y", 4, models.TierShouldStock, 60, 60),
		row("C002", "Z", 7, models.TierConsider, 40, 40),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}
	firstInventory := map[string]int{}
	for item, qty := range sess.vanInventory {
		firstInventory[item] = qty
	}

	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(firstInventory, sess.vanInventory) {
		t.Errorf("van inventory changed across identical initializations: %v vs %v", firstInventory, sess.vanInventory)
	}
	if want := map[string]int{"Y": 14, "Z": 7}; !reflect.DeepEqual(sess.vanInventory, want) {
		t.Errorf("van inventory = %v, want %v", sess.vanInventory, want)
	}
	if len(sess.customers) != 2 {
		t.Errorf("customers = %d, want 2", len(sess.customers))
	}
}

func TestProcessVisitErrors(t *testing.T) {
	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize([]models.Recommendation{row("C001", "Y", 5, models.TierConsider, 50, 40)}); err != nil {
		t.Fatal(err)
	}

	_, err := sess.ProcessVisit("C999", nil)
	var visitErr *VisitError
	if !errors.As(err, &visitErr) || visitErr.Code != CodeCustomerNotFound {
		t.Fatalf("err = %v, want VisitError %s", err, CodeCustomerNotFound)
	}

	if _, err := sess.ProcessVisit("C001", map[string]int{"Y": 5}); err != nil {
		t.Fatal(err)
	}
	_, err = sess.ProcessVisit("C001", map[string]int{"Y": 5})
	if !errors.As(err, &visitErr) || visitErr.Code != CodeAlreadyVisited {
		t.Fatalf("err = %v, want VisitError %s", err, CodeAlreadyVisited)
	}
}

func TestRedistributionCapsAndOrder(t *testing.T) {
	// C000 leaves 8 unsold units of Y; recipients recommended 4/6/8 take
	// at most 2/3/4 (50% caps), best candidates first
	batch := []models.Recommendation{
		row("C000", "Y", 10, models.TierMustStock, 90, 85),
		row("C001", "Y", 4, models.TierMustStock, 80, 80),
		row("C002", "Y", 6, models.TierMustStock, 70, 75),
		row("C003", "Y", 8, models.TierMustStock, 60, 70),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	result, err := sess.ProcessVisit("C000", map[string]int{"Y": 2})
	if err != nil {
		t.Fatal(err)
	}

	if unsold := result.UnsoldItems["Y"].Quantity; unsold != 8 {
		t.Fatalf("unsold = %d, want 8", unsold)
	}
	if result.Redistribution.Status != StatusSuccess {
		t.Fatalf("status = %s, want %s", result.Redistribution.Status, StatusSuccess)
	}

	// probability order C001 > C002 > C003: steps 2, 3, then remainder 3
	want := map[string]int{"C001": 2, "C002": 3, "C003": 3}
	got := map[string]int{}
	for _, d := range result.Redistribution.Details {
		got[d.CustomerID] += d.Quantity
		limits := map[string]int{"C001": 2, "C002": 3, "C003": 4}
		if d.Quantity > limits[d.CustomerID] {
			t.Errorf("%s received %d, cap is %d", d.CustomerID, d.Quantity, limits[d.CustomerID])
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("redistributed quantities = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(result.Adjustments["C001"], map[string]int{"Y": 2}) {
		t.Errorf("C001 adjustments = %v, want Y:2", result.Adjustments["C001"])
	}
}

func TestRedistributionTierOrder(t *testing.T) {
	batch := []models.Recommendation{
		row("C000", "Y", 4, models.TierMustStock, 90, 85),
		row("C001", "Y", 10, models.TierMonitor, 99, 99),
		row("C002", "Y", 10, models.TierMustStock, 10, 10),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	result, err := sess.ProcessVisit("C000", map[string]int{"Y": 0})
	if err != nil {
		t.Fatal(err)
	}
	// tier outranks probability: C002 (MUST_STOCK) goes first
	if first := result.Redistribution.Details[0].CustomerID; first != "C002" {
		t.Errorf("first recipient = %s, want C002 by tier rank", first)
	}
}

func TestRedistributionNoRemainingCustomers(t *testing.T) {
	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize([]models.Recommendation{row("C001", "Y", 5, models.TierConsider, 50, 40)}); err != nil {
		t.Fatal(err)
	}

	result, err := sess.ProcessVisit("C001", map[string]int{"Y": 1})
	if err != nil {
		t.Fatal(err)
	}
	if result.Redistribution.Status != StatusNoRemainingCustomers {
		t.Errorf("status = %s, want %s", result.Redistribution.Status, StatusNoRemainingCustomers)
	}
}

func TestRedistributionPartial(t *testing.T) {
	// only one recipient with a tiny recommendation: cap 1, 7 units stranded
	batch := []models.Recommendation{
		row("C000", "Y", 8, models.TierMustStock, 90, 85),
		row("C001", "Y", 2, models.TierConsider, 50, 40),
		row("C002", "Z", 5, models.TierConsider, 50, 40),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	result, err := sess.ProcessVisit("C000", map[string]int{"Y": 0})
	if err != nil {
		t.Fatal(err)
	}
	if result.Redistribution.Status != StatusPartial {
		t.Fatalf("status = %s, want %s", result.Redistribution.Status, StatusPartial)
	}
	if got := result.Redistribution.ItemsNotRedistributed; len(got) != 1 || got[0] != "Y" {
		t.Errorf("items_not_redistributed = %v, want [Y]", got)
	}
	if result.Adjustments["C001"]["Y"] != 1 {
		t.Errorf("C001 adjustment = %d, want the cap of 1", result.Adjustments["C001"]["Y"])
	}
}

func TestRedistributionNeverTargetsVisited(t *testing.T) {
	batch := []models.Recommendation{
		row("C000", "Y", 6, models.TierMustStock, 90, 85),
		row("C001", "Y", 6, models.TierMustStock, 80, 80),
		row("C002", "Y", 6, models.TierMustStock, 70, 75),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.ProcessVisit("C001", map[string]int{"Y": 6}); err != nil {
		t.Fatal(err)
	}
	result, err := sess.ProcessVisit("C000", map[string]int{"Y": 0})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range result.Redistribution.Details {
		if d.CustomerID == "C001" {
			t.Error("redistribution targeted an already-visited customer")
		}
	}
}

func TestConcurrentVisits(t *testing.T) {
	var batch []models.Recommendation
	customers := []string{"C001", "C002", "C003", "C004", "C005", "C006", "C007", "C008"}
	for _, c := range customers {
		batch = append(batch, row(c, "Y", 4, models.TierConsider, 50, 40))
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, c := range customers {
		wg.Add(1)
		go func(customer string) {
			defer wg.Done()
			if _, err := sess.ProcessVisit(customer, map[string]int{"Y": 1}); err != nil {
				t.Errorf("visit %s: %v", customer, err)
			}
		}(c)
	}
	wg.Wait()

	summary := sess.Summary()
	if summary.VisitedCustomers != len(customers) {
		t.Errorf("visited = %d, want %d", summary.VisitedCustomers, len(customers))
	}
	if summary.RemainingCustomers != 0 {
		t.Errorf("remaining = %d, want 0", summary.RemainingCustomers)
	}
}

func TestProcessVisitCopiesSalesMap(t *testing.T) {
	batch := []models.Recommendation{
		row("C001", "Y", 10, models.TierMustStock, 90, 85),
		row("C002", "Y", 4, models.TierShouldStock, 60, 60),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	// caller reuses one map across visits; mutating it afterwards must not
	// change recorded sales
	sales := map[string]int{"Y": 5}
	if _, err := sess.ProcessVisit("C001", sales); err != nil {
		t.Fatal(err)
	}
	sales["Y"] = 4
	if _, err := sess.ProcessVisit("C002", sales); err != nil {
		t.Fatal(err)
	}

	summary := sess.Summary()
	if summary.TotalActual != 9 {
		t.Errorf("TotalActual = %d, want 9 (5 + 4)", summary.TotalActual)
	}
}

func TestSummary(t *testing.T) {
	batch := []models.Recommendation{
		row("C001", "Y", 10, models.TierMustStock, 90, 85),
		row("C002", "Y", 4, models.TierShouldStock, 60, 60),
	}

	sess := testRegistry().GetOrCreate("RT001", "2024-02-10")
	if err := sess.Initialize(batch); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.ProcessVisit("C001", map[string]int{"Y": 5}); err != nil {
		t.Fatal(err)
	}

	summary := sess.Summary()
	if summary.TotalCustomers != 2 || summary.VisitedCustomers != 1 || summary.RemainingCustomers != 1 {
		t.Errorf("customer counts = %d/%d/%d, want 2/1/1",
			summary.TotalCustomers, summary.VisitedCustomers, summary.RemainingCustomers)
	}
	if summary.TotalRecommended != 14 {
		t.Errorf("TotalRecommended = %d, want immutable baseline 14", summary.TotalRecommended)
	}
	if summary.VisitedRecommended != 10 || summary.TotalActual != 5 {
		t.Errorf("visited recommended/actual = %d/%d, want 10/5", summary.VisitedRecommended, summary.TotalActual)
	}
	if summary.PerformanceRate != 50.0 {
		t.Errorf("PerformanceRate = %v, want 50.0", summary.PerformanceRate)
	}
	if summary.RedistributionCount != 1 {
		t.Errorf("RedistributionCount = %v, want 1 logged visit", summary.RedistributionCount)
	}
}
