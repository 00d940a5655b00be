package session

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"vanrank/internal/models"
)

// Visit error codes returned to callers. These are expected, recoverable
// caller mistakes, so they come back as structured errors, not panics.
const (
	CodeCustomerNotFound = "customer_not_found"
	CodeAlreadyVisited   = "already_visited"
)

// Redistribution statuses.
const (
	StatusNothingToRedistribute = "nothing_to_redistribute"
	StatusNoRemainingCustomers  = "no_remaining_customers"
	StatusSuccess               = "success"
	StatusPartial               = "partial"
)

// VisitError is a structured, recoverable error from the visit API.
type VisitError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *VisitError) Error() string { return e.Message }

// ItemState tracks one item on one customer's recommendation set within a
// session. Recommended is the immutable baseline; Adjustment accumulates
// redistribution deltas on top of it.
type ItemState struct {
	ItemName    string
	Recommended int
	Tier        string
	Probability float64
	Urgency     float64
}

// CustomerState is one customer's position in the session state machine:
// NotVisited until the first processed visit, Visited afterwards, never back.
type CustomerState struct {
	Items       map[string]*ItemState
	Visited     bool
	ActualSales map[string]int
}

// UnsoldItem is a quantity left on the van after a visit.
type UnsoldItem struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

// RedistributionDetail is one delta assigned to one recipient.
type RedistributionDetail struct {
	ItemID      string  `json:"itemCode"`
	ItemName    string  `json:"itemName"`
	CustomerID  string  `json:"customerCode"`
	Quantity    int     `json:"quantity"`
	Tier        string  `json:"tier"`
	Probability float64 `json:"probability"`
}

// RedistributionResult reports what happened to a visit's unsold stock.
type RedistributionResult struct {
	RedistributedCount    int                    `json:"redistributedCount"`
	Details               []RedistributionDetail `json:"details"`
	Status                string                 `json:"status"`
	ItemsNotRedistributed []string               `json:"itemsNotRedistributed,omitempty"`
	Message               string                 `json:"message,omitempty"`
}

// VisitResult is returned from ProcessVisit. Adjustments is a deep copy of
// the full session adjustment state so the caller can reconstruct customer
// allocations without another query.
type VisitResult struct {
	CustomerID     string                    `json:"customerCode"`
	UnsoldItems    map[string]UnsoldItem     `json:"unsoldItems"`
	Redistribution *RedistributionResult     `json:"redistribution"`
	Adjustments    map[string]map[string]int `json:"adjustments"`
}

type logEntry struct {
	CustomerID     string
	Timestamp      time.Time
	UnsoldItems    map[string]UnsoldItem
	Redistribution *RedistributionResult
}

// Session is the live redistribution state for one (route, date). All
// mutations serialize on the session mutex; unrelated sessions proceed
// independently.
type Session struct {
	ID        string
	RouteCode string
	Date      string

	maxRecipients int
	stepCap       float64

	mu           sync.Mutex
	customers    map[string]*CustomerState
	vanInventory map[string]int
	adjustments  map[string]map[string]int
	visited      map[string]struct{}
	journal      []logEntry
}

func newSession(id, route, date string, maxRecipients int, stepCap float64) *Session {
	if maxRecipients <= 0 {
		maxRecipients = 5
	}
	if stepCap <= 0 {
		stepCap = 0.5
	}
	return &Session{
		ID:            id,
		RouteCode:     route,
		Date:          date,
		maxRecipients: maxRecipients,
		stepCap:       stepCap,
		customers:     make(map[string]*CustomerState),
		vanInventory:  make(map[string]int),
		adjustments:   make(map[string]map[string]int),
		visited:       make(map[string]struct{}),
	}
}

// Initialize builds the customer state map and van inventory snapshot from
// a recommendation batch. It rebuilds from scratch every time, so calling
// it again with the same batch on a fresh session yields identical state.
func (s *Session) Initialize(recs []models.Recommendation) error {
	if len(recs) == 0 {
		return fmt.Errorf("cannot initialize session %s from an empty batch", s.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers = make(map[string]*CustomerState)
	s.vanInventory = make(map[string]int)
	s.adjustments = make(map[string]map[string]int)
	s.visited = make(map[string]struct{})
	s.journal = nil

	for _, rec := range recs {
		state, ok := s.customers[rec.CustomerID]
		if !ok {
			state = &CustomerState{
				Items:       make(map[string]*ItemState),
				ActualSales: make(map[string]int),
			}
			s.customers[rec.CustomerID] = state
		}
		state.Items[rec.ItemID] = &ItemState{
			ItemName:    rec.ItemName,
			Recommended: rec.RecommendedQuantity,
			Tier:        rec.Tier,
			Probability: rec.FrequencyPercent / 100,
			Urgency:     rec.PriorityScore / 100,
		}
		s.vanInventory[rec.ItemID] += rec.RecommendedQuantity
	}
	for customerID := range s.customers {
		s.adjustments[customerID] = make(map[string]int)
	}

	log.Printf("Initialized session %s with %d customers, %d items", s.ID, len(s.customers), len(s.vanInventory))
	return nil
}

// ProcessVisit records a customer's actual sales, computes the unsold
// remainder against their adjusted recommendation, and redistributes it to
// the remaining customers.
func (s *Session) ProcessVisit(customerID string, actualSales map[string]int) (*VisitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.customers[customerID]
	if !ok {
		return nil, &VisitError{Code: CodeCustomerNotFound, Message: fmt.Sprintf("customer %s not found in recommendations", customerID)}
	}
	if _, done := s.visited[customerID]; done {
		return nil, &VisitError{Code: CodeAlreadyVisited, Message: fmt.Sprintf("customer %s already visited", customerID)}
	}

	s.visited[customerID] = struct{}{}
	state.Visited = true

	// copy, so a caller reusing its sales map cannot mutate session state
	state.ActualSales = make(map[string]int, len(actualSales))
	for itemID, qty := range actualSales {
		state.ActualSales[itemID] = qty
	}

	unsold := make(map[string]UnsoldItem)
	for itemID, item := range state.Items {
		recommended := item.Recommended + s.adjustments[customerID][itemID]
		if actual := actualSales[itemID]; actual < recommended {
			unsold[itemID] = UnsoldItem{ItemName: item.ItemName, Quantity: recommended - actual}
		}
	}

	redistribution := s.redistribute(unsold)

	s.journal = append(s.journal, logEntry{
		CustomerID:     customerID,
		Timestamp:      time.Now(),
		UnsoldItems:    unsold,
		Redistribution: redistribution,
	})

	return &VisitResult{
		CustomerID:     customerID,
		UnsoldItems:    unsold,
		Redistribution: redistribution,
		Adjustments:    s.copyAdjustments(),
	}, nil
}

type candidate struct {
	customerID  string
	tier        string
	probability float64
	urgency     float64
	recommended int
}

// redistribute assigns unsold quantities to unvisited customers that
// already have the item on their recommendation set, best candidates
// first, never increasing a single recipient by more than the per-step
// cap. Caller holds the session lock.
func (s *Session) redistribute(unsold map[string]UnsoldItem) *RedistributionResult {
	if len(unsold) == 0 {
		return &RedistributionResult{Status: StatusNothingToRedistribute, Details: []RedistributionDetail{}}
	}

	unvisited := make([]string, 0, len(s.customers))
	for customerID := range s.customers {
		if _, done := s.visited[customerID]; !done {
			unvisited = append(unvisited, customerID)
		}
	}
	if len(unvisited) == 0 {
		return &RedistributionResult{
			Status:  StatusNoRemainingCustomers,
			Details: []RedistributionDetail{},
			Message: "No remaining customers to redistribute items to",
		}
	}
	sort.Strings(unvisited)

	itemIDs := make([]string, 0, len(unsold))
	for itemID := range unsold {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Strings(itemIDs)

	details := []RedistributionDetail{}
	var notRedistributed []string

	for _, itemID := range itemIDs {
		remaining := unsold[itemID].Quantity

		var eligible []candidate
		for _, customerID := range unvisited {
			item, ok := s.customers[customerID].Items[itemID]
			if !ok {
				continue
			}
			eligible = append(eligible, candidate{
				customerID:  customerID,
				tier:        item.Tier,
				probability: item.Probability,
				urgency:     item.Urgency,
				recommended: item.Recommended,
			})
		}
		if len(eligible) == 0 {
			notRedistributed = append(notRedistributed, itemID)
			continue
		}

		sort.SliceStable(eligible, func(i, j int) bool {
			a, b := eligible[i], eligible[j]
			if ra, rb := models.TierRank[a.tier], models.TierRank[b.tier]; ra != rb {
				return ra > rb
			}
			if a.probability != b.probability {
				return a.probability > b.probability
			}
			if a.urgency != b.urgency {
				return a.urgency > b.urgency
			}
			return a.customerID < b.customerID
		})
		if len(eligible) > s.maxRecipients {
			eligible = eligible[:s.maxRecipients]
		}

		for _, c := range eligible {
			if remaining <= 0 {
				break
			}
			step := int(math.Max(1, math.Round(float64(c.recommended)*s.stepCap)))
			if step > remaining {
				step = remaining
			}
			s.adjustments[c.customerID][itemID] += step
			details = append(details, RedistributionDetail{
				ItemID:      itemID,
				ItemName:    unsold[itemID].ItemName,
				CustomerID:  c.customerID,
				Quantity:    step,
				Tier:        c.tier,
				Probability: c.probability,
			})
			remaining -= step
		}
		if remaining > 0 {
			notRedistributed = append(notRedistributed, itemID)
		}
	}

	status := StatusSuccess
	message := fmt.Sprintf("Redistributed %d items successfully", len(details))
	if len(notRedistributed) > 0 {
		status = StatusPartial
		message += fmt.Sprintf(", %d items could not be redistributed", len(notRedistributed))
	}
	return &RedistributionResult{
		RedistributedCount:    len(details),
		Details:               details,
		Status:                status,
		ItemsNotRedistributed: notRedistributed,
		Message:               message,
	}
}

// Summary aggregates the session. Visited totals include redistribution
// adjustments; TotalRecommended is the untouched generation baseline.
func (s *Session) Summary() *models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalRecommended := 0
	for _, state := range s.customers {
		for _, item := range state.Items {
			totalRecommended += item.Recommended
		}
	}

	visitedRecommended := 0
	visitedActual := 0
	for customerID := range s.visited {
		state := s.customers[customerID]
		for itemID, item := range state.Items {
			visitedRecommended += item.Recommended + s.adjustments[customerID][itemID]
			visitedActual += state.ActualSales[itemID]
		}
	}

	performance := 0.0
	if visitedRecommended > 0 {
		performance = math.Round(float64(visitedActual)/float64(visitedRecommended)*100*10) / 10
	}

	return &models.SessionSummary{
		SessionID:           s.ID,
		RouteCode:           s.RouteCode,
		Date:                s.Date,
		TotalCustomers:      len(s.customers),
		VisitedCustomers:    len(s.visited),
		RemainingCustomers:  len(s.customers) - len(s.visited),
		PerformanceRate:     performance,
		TotalRecommended:    totalRecommended,
		TotalActual:         visitedActual,
		VisitedRecommended:  visitedRecommended,
		RedistributionCount: len(s.journal),
	}
}

// Adjustments returns a deep copy of the current adjustment state.
func (s *Session) Adjustments() map[string]map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyAdjustments()
}

func (s *Session) copyAdjustments() map[string]map[string]int {
	out := make(map[string]map[string]int, len(s.adjustments))
	for customerID, items := range s.adjustments {
		inner := make(map[string]int, len(items))
		for itemID, delta := range items {
			inner[itemID] = delta
		}
		out[customerID] = inner
	}
	return out
}
