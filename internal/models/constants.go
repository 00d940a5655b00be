package models

// Stocking tiers, from strongest to weakest recommendation.
const (
	TierMustStock   = "MUST_STOCK"
	TierShouldStock = "SHOULD_STOCK"
	TierConsider    = "CONSIDER"
	TierMonitor     = "MONITOR"
	TierExclude     = "EXCLUDE"
	TierNewCustomer = "NEW_CUSTOMER"
)

// TierRank orders tiers for redistribution: higher rank wins first.
// EXCLUDE and NEW_CUSTOMER rank zero and never attract redistributed stock.
var TierRank = map[string]int{
	TierMustStock:   4,
	TierShouldStock: 3,
	TierConsider:    2,
	TierMonitor:     1,
}

// Tier threshold strategies.
const (
	StrategyConservative = "conservative"
	StrategyAggressive   = "aggressive"
	StrategyBalanced     = "balanced"
)

// DateLayout is the wire format for calendar dates across the system.
const DateLayout = "2006-01-02"
