package models

import "time"

// Recommendation is one row of a generated batch: how much of one item the
// agent should carry for one customer. A batch is immutable once written;
// regeneration replaces the whole (date, route) slice.
type Recommendation struct {
	Date                  string  `json:"trxDate" parquet:"name=trxDate,type=BYTE_ARRAY,convertedtype=UTF8"`
	RouteCode             string  `json:"routeCode" parquet:"name=routeCode,type=BYTE_ARRAY,convertedtype=UTF8"`
	CustomerID            string  `json:"customerCode" parquet:"name=customerCode,type=BYTE_ARRAY,convertedtype=UTF8"`
	ItemID                string  `json:"itemCode" parquet:"name=itemCode,type=BYTE_ARRAY,convertedtype=UTF8"`
	ItemName              string  `json:"itemName" parquet:"name=itemName,type=BYTE_ARRAY,convertedtype=UTF8"`
	ActualQuantity        int     `json:"actualQuantity" parquet:"name=actualQuantity,type=INT64"`
	RecommendedQuantity   int     `json:"recommendedQuantity" parquet:"name=recommendedQuantity,type=INT64"`
	Tier                  string  `json:"tier" parquet:"name=tier,type=BYTE_ARRAY,convertedtype=UTF8"`
	VanLoad               int     `json:"vanLoad" parquet:"name=vanLoad,type=INT64"`
	PriorityScore         float64 `json:"priorityScore" parquet:"name=priorityScore,type=DOUBLE"`
	AvgQuantityPerVisit   int     `json:"avgQuantityPerVisit" parquet:"name=avgQuantityPerVisit,type=INT64"`
	DaysSinceLastPurchase int     `json:"daysSinceLastPurchase" parquet:"name=daysSinceLastPurchase,type=INT64"`
	PurchaseCycleDays     float64 `json:"purchaseCycleDays" parquet:"name=purchaseCycleDays,type=DOUBLE"`
	FrequencyPercent      float64 `json:"frequencyPercent" parquet:"name=frequencyPercent,type=DOUBLE"`
}

// GenerationInfo summarises what is already stored for a date.
type GenerationInfo struct {
	Date         string
	TotalRecords int
	RoutesCount  int
	GeneratedAt  time.Time
}

// SessionSummary is the aggregate view of a redistribution session.
// Visited totals include redistributed adjustments; TotalRecommended is
// the immutable baseline from the generated batch.
type SessionSummary struct {
	SessionID           string  `json:"sessionId"`
	RouteCode           string  `json:"routeCode"`
	Date                string  `json:"date"`
	TotalCustomers      int     `json:"totalCustomers"`
	VisitedCustomers    int     `json:"visitedCustomers"`
	RemainingCustomers  int     `json:"remainingCustomers"`
	PerformanceRate     float64 `json:"performanceRate"`
	TotalRecommended    int     `json:"totalRecommended"`
	TotalActual         int     `json:"totalActual"`
	VisitedRecommended  int     `json:"visitedRecommended"`
	RedistributionCount int     `json:"redistributionCount"`
}
