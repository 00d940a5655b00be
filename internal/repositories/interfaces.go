package repositories

import (
	"context"
	"time"

	"vanrank/internal/models"
)

// PurchaseHistoryRepository reads the immutable purchase log.
type PurchaseHistoryRepository interface {
	// GetByRouteAndRange returns purchases for a route with from <= date < to,
	// ordered by date. Route "" means all routes.
	GetByRouteAndRange(ctx context.Context, route string, from, to time.Time) ([]models.PurchaseEvent, error)
	// GetActualSales returns quantities sold on exactly the given date,
	// keyed by (customer, item).
	GetActualSales(ctx context.Context, route string, date time.Time) (map[string]map[string]float64, error)
	BulkCreate(ctx context.Context, events []models.PurchaseEvent) error
}

// VanStockRepository reads the predicted vehicle load per route/date.
type VanStockRepository interface {
	GetForRouteDate(ctx context.Context, route string, date time.Time) ([]models.VanStockItem, error)
	Routes(ctx context.Context, date time.Time) ([]string, error)
	BulkCreate(ctx context.Context, items []models.VanStockItem) error
}

// JourneyPlanRepository reads which customers are scheduled on a route/date.
type JourneyPlanRepository interface {
	GetCustomers(ctx context.Context, route string, date time.Time) ([]string, error)
	BulkCreate(ctx context.Context, stops []models.JourneyStop) error
}

// RecommendationRepository stores generated batches. A batch is write-once
// per (date, route): ReplaceBatch drops any previous slice in the same
// transaction, never patching rows in place.
type RecommendationRepository interface {
	ReplaceBatch(ctx context.Context, date time.Time, route string, recs []models.Recommendation) error
	GetByDateRoute(ctx context.Context, date time.Time, route string) ([]models.Recommendation, error)
	GenerationInfo(ctx context.Context, date time.Time) (*models.GenerationInfo, error)
}

// SupervisionRepository persists session summaries keyed by session id.
type SupervisionRepository interface {
	SaveSummary(ctx context.Context, summary *models.SessionSummary) error
	GetSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}
