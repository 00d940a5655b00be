package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vanrank/internal/models"
)

type SupervisionRepository struct {
	pool *pgxpool.Pool
}

func NewSupervisionRepository(pool *pgxpool.Pool) *SupervisionRepository {
	return &SupervisionRepository{pool: pool}
}

// SaveSummary upserts a session summary; a session's summary is re-saved
// after every supervision checkpoint, so the latest write wins.
func (r *SupervisionRepository) SaveSummary(ctx context.Context, summary *models.SessionSummary) error {
	query := `
        INSERT INTO supervision_summaries (
            session_id, route_code, trx_date, total_customers, visited_customers,
            remaining_customers, performance_rate, total_recommended, total_actual,
            visited_recommended, redistribution_count
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (session_id) DO UPDATE SET
            visited_customers = EXCLUDED.visited_customers,
            remaining_customers = EXCLUDED.remaining_customers,
            performance_rate = EXCLUDED.performance_rate,
            total_actual = EXCLUDED.total_actual,
            visited_recommended = EXCLUDED.visited_recommended,
            redistribution_count = EXCLUDED.redistribution_count
    `

	_, err := r.pool.Exec(ctx, query,
		summary.SessionID,
		summary.RouteCode,
		summary.Date,
		summary.TotalCustomers,
		summary.VisitedCustomers,
		summary.RemainingCustomers,
		summary.PerformanceRate,
		summary.TotalRecommended,
		summary.TotalActual,
		summary.VisitedRecommended,
		summary.RedistributionCount,
	)
	return err
}

func (r *SupervisionRepository) GetSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	query := `
        SELECT session_id, route_code, trx_date, total_customers, visited_customers,
               remaining_customers, performance_rate, total_recommended, total_actual,
               visited_recommended, redistribution_count
        FROM supervision_summaries
        WHERE session_id = $1
    `

	var summary models.SessionSummary
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&summary.SessionID,
		&summary.RouteCode,
		&summary.Date,
		&summary.TotalCustomers,
		&summary.VisitedCustomers,
		&summary.RemainingCustomers,
		&summary.PerformanceRate,
		&summary.TotalRecommended,
		&summary.TotalActual,
		&summary.VisitedRecommended,
		&summary.RedistributionCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
