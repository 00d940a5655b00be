package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vanrank/internal/models"
)

type JourneyPlanRepository struct {
	pool *pgxpool.Pool
}

func NewJourneyPlanRepository(pool *pgxpool.Pool) *JourneyPlanRepository {
	return &JourneyPlanRepository{pool: pool}
}

func (r *JourneyPlanRepository) GetCustomers(ctx context.Context, route string, date time.Time) ([]string, error) {
	query := `
        SELECT DISTINCT customer_code
        FROM journey_plan
        WHERE route_code = $1 AND trx_date = $2
        ORDER BY customer_code
    `

	rows, err := r.pool.Query(ctx, query, route, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []string
	for rows.Next() {
		var customer string
		if err := rows.Scan(&customer); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (r *JourneyPlanRepository) BulkCreate(ctx context.Context, stops []models.JourneyStop) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"journey_plan"},
		[]string{"route_code", "trx_date", "customer_code"},
		pgx.CopyFromSlice(len(stops), func(i int) ([]interface{}, error) {
			return []interface{}{
				stops[i].RouteCode,
				stops[i].Date,
				stops[i].CustomerID,
			}, nil
		}),
	)
	return err
}
