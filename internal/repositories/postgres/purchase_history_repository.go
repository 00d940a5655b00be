package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vanrank/internal/models"
)

type PurchaseHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPurchaseHistoryRepository(pool *pgxpool.Pool) *PurchaseHistoryRepository {
	return &PurchaseHistoryRepository{pool: pool}
}

// GetByRouteAndRange returns purchases with from <= trx_date < to, ordered
// by date. An empty route matches all routes.
func (r *PurchaseHistoryRepository) GetByRouteAndRange(ctx context.Context, route string, from, to time.Time) ([]models.PurchaseEvent, error) {
	query := `
        SELECT trx_date, route_code, customer_code, item_code, item_name, quantity, unit_price
        FROM purchase_history
        WHERE trx_date >= $1 AND trx_date < $2
          AND ($3 = '' OR route_code = $3)
        ORDER BY trx_date, customer_code, item_code
    `

	rows, err := r.pool.Query(ctx, query, from, to, route)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.PurchaseEvent
	for rows.Next() {
		var ev models.PurchaseEvent
		if err := rows.Scan(&ev.Date, &ev.RouteCode, &ev.CustomerID, &ev.ItemID, &ev.ItemName, &ev.Quantity, &ev.UnitPrice); err != nil {
			return nil, err
		}
		ev.Date = models.Day(ev.Date)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetActualSales returns quantities sold on exactly the given date, keyed
// by customer then item.
func (r *PurchaseHistoryRepository) GetActualSales(ctx context.Context, route string, date time.Time) (map[string]map[string]float64, error) {
	query := `
        SELECT customer_code, item_code, SUM(quantity)
        FROM purchase_history
        WHERE route_code = $1 AND trx_date = $2
        GROUP BY customer_code, item_code
    `

	rows, err := r.pool.Query(ctx, query, route, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make(map[string]map[string]float64)
	for rows.Next() {
		var customer, item string
		var qty float64
		if err := rows.Scan(&customer, &item, &qty); err != nil {
			return nil, err
		}
		if sales[customer] == nil {
			sales[customer] = make(map[string]float64)
		}
		sales[customer][item] = qty
	}
	return sales, rows.Err()
}

func (r *PurchaseHistoryRepository) BulkCreate(ctx context.Context, events []models.PurchaseEvent) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"purchase_history"},
		[]string{"trx_date", "route_code", "customer_code", "item_code", "item_name", "quantity", "unit_price"},
		pgx.CopyFromSlice(len(events), func(i int) ([]interface{}, error) {
			return []interface{}{
				events[i].Date,
				events[i].RouteCode,
				events[i].CustomerID,
				events[i].ItemID,
				events[i].ItemName,
				events[i].Quantity,
				events[i].UnitPrice,
			}, nil
		}),
	)
	return err
}
